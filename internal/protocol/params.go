// internal/protocol/params.go
package protocol

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"labware-service/internal/model"
)

// Params is a free-form set of connection options keyed by option name
type Params map[string]interface{}

// Config is the decoded, immutable connection configuration
type Config struct {
	Address           string        `mapstructure:"address" json:"address"`
	Port              string        `mapstructure:"port" json:"port"`
	Encoding          string        `mapstructure:"encoding" json:"encoding"`
	CommandDelay      time.Duration `mapstructure:"command_delay" json:"command_delay"`
	ReceiveBufferSize int           `mapstructure:"receive_buffer_size" json:"receive_buffer_size"`
	ReceiveTimeout    time.Duration `mapstructure:"receive_timeout" json:"receive_timeout"`
	TransmitTimeout   time.Duration `mapstructure:"transmit_timeout" json:"transmit_timeout"`
	ReceivingInterval time.Duration `mapstructure:"receiving_interval" json:"receiving_interval"`

	// Serial
	BaudRate         int           `mapstructure:"baudrate" json:"baudrate"`
	ByteSize         int           `mapstructure:"bytesize" json:"bytesize"`
	Parity           string        `mapstructure:"parity" json:"parity"`
	StopBits         float64       `mapstructure:"stopbits" json:"stopbits"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	XonXoff          bool          `mapstructure:"xonxoff" json:"xonxoff"`
	RtsCts           bool          `mapstructure:"rtscts" json:"rtscts"`
	DsrDtr           bool          `mapstructure:"dsrdtr" json:"dsrdtr"`
	InterByteTimeout time.Duration `mapstructure:"inter_byte_timeout" json:"inter_byte_timeout"`

	// Socket
	Protocol string `mapstructure:"protocol" json:"protocol"`

	// HTTP
	User      string            `mapstructure:"user" json:"user"`
	Password  string            `mapstructure:"password" json:"-"`
	Schema    string            `mapstructure:"schema" json:"schema"`
	VerifySSL bool              `mapstructure:"verify_ssl" json:"verify_ssl"`
	Headers   map[string]string `mapstructure:"headers" json:"headers,omitempty"`

	// USB
	VendorID    string `mapstructure:"vendor_id" json:"vendor_id"`
	ProductID   string `mapstructure:"product_id" json:"product_id"`
	Interface   int    `mapstructure:"interface" json:"interface"`
	InEndpoint  int    `mapstructure:"in_endpoint" json:"in_endpoint"`
	OutEndpoint int    `mapstructure:"out_endpoint" json:"out_endpoint"`
}

var commonDefaults = Params{
	"address":             "",
	"port":                "",
	"encoding":            "UTF-8",
	"command_delay":       0.5,
	"receive_buffer_size": 128,
	"receive_timeout":     1,
	"transmit_timeout":    1,
	"receiving_interval":  0.05,
}

var modeDefaults = map[model.ConnectionMode]Params{
	model.ConnectionModeSerial: {
		"write_timeout":      0.5,
		"baudrate":           9600,
		"bytesize":           8,
		"parity":             "none",
		"stopbits":           1,
		"xonxoff":            false,
		"rtscts":             false,
		"dsrdtr":             false,
		"inter_byte_timeout": 0,
	},
	model.ConnectionModeTCPIP: {
		"protocol": "TCP",
	},
	model.ConnectionModeHTTP: {
		"user":       "",
		"password":   "",
		"schema":     "http",
		"verify_ssl": true,
		"headers":    map[string]string{},
	},
	model.ConnectionModeUSB: {
		"vendor_id":    "",
		"product_id":   "",
		"interface":    0,
		"in_endpoint":  1,
		"out_endpoint": 1,
	},
}

// DefaultParams returns the full default option set for a connection mode
func DefaultParams(mode model.ConnectionMode) Params {
	return MergeParams(commonDefaults, modeDefaults[mode])
}

// MergeParams returns a new set with every default key, replaced by the
// override where one is given. Neither input is modified.
func MergeParams(defaults, overrides Params) Params {
	merged := make(Params, len(defaults)+len(overrides))
	for key, value := range defaults {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[strings.ToLower(key)] = value
	}
	return merged
}

// DecodeConfig turns merged parameters into a typed Config.
// Unknown keys are ignored.
func DecodeConfig(params Params) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(secondsToDurationHook, emptyStringToMapHook),
		WeaklyTypedInput: true,
		Result:           &cfg,
		TagName:          "mapstructure",
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(map[string]interface{}(params)); err != nil {
		return cfg, fmt.Errorf("invalid connection parameters: %w", err)
	}
	return cfg, nil
}

// secondsToDurationHook accepts plain numbers as seconds and Go duration strings
func secondsToDurationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case float32:
		return time.Duration(float64(v) * float64(time.Second)), nil
	case bool:
		// false disables the timeout
		return time.Duration(0), nil
	case string:
		if v == "" {
			return time.Duration(0), nil
		}
		if seconds, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(seconds * float64(time.Second)), nil
		}
		return time.ParseDuration(v)
	}
	return data, nil
}

func emptyStringToMapHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.Map || from.Kind() != reflect.String {
		return data, nil
	}
	if reflect.ValueOf(data).String() == "" {
		return map[string]string{}, nil
	}
	return data, nil
}

// require fails with ErrConnection when any of the named options is empty
func (c Config) require(names ...string) error {
	var missing []string
	for _, name := range names {
		var empty bool
		switch name {
		case "address":
			empty = c.Address == ""
		case "port":
			empty = c.Port == ""
		case "vendor_id":
			empty = c.VendorID == ""
		case "product_id":
			empty = c.ProductID == ""
		}
		if empty {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return connectionError("missing required connection parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}
