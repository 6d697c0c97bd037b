// internal/driver/formatter.go
package driver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"labware-service/internal/protocol"
	"labware-service/pkg/driver"
)

// MessageFormatter turns a command and its checked value into a wire message.
// value is nil when the command carries no argument.
type MessageFormatter interface {
	Format(cmd *driver.Command, value interface{}) (protocol.Message, error)
}

// TextFormatter builds prefix + name [+ delimiter + value] + terminator
type TextFormatter struct {
	Framing driver.Framing
}

func (f TextFormatter) Format(cmd *driver.Command, value interface{}) (protocol.Message, error) {
	var b strings.Builder
	b.WriteString(f.Framing.CommandPrefix)
	b.WriteString(cmd.Name)
	if value != nil {
		b.WriteString(f.Framing.ArgsDelimiter)
		b.WriteString(driver.FormatValue(value))
	}
	b.WriteString(f.Framing.CommandTerminator)
	return protocol.Message{Text: b.String()}, nil
}

// JSONPathFormatter builds REST requests whose payload nests the value
// under the command's path, e.g. path [heating set] -> {"heating":{"set":v}}
type JSONPathFormatter struct {
	Logger *zap.Logger
}

func (f JSONPathFormatter) Format(cmd *driver.Command, value interface{}) (protocol.Message, error) {
	msg := protocol.Message{
		Method:   strings.ToUpper(cmd.Method),
		Endpoint: cmd.Endpoint,
	}

	if msg.Method == http.MethodGet {
		if value != nil && f.Logger != nil {
			f.Logger.Warn("GET request with a non-empty payload, dropping it",
				zap.String("command", cmd.Name),
				zap.Any("value", value),
			)
		}
		return msg, nil
	}
	if value == nil {
		return msg, nil
	}
	if len(cmd.Path) == 0 {
		return msg, fmt.Errorf("%w: %s: no JSON path to place the value at", driver.ErrInvalidCommand, cmd.Name)
	}

	var payload interface{} = jsonValue(value)
	for i := len(cmd.Path) - 1; i >= 0; i-- {
		payload = map[string]interface{}{cmd.Path[i]: payload}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return msg, driver.CommandError("%s: can't encode payload: %v", cmd.Name, err)
	}
	msg.Data = string(data)
	return msg, nil
}

// jsonValue keeps decimals numeric in the payload
func jsonValue(v interface{}) interface{} {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}
