// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"labware-service/internal/driver"
	"labware-service/internal/model"
	"labware-service/internal/protocol"
	pkgdriver "labware-service/pkg/driver"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Journal   JournalConfig   `mapstructure:"journal"`
	App       AppConfig       `mapstructure:"app"`
	Devices   []DeviceConfig  `mapstructure:"devices"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents database configuration. The journal falls back
// to memory when disabled.
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	// Migrations is a golang-migrate source URL; empty uses the built-in files
	Migrations   string        `mapstructure:"migrations"`
}

// NATSConfig controls publishing of background task results
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Name          string        `mapstructure:"name"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

// MetricsConfig represents Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DiscoveryConfig controls serial and USB enumeration
type DiscoveryConfig struct {
	Serial bool `mapstructure:"serial"`
	USB    bool `mapstructure:"usb"`
}

// JournalConfig sizes the in-memory command journal
type JournalConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// DeviceConfig describes one configured instrument
type DeviceConfig struct {
	Name        string                     `mapstructure:"name"`
	Driver      string                     `mapstructure:"driver"`
	Simulation  bool                       `mapstructure:"simulation"`
	AutoConnect bool                       `mapstructure:"auto_connect"`
	Connection  ConnectionConfig           `mapstructure:"connection"`
	Framing     pkgdriver.FramingOverrides `mapstructure:"framing"`

	// CommandTable is a YAML file; Commands are inline entries merged over it
	CommandTable     string                       `mapstructure:"command_table"`
	Commands         map[string]pkgdriver.Command `mapstructure:"commands"`
	SimulatedReplies map[string]string            `mapstructure:"simulated_replies"`
	MaxReplySize     int                          `mapstructure:"max_reply_size"`
	ReceiveRetries   int                          `mapstructure:"receive_retries"`
	Tasks            []TaskConfig                 `mapstructure:"tasks"`
}

// ConnectionConfig is a transport mode plus free-form parameters merged
// over the mode defaults
type ConnectionConfig struct {
	Mode   string                 `mapstructure:"mode"`
	Params map[string]interface{} `mapstructure:"params"`
}

// TaskConfig is a polling task started when the device connects
type TaskConfig struct {
	Command  string        `mapstructure:"command"`
	Interval time.Duration `mapstructure:"interval"`
	Value    interface{}   `mapstructure:"value"`
}

// Load loads configuration from path, or from the search paths when path
// is empty, and from environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/labware-service")
	}

	// Environment variable support
	v.SetEnvPrefix("LABWARE_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "labware_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations", "")

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "labware")
	v.SetDefault("nats.name", "labware-service")
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.max_reconnects", -1)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "labware")

	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("discovery.serial", true)
	v.SetDefault("discovery.usb", true)

	v.SetDefault("journal.capacity", 1000)

	// App defaults
	v.SetDefault("app.name", "labware-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when the database is enabled")
	}
	if config.NATS.Enabled && config.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	seen := make(map[string]bool, len(config.Devices))
	for i, d := range config.Devices {
		if d.Name == "" {
			return fmt.Errorf("devices[%d].name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("devices[%d]: duplicate device name %q", i, d.Name)
		}
		seen[d.Name] = true

		if d.Driver == "" {
			return fmt.Errorf("devices[%d] (%s): driver is required", i, d.Name)
		}
		if d.Connection.Mode != "" && !model.ConnectionMode(d.Connection.Mode).Valid() {
			return fmt.Errorf("devices[%d] (%s): unknown connection mode %q", i, d.Name, d.Connection.Mode)
		}
		for j, t := range d.Tasks {
			if t.Command == "" || t.Interval <= 0 {
				return fmt.Errorf("devices[%d] (%s): tasks[%d] needs a command and a positive interval", i, d.Name, j)
			}
		}
	}

	return nil
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// Settings converts the entry into driver settings. Command keys are
// upper-cased since viper folds map keys to lower case.
func (d DeviceConfig) Settings() driver.Settings {
	var commands map[string]pkgdriver.Command
	if len(d.Commands) > 0 {
		commands = make(map[string]pkgdriver.Command, len(d.Commands))
		for key, cmd := range d.Commands {
			commands[strings.ToUpper(key)] = cmd
		}
	}
	var replies map[string]string
	if len(d.SimulatedReplies) > 0 {
		replies = make(map[string]string, len(d.SimulatedReplies))
		for key, reply := range d.SimulatedReplies {
			replies[strings.ToUpper(key)] = reply
		}
	}

	return driver.Settings{
		Name:             d.Name,
		Driver:           d.Driver,
		Mode:             model.ConnectionMode(d.Connection.Mode),
		Params:           protocol.Params(d.Connection.Params),
		Simulation:       d.Simulation,
		Framing:          d.Framing,
		CommandTable:     d.CommandTable,
		Commands:         commands,
		SimulatedReplies: replies,
		MaxReplySize:     d.MaxReplySize,
		ReceiveRetries:   d.ReceiveRetries,
	}
}

// Device returns the entry for name
func (c *Config) Device(name string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
