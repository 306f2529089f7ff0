package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Duplicate DuplicateConfig `mapstructure:"duplicate"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Driver    DriverConfig    `mapstructure:"driver"`
	Session   SessionConfig   `mapstructure:"session"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig holds queue store configuration. Path, when set, pins the
// database to a single location and disables the fallback search.
type StoreConfig struct {
	Path         string        `mapstructure:"path"`
	DirName      string        `mapstructure:"dir_name"`
	FileName     string        `mapstructure:"file_name"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// DispatchConfig holds the pacing intervals of the dispatch loop
type DispatchConfig struct {
	IdleInterval  time.Duration `mapstructure:"idle_interval"`
	PreSendDelay  time.Duration `mapstructure:"pre_send_delay"`
	PostSendDelay time.Duration `mapstructure:"post_send_delay"`
	ErrorBackoff  time.Duration `mapstructure:"error_backoff"`
	AutoStart     bool          `mapstructure:"auto_start"`
}

// DuplicateConfig holds duplicate suppression configuration. A window of 0
// disables the check entirely.
type DuplicateConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// AuditConfig holds audit ledger configuration
type AuditConfig struct {
	Dir string `mapstructure:"dir"`
}

// DriverConfig holds delivery driver (automation sidecar) configuration
type DriverConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// SessionConfig holds session monitor configuration
type SessionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("store.path", "")
	viper.SetDefault("store.dir_name", "whatsapp-dispatch")
	viper.SetDefault("store.file_name", "messages.sqlite")
	viper.SetDefault("store.stale_after", "10m")
	viper.SetDefault("store.max_attempts", 3)

	viper.SetDefault("dispatch.idle_interval", "3s")
	viper.SetDefault("dispatch.pre_send_delay", "2s")
	viper.SetDefault("dispatch.post_send_delay", "3s")
	viper.SetDefault("dispatch.error_backoff", "5s")
	viper.SetDefault("dispatch.auto_start", true)

	viper.SetDefault("duplicate.window", "60s")

	viper.SetDefault("audit.dir", ".")

	viper.SetDefault("driver.base_url", "http://localhost:9400")
	viper.SetDefault("driver.send_timeout", "60s")
	viper.SetDefault("driver.probe_timeout", "2s")

	viper.SetDefault("session.poll_interval", "3s")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Store
	viper.BindEnv("store.path", "STORE_PATH")
	viper.BindEnv("store.dir_name", "STORE_DIR_NAME")
	viper.BindEnv("store.file_name", "STORE_FILE_NAME")
	viper.BindEnv("store.stale_after", "STORE_STALE_AFTER")
	viper.BindEnv("store.max_attempts", "STORE_MAX_ATTEMPTS")

	// Dispatch
	viper.BindEnv("dispatch.idle_interval", "DISPATCH_IDLE_INTERVAL")
	viper.BindEnv("dispatch.pre_send_delay", "DISPATCH_PRE_SEND_DELAY")
	viper.BindEnv("dispatch.post_send_delay", "DISPATCH_POST_SEND_DELAY")
	viper.BindEnv("dispatch.error_backoff", "DISPATCH_ERROR_BACKOFF")
	viper.BindEnv("dispatch.auto_start", "DISPATCH_AUTO_START")

	// Duplicate suppression
	viper.BindEnv("duplicate.window", "DUPLICATE_WINDOW")

	// Audit
	viper.BindEnv("audit.dir", "AUDIT_DIR")

	// Driver
	viper.BindEnv("driver.base_url", "DRIVER_BASE_URL")
	viper.BindEnv("driver.send_timeout", "DRIVER_SEND_TIMEOUT")
	viper.BindEnv("driver.probe_timeout", "DRIVER_PROBE_TIMEOUT")

	// Session
	viper.BindEnv("session.poll_interval", "SESSION_POLL_INTERVAL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Store.FileName == "" {
		return fmt.Errorf("store file name is required")
	}
	if c.Store.Path == "" && c.Store.DirName == "" {
		return fmt.Errorf("store dir name is required when no explicit path is set")
	}
	if c.Store.MaxAttempts <= 0 {
		return fmt.Errorf("store max attempts must be greater than 0")
	}

	if c.Dispatch.IdleInterval <= 0 {
		return fmt.Errorf("dispatch idle interval must be greater than 0")
	}
	if c.Dispatch.PreSendDelay < 0 || c.Dispatch.PostSendDelay < 0 {
		return fmt.Errorf("dispatch delays must not be negative")
	}
	if c.Dispatch.ErrorBackoff <= 0 {
		return fmt.Errorf("dispatch error backoff must be greater than 0")
	}

	if c.Duplicate.Window < 0 {
		return fmt.Errorf("duplicate window must not be negative")
	}

	if c.Driver.BaseURL == "" {
		return fmt.Errorf("driver base URL is required")
	}

	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session poll interval must be greater than 0")
	}

	return nil
}
