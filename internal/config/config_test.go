package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8000", ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second},
		Store: StoreConfig{
			DirName:     "whatsapp-dispatch",
			FileName:    "messages.sqlite",
			StaleAfter:  10 * time.Minute,
			MaxAttempts: 3,
		},
		Dispatch: DispatchConfig{
			IdleInterval:  3 * time.Second,
			PreSendDelay:  2 * time.Second,
			PostSendDelay: 3 * time.Second,
			ErrorBackoff:  5 * time.Second,
			AutoStart:     true,
		},
		Duplicate: DuplicateConfig{Window: 60 * time.Second},
		Audit:     AuditConfig{Dir: "."},
		Driver:    DriverConfig{BaseURL: "http://localhost:9400", SendTimeout: 60 * time.Second, ProbeTimeout: 2 * time.Second},
		Session:   SessionConfig{PollInterval: 3 * time.Second},
	}
}

func TestDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setDefaults()

	var cfg Config
	require.NoError(t, viper.Unmarshal(&cfg))

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "whatsapp-dispatch", cfg.Store.DirName)
	assert.Equal(t, "messages.sqlite", cfg.Store.FileName)
	assert.Equal(t, 3, cfg.Store.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.IdleInterval)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.PreSendDelay)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.PostSendDelay)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.ErrorBackoff)
	assert.True(t, cfg.Dispatch.AutoStart)
	assert.Equal(t, 60*time.Second, cfg.Duplicate.Window)
	assert.Equal(t, "http://localhost:9400", cfg.Driver.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Session.PollInterval)

	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("STORE_PATH", "/var/lib/dispatch/messages.sqlite")
	t.Setenv("DISPATCH_AUTO_START", "false")
	t.Setenv("DUPLICATE_WINDOW", "90s")

	setDefaults()
	bindEnvVars()

	var cfg Config
	require.NoError(t, viper.Unmarshal(&cfg))

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "/var/lib/dispatch/messages.sqlite", cfg.Store.Path)
	assert.False(t, cfg.Dispatch.AutoStart)
	assert.Equal(t, 90*time.Second, cfg.Duplicate.Window)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"missing file name", func(c *Config) { c.Store.FileName = "" }, "store file name is required"},
		{
			"missing dir name without explicit path",
			func(c *Config) { c.Store.DirName = "" },
			"store dir name is required",
		},
		{
			"explicit path makes dir name optional",
			func(c *Config) { c.Store.DirName = ""; c.Store.Path = "/tmp/q.sqlite" },
			"",
		},
		{"zero max attempts", func(c *Config) { c.Store.MaxAttempts = 0 }, "max attempts must be greater than 0"},
		{"zero idle interval", func(c *Config) { c.Dispatch.IdleInterval = 0 }, "idle interval must be greater than 0"},
		{"negative pre-send delay", func(c *Config) { c.Dispatch.PreSendDelay = -time.Second }, "must not be negative"},
		{"zero error backoff", func(c *Config) { c.Dispatch.ErrorBackoff = 0 }, "error backoff must be greater than 0"},
		{
			"zero duplicate window disables the check",
			func(c *Config) { c.Duplicate.Window = 0 },
			"",
		},
		{"negative duplicate window", func(c *Config) { c.Duplicate.Window = -time.Second }, "must not be negative"},
		{"missing driver base URL", func(c *Config) { c.Driver.BaseURL = "" }, "driver base URL is required"},
		{"zero poll interval", func(c *Config) { c.Session.PollInterval = 0 }, "poll interval must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
