package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 612.0, cfg.PDFReferenceWidth)
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load([]string{
		"--database-url=postgres://localhost/advisordesk",
		"--port=9090",
		"--autosave-interval=1m",
		"--pdf-reference-width=595",
	})
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/advisordesk", cfg.DatabaseURL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, time.Minute, cfg.AutosaveInterval)
	assert.Equal(t, 595.0, cfg.PDFReferenceWidth)
	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
}

func TestLoad_MigrateDown(t *testing.T) {
	cfg, err := Load([]string{"--database-url=postgres://localhost/advisordesk"})
	require.NoError(t, err)
	assert.False(t, cfg.MigrateDown)

	cfg, err = Load([]string{"--database-url=postgres://localhost/advisordesk", "--migrate-down"})
	require.NoError(t, err)
	assert.True(t, cfg.MigrateDown)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ADVISORDESK_DATABASE_URL", "postgres://env/advisordesk")
	t.Setenv("ADVISORDESK_ENV", "production")
	t.Setenv("ADVISORDESK_ESIGN_URL", "https://esign.example.com")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/advisordesk", cfg.DatabaseURL)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.ESignEnabled())
}

func TestLoad_FlagBeatsEnvironment(t *testing.T) {
	t.Setenv("ADVISORDESK_DATABASE_URL", "postgres://env/advisordesk")
	t.Setenv("ADVISORDESK_PORT", "7000")

	cfg, err := Load([]string{"--port=7001"})
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"--nope"})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.DatabaseURL = "postgres://localhost/advisordesk"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"port too low", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"bad env", func(c *Config) { c.Env = "staging" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"no database", func(c *Config) { c.DatabaseURL = "" }, true},
		{"cert without key", func(c *Config) { c.TLSCert = "cert.pem" }, true},
		{"cert and key", func(c *Config) { c.TLSCert, c.TLSKey = "cert.pem", "key.pem" }, false},
		{"zero autosave", func(c *Config) { c.AutosaveInterval = 0 }, true},
		{"zero session idle", func(c *Config) { c.SessionIdle = 0 }, true},
		{"negative reference width", func(c *Config) { c.PDFReferenceWidth = -1 }, true},
		{"zero upload size", func(c *Config) { c.MaxUploadSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
