// Package config loads AdvisorDesk settings from command line flags and
// ADVISORDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultPort              = 8080
	DefaultHost              = "0.0.0.0"
	DefaultLogLevel          = "info"
	DefaultMigrationsDir     = "migrations"
	DefaultStorageDir        = "data/files"
	DefaultStorageURL        = "/files"
	DefaultTemplatesDir      = "web/templates"
	DefaultAutosaveInterval  = 30 * time.Second
	DefaultSessionIdle       = 2 * time.Hour
	DefaultPDFReferenceWidth = 612.0
	DefaultMaxUploadSize     = 20 * 1024 * 1024 // 20MB

	envPrefix = "ADVISORDESK"
)

// Config holds all configuration for the AdvisorDesk server.
type Config struct {
	// Server
	Host     string
	Port     int
	Env      string
	LogLevel string
	TLSCert  string
	TLSKey   string

	// Storage
	DatabaseURL   string
	MigrationsDir string
	MigrateDown   bool
	StorageDir    string
	StorageURL    string
	MaxUploadSize int64

	// E-signature provider
	ESignURL          string
	ESignTokenURL     string
	ESignClientID     string
	ESignClientSecret string
	ESignAccount      string

	// Forms
	TemplatesDir      string
	AutosaveInterval  time.Duration
	SessionIdle       time.Duration
	PDFReferenceWidth float64
}

// DefaultConfig returns a configuration with development defaults. The
// database URL has no default.
func DefaultConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Env:               EnvDevelopment,
		LogLevel:          DefaultLogLevel,
		MigrationsDir:     DefaultMigrationsDir,
		StorageDir:        DefaultStorageDir,
		StorageURL:        DefaultStorageURL,
		MaxUploadSize:     DefaultMaxUploadSize,
		TemplatesDir:      DefaultTemplatesDir,
		AutosaveInterval:  DefaultAutosaveInterval,
		SessionIdle:       DefaultSessionIdle,
		PDFReferenceWidth: DefaultPDFReferenceWidth,
	}
}

// LoadFromFlags parses os.Args and the environment.
func LoadFromFlags() (*Config, error) {
	return Load(os.Args[1:])
}

// Load parses args and the environment into a validated Config. Flags win
// over environment variables, which win over defaults.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setupViperEnvironment(v, cfg)

	fs := pflag.NewFlagSet("advisordesk", pflag.ContinueOnError)
	defineCommandLineFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	populateConfigFromViper(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupViperEnvironment maps ADVISORDESK_DATABASE_URL style variables onto
// the dashed flag names and registers defaults.
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("env", cfg.Env)
	v.SetDefault("loglevel", cfg.LogLevel)
	v.SetDefault("migrations", cfg.MigrationsDir)
	v.SetDefault("storage-dir", cfg.StorageDir)
	v.SetDefault("storage-url", cfg.StorageURL)
	v.SetDefault("max-upload-size", cfg.MaxUploadSize)
	v.SetDefault("templates-dir", cfg.TemplatesDir)
	v.SetDefault("autosave-interval", cfg.AutosaveInterval)
	v.SetDefault("session-idle", cfg.SessionIdle)
	v.SetDefault("pdf-reference-width", cfg.PDFReferenceWidth)
}

func defineCommandLineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("host", cfg.Host, "Server host address")
	fs.Int("port", cfg.Port, "Server port")
	fs.String("env", cfg.Env, "Environment: development or production")
	fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("tls-cert", "", "TLS certificate file (enables HTTPS with --tls-key)")
	fs.String("tls-key", "", "TLS private key file")
	fs.String("database-url", "", "PostgreSQL connection string")
	fs.String("migrations", cfg.MigrationsDir, "Directory holding SQL migrations")
	fs.Bool("migrate-down", false, "Roll back the most recent migration and exit")
	fs.String("storage-dir", cfg.StorageDir, "Directory for uploaded files")
	fs.String("storage-url", cfg.StorageURL, "URL prefix uploaded files are served under")
	fs.Int64("max-upload-size", cfg.MaxUploadSize, "Maximum upload size in bytes")
	fs.String("esign-url", "", "E-signature provider API base URL")
	fs.String("esign-token-url", "", "E-signature provider OAuth2 token URL")
	fs.String("esign-client-id", "", "E-signature provider client id")
	fs.String("esign-client-secret", "", "E-signature provider client secret")
	fs.String("esign-account", "", "E-signature provider account id")
	fs.String("templates-dir", cfg.TemplatesDir, "HTML templates directory")
	fs.Duration("autosave-interval", cfg.AutosaveInterval, "Template draft autosave interval")
	fs.Duration("session-idle", cfg.SessionIdle, "Idle time after which a form session is dropped")
	fs.Float64("pdf-reference-width", cfg.PDFReferenceWidth, "PDF width in points the overlay editor scales against")
}

func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.Env = v.GetString("env")
	cfg.LogLevel = v.GetString("loglevel")
	cfg.TLSCert = v.GetString("tls-cert")
	cfg.TLSKey = v.GetString("tls-key")
	cfg.DatabaseURL = v.GetString("database-url")
	cfg.MigrationsDir = v.GetString("migrations")
	cfg.MigrateDown = v.GetBool("migrate-down")
	cfg.StorageDir = v.GetString("storage-dir")
	cfg.StorageURL = v.GetString("storage-url")
	cfg.MaxUploadSize = v.GetInt64("max-upload-size")
	cfg.ESignURL = v.GetString("esign-url")
	cfg.ESignTokenURL = v.GetString("esign-token-url")
	cfg.ESignClientID = v.GetString("esign-client-id")
	cfg.ESignClientSecret = v.GetString("esign-client-secret")
	cfg.ESignAccount = v.GetString("esign-account")
	cfg.TemplatesDir = v.GetString("templates-dir")
	cfg.AutosaveInterval = v.GetDuration("autosave-interval")
	cfg.SessionIdle = v.GetDuration("session-idle")
	cfg.PDFReferenceWidth = v.GetFloat64("pdf-reference-width")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("invalid env: %s (must be development or production)", c.Env)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.DatabaseURL == "" {
		return errors.New("database URL cannot be empty")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	if c.MaxUploadSize <= 0 {
		return errors.New("maximum upload size must be positive")
	}
	if c.AutosaveInterval <= 0 {
		return errors.New("autosave interval must be positive")
	}
	if c.SessionIdle <= 0 {
		return errors.New("session idle timeout must be positive")
	}
	if c.PDFReferenceWidth <= 0 {
		return errors.New("PDF reference width must be positive")
	}
	return nil
}

// Address returns the server address as host:port.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// ESignEnabled reports whether the e-signature provider is configured.
func (c *Config) ESignEnabled() bool {
	return c.ESignURL != ""
}
