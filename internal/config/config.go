// Package config provides configuration management for the Votely application.
// It handles loading configuration from YAML files, applying environment variable
// and command line flag overrides, and validating configuration values for server,
// database, JWT, SMTP, mailer, logging, and security settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Phone    PhoneConfig    `yaml:"phone"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
	TLSCert      string        `yaml:"tls_cert"`
	TLSKey       string        `yaml:"tls_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// JWTConfig holds JWT authentication configuration.
// BallotExpiration bounds the lifetime of single-use voter ballot sessions.
type JWTConfig struct {
	Secret           string        `yaml:"secret"`
	Expiration       time.Duration `yaml:"expiration"`
	BallotExpiration time.Duration `yaml:"ballot_expiration"`
	Issuer           string        `yaml:"issuer"`
}

// SMTPConfig holds outbound email transport configuration
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// MailerConfig holds notification dispatch configuration. Workers is only the
// bootstrap default; the effective pool size is persisted in the database and
// hot-reloadable at runtime.
type MailerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// PhoneConfig holds phone-identity verifier configuration
type PhoneConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSEnabled bool          `yaml:"cors_enabled"`
	CORSOrigins []string      `yaml:"cors_origins"`
	OTPTTL      time.Duration `yaml:"otp_ttl"`
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "votely.db"},
			Postgres: PostgresConfig{
				Port:         5432,
				SSLMode:      "disable",
				MaxOpenConns: 25,
				MaxIdleConns: 5,
			},
		},
		JWT: JWTConfig{
			Expiration:       12 * time.Hour,
			BallotExpiration: 15 * time.Minute,
			Issuer:           "votely",
		},
		SMTP: SMTPConfig{Port: 587},
		Mailer: MailerConfig{
			Workers:   5,
			QueueSize: 256,
		},
		Phone: PhoneConfig{Timeout: 10 * time.Second},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Security: SecurityConfig{
			OTPTTL: 10 * time.Minute,
		},
	}
}

// Load reads the configuration file, then applies environment variable and
// command line flag overrides, in that order. A missing config file is not an
// error; defaults plus overrides apply.
func Load(path string, flags *Flags) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if flags != nil {
		cfg.applyFlagOverrides(flags)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	// Server overrides
	if port := os.Getenv("VOTELY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("VOTELY_SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	// Database overrides
	if dbType := os.Getenv("VOTELY_DB_TYPE"); dbType != "" {
		c.Database.Type = dbType
	}
	if dbPath := os.Getenv("VOTELY_DB_SQLITE_PATH"); dbPath != "" {
		c.Database.SQLite.Path = dbPath
	}
	if pgHost := os.Getenv("VOTELY_DB_POSTGRES_HOST"); pgHost != "" {
		c.Database.Postgres.Host = pgHost
	}
	if pgPort := os.Getenv("VOTELY_DB_POSTGRES_PORT"); pgPort != "" {
		if p, err := strconv.Atoi(pgPort); err == nil {
			c.Database.Postgres.Port = p
		}
	}
	if pgDB := os.Getenv("VOTELY_DB_POSTGRES_DATABASE"); pgDB != "" {
		c.Database.Postgres.Database = pgDB
	}
	if pgUser := os.Getenv("VOTELY_DB_POSTGRES_USER"); pgUser != "" {
		c.Database.Postgres.User = pgUser
	}
	if pgPass := os.Getenv("VOTELY_DB_POSTGRES_PASSWORD"); pgPass != "" {
		c.Database.Postgres.Password = pgPass
	}

	// JWT overrides
	if jwtSecret := os.Getenv("VOTELY_JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	// SMTP overrides
	if smtpHost := os.Getenv("VOTELY_SMTP_HOST"); smtpHost != "" {
		c.SMTP.Host = smtpHost
	}
	if smtpPort := os.Getenv("VOTELY_SMTP_PORT"); smtpPort != "" {
		if p, err := strconv.Atoi(smtpPort); err == nil {
			c.SMTP.Port = p
		}
	}
	if smtpUser := os.Getenv("VOTELY_SMTP_USERNAME"); smtpUser != "" {
		c.SMTP.Username = smtpUser
	}
	if smtpPass := os.Getenv("VOTELY_SMTP_PASSWORD"); smtpPass != "" {
		c.SMTP.Password = smtpPass
	}
	if smtpFrom := os.Getenv("VOTELY_SMTP_FROM"); smtpFrom != "" {
		c.SMTP.From = smtpFrom
	}

	// Phone verifier overrides
	if key := os.Getenv("VOTELY_PHONE_API_KEY"); key != "" {
		c.Phone.APIKey = key
	}

	// Logging overrides
	if logLevel := os.Getenv("VOTELY_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// applyFlagOverrides applies command line flag overrides. Flags win over both
// the config file and environment variables.
func (c *Config) applyFlagOverrides(f *Flags) {
	if v, set := f.GetServerPort(); set {
		c.Server.Port = v
	}
	if v, set := f.GetServerHost(); set {
		c.Server.Host = v
	}
	if v, set := f.GetDBType(); set {
		c.Database.Type = v
	}
	if v, set := f.GetDBSQLitePath(); set {
		c.Database.SQLite.Path = v
	}
	if v, set := f.GetDBPostgresHost(); set {
		c.Database.Postgres.Host = v
	}
	if v, set := f.GetDBPostgresPort(); set {
		c.Database.Postgres.Port = v
	}
	if v, set := f.GetDBPostgresDatabase(); set {
		c.Database.Postgres.Database = v
	}
	if v, set := f.GetDBPostgresUser(); set {
		c.Database.Postgres.User = v
	}
	if v, set := f.GetDBPostgresPassword(); set {
		c.Database.Postgres.Password = v
	}
	if v, set := f.GetJWTSecret(); set {
		c.JWT.Secret = v
	}
	if v, set := f.GetSMTPHost(); set {
		c.SMTP.Host = v
	}
	if v, set := f.GetSMTPPort(); set {
		c.SMTP.Port = v
	}
	if v, set := f.GetSMTPFrom(); set {
		c.SMTP.From = v
	}
	if v, set := f.GetMailerWorkers(); set {
		c.Mailer.Workers = v
	}
	if v, set := f.GetLogLevel(); set {
		c.Logging.Level = v
	}
	if v, set := f.GetLogFormat(); set {
		c.Logging.Format = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCert == "" || c.Server.TLSKey == "" {
			return fmt.Errorf("TLS enabled but cert or key not specified")
		}
	}

	// Validate database config
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("invalid database type: %s (must be 'sqlite' or 'postgres')", c.Database.Type)
	}
	if c.Database.Type == "sqlite" && c.Database.SQLite.Path == "" {
		return fmt.Errorf("SQLite path not specified")
	}
	if c.Database.Type == "postgres" {
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return fmt.Errorf("PostgreSQL host and database must be specified")
		}
	}

	// Validate mailer config
	if c.Mailer.Workers < 1 {
		return fmt.Errorf("mailer workers must be at least 1")
	}
	if c.Mailer.QueueSize < 1 {
		return fmt.Errorf("mailer queue size must be at least 1")
	}

	if c.Security.OTPTTL <= 0 {
		return fmt.Errorf("OTP TTL must be positive")
	}

	// Validate logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the database connection string based on the configured type
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}
