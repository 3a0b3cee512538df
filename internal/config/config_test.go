package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 5, cfg.Mailer.Workers)
	assert.Equal(t, 15*time.Minute, cfg.JWT.BallotExpiration)
	assert.Equal(t, 10*time.Minute, cfg.Security.OTPTTL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"), nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votely.yml")
	data := `
server:
  port: 9090
jwt:
  secret: "file-secret"
  expiration: 2h
mailer:
  workers: 3
security:
  otp_ttl: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 3, cfg.Mailer.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Security.OTPTTL)
	// Untouched sections keep their defaults
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votely.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votely.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("VOTELY_SERVER_PORT", "7070")
	t.Setenv("VOTELY_JWT_SECRET", "env-secret")
	t.Setenv("VOTELY_LOG_LEVEL", "debug")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"tls without cert", func(c *Config) { c.Server.TLSEnabled = true }},
		{"unknown db type", func(c *Config) { c.Database.Type = "oracle" }},
		{"sqlite without path", func(c *Config) { c.Database.SQLite.Path = "" }},
		{"postgres without host", func(c *Config) { c.Database.Type = "postgres" }},
		{"zero mailer workers", func(c *Config) { c.Mailer.Workers = 0 }},
		{"zero queue size", func(c *Config) { c.Mailer.QueueSize = 0 }},
		{"zero otp ttl", func(c *Config) { c.Security.OTPTTL = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.SQLite.Path = "/tmp/votely.db"
	assert.Equal(t, "/tmp/votely.db", cfg.GetDSN())

	cfg.Database.Type = "postgres"
	cfg.Database.Postgres.Host = "db.internal"
	cfg.Database.Postgres.User = "votely"
	cfg.Database.Postgres.Password = "secret"
	cfg.Database.Postgres.Database = "votely"
	assert.Equal(t,
		"host=db.internal port=5432 user=votely password=secret dbname=votely sslmode=disable",
		cfg.GetDSN())
}
