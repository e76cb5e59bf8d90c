// Package config handles configuration for the server component,
// including defaults, JSON overlay, environment and command-line flags.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/blockstore"
	"github.com/Scille/parsec-cloud-sub009/internal/server/email"
)

// MockedDatabase selects the in-memory repositories.
const MockedDatabase = "MOCKED"

// EmailConfig is the flat form of the email settings. Host "MOCKED" writes
// emails to TmpDir instead of sending them; an empty Host disables email.
type EmailConfig struct {
	Host         string `json:"host" env:"PARSEC_EMAIL_HOST"`
	Port         int    `json:"port" env:"PARSEC_EMAIL_PORT"`
	HostUser     string `json:"host_user" env:"PARSEC_EMAIL_HOST_USER"`
	HostPassword string `json:"host_password" env:"PARSEC_EMAIL_HOST_PASSWORD"`
	UseSSL       bool   `json:"use_ssl" env:"PARSEC_EMAIL_USE_SSL"`
	UseTLS       bool   `json:"use_tls" env:"PARSEC_EMAIL_USE_TLS"`
	Sender       string `json:"sender" env:"PARSEC_EMAIL_SENDER"`
	TmpDir       string `json:"tmpdir" env:"PARSEC_EMAIL_TMPDIR"`
}

// Backend converts the settings to the email package config.
func (e EmailConfig) Backend() email.Config {
	switch {
	case e.Host == "":
		return email.Config{}
	case strings.EqualFold(e.Host, string(email.TypeMocked)):
		return email.Config{Type: email.TypeMocked, Mocked: &email.MockedConfig{Sender: e.Sender, TmpDir: e.TmpDir}}
	default:
		return email.Config{Type: email.TypeSMTP, SMTP: &email.SMTPConfig{
			Host:         e.Host,
			Port:         e.Port,
			UseSSL:       e.UseSSL,
			UseTLS:       e.UseTLS,
			HostUser:     e.HostUser,
			HostPassword: e.HostPassword,
			Sender:       e.Sender,
		}}
	}
}

// Config holds runtime settings for the server.
//
// Fields:
//   - Host / Port: listen address of the HTTP server.
//   - DatabaseURL: PostgreSQL DSN (pgx), or MOCKED for in-memory storage.
//   - Blockstore: where block payloads live, see blockstore.ParseConfig.
//   - AdministrationToken: bearer secret of the administration API.
//   - BackendAddr: public address used in invitation links.
//   - SSEKeepalive: idle delay before a keepalive comment on event streams.
//   - EventsRetention: events kept per organization for SSE resumption.
type Config struct {
	Host             string `env:"PARSEC_HOST"`
	Port             int    `env:"PARSEC_PORT"`
	DatabaseURL      string `env:"PARSEC_DB"`
	DBMinConnections int    `env:"PARSEC_DB_MIN_CONNECTIONS"`
	DBMaxConnections int    `env:"PARSEC_DB_MAX_CONNECTIONS"`

	Blockstore blockstore.Config `env:"PARSEC_BLOCKSTORE"`

	AdministrationToken              string `env:"PARSEC_ADMINISTRATION_TOKEN"`
	OrganizationSpontaneousBootstrap bool   `env:"PARSEC_SPONTANEOUS_ORGANIZATION_BOOTSTRAP"`
	OrganizationBootstrapWebhookURL  string `env:"PARSEC_ORGANIZATION_BOOTSTRAP_WEBHOOK"`

	Email       EmailConfig
	BackendAddr string `env:"PARSEC_BACKEND_ADDR"`

	SSEKeepalive            time.Duration `env:"PARSEC_SSE_KEEPALIVE"`
	EventsRetention         int           `env:"PARSEC_EVENTS_RETENTION"`
	SequesterWebhookTimeout time.Duration `env:"PARSEC_SEQUESTER_WEBHOOK_TIMEOUT"`

	LogLevel   string `env:"PARSEC_LOG_LEVEL"`
	LogBackend string `env:"PARSEC_LOG_BACKEND"`
	Debug      bool   `env:"PARSEC_DEBUG"`
}

// LoadDefaults populates Config with development defaults: in-memory
// database and blockstore, no administration token.
func (c *Config) LoadDefaults() {
	c.Host = "127.0.0.1"
	c.Port = 6777
	c.DatabaseURL = MockedDatabase
	c.DBMinConnections = 5
	c.DBMaxConnections = 7
	c.Blockstore = blockstore.Config{Type: blockstore.TypeMocked}
	c.BackendAddr = "parsec://localhost:6777"
	c.SSEKeepalive = 30 * time.Second
	c.EventsRetention = 1000
	c.SequesterWebhookTimeout = 30 * time.Second
	c.LogLevel = "info"
	c.LogBackend = "slog"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// InMemory reports whether the in-memory repositories are selected.
func (c *Config) InMemory() bool {
	return strings.EqualFold(c.DatabaseURL, MockedDatabase)
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.InMemory() && usesPostgres(c.Blockstore) {
		return fmt.Errorf("POSTGRESQL blockstore requires a postgres database")
	}
	if c.DBMinConnections > c.DBMaxConnections {
		return fmt.Errorf("db min connections (%d) above max connections (%d)", c.DBMinConnections, c.DBMaxConnections)
	}
	if c.SSEKeepalive <= 0 {
		return fmt.Errorf("sse keepalive must be positive")
	}
	return nil
}

func usesPostgres(cfg blockstore.Config) bool {
	if cfg.Type == blockstore.TypePostgreSQL {
		return true
	}
	for _, n := range cfg.Nodes {
		if usesPostgres(n) {
			return true
		}
	}
	return false
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the .env file and environment, and finally
// command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
