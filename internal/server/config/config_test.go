package config

import (
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/blockstore"
	"github.com/Scille/parsec-cloud-sub009/internal/server/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1", c.Host)
	assert.Equal(t, 6777, c.Port)
	assert.Equal(t, "127.0.0.1:6777", c.Addr())
	assert.True(t, c.InMemory())
	assert.Equal(t, blockstore.TypeMocked, c.Blockstore.Type)
	assert.Equal(t, "parsec://localhost:6777", c.BackendAddr)
	assert.Equal(t, 30*time.Second, c.SSEKeepalive)
	assert.Equal(t, 1000, c.EventsRetention)
	assert.Equal(t, 30*time.Second, c.SequesterWebhookTimeout)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "slog", c.LogBackend)
	assert.Empty(t, c.AdministrationToken)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	t.Chdir(t.TempDir())

	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want, *c)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "postgres database with postgres blockstore", mutate: func(c *Config) {
			c.DatabaseURL = "postgres://localhost/parsec"
			c.Blockstore = blockstore.Config{Type: blockstore.TypePostgreSQL}
		}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: true},
		{name: "postgres blockstore on mocked database", mutate: func(c *Config) {
			c.Blockstore = blockstore.Config{Type: blockstore.TypePostgreSQL}
		}, wantErr: true},
		{name: "postgres raid node on mocked database", mutate: func(c *Config) {
			c.Blockstore = blockstore.Config{Type: blockstore.TypeRAID1, Nodes: []blockstore.Config{
				{Type: blockstore.TypeMocked}, {Type: blockstore.TypePostgreSQL},
			}}
		}, wantErr: true},
		{name: "min above max connections", mutate: func(c *Config) { c.DBMinConnections = 10 }, wantErr: true},
		{name: "no keepalive", mutate: func(c *Config) { c.SSEKeepalive = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}

func TestEmailConfig_Backend(t *testing.T) {
	assert.Equal(t, email.Config{}, EmailConfig{}.Backend())

	mocked := EmailConfig{Host: "mocked", Sender: "no-reply@parsec.example.com", TmpDir: "/tmp/mails"}.Backend()
	assert.Equal(t, email.TypeMocked, mocked.Type)
	require.NotNil(t, mocked.Mocked)
	assert.Equal(t, "/tmp/mails", mocked.Mocked.TmpDir)
	assert.Equal(t, "no-reply@parsec.example.com", mocked.Mocked.Sender)

	smtp := EmailConfig{Host: "smtp.example.com", Port: 587, UseTLS: true, HostUser: "u", HostPassword: "p", Sender: "s@example.com"}.Backend()
	assert.Equal(t, email.TypeSMTP, smtp.Type)
	assert.Equal(t, &email.SMTPConfig{
		Host: "smtp.example.com", Port: 587, UseTLS: true, HostUser: "u", HostPassword: "p", Sender: "s@example.com",
	}, smtp.SMTP)
}
