package config

import (
	"os"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/blockstore"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	defaults := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		expected    func() *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-host", "0.0.0.0", "-port", "9090", "-db", "postgres://db/parsec",
				"-db-min-connections", "2", "-db-max-connections", "20",
				"-blockstore", "raid5:0:MOCKED,raid5:1:MOCKED,raid5:2:MOCKED",
				"-administration-token", "secret", "-spontaneous-organization-bootstrap=true",
				"-organization-bootstrap-webhook", "https://hooks.example.com", "-backend-addr", "parsec://example.com",
				"-email-host", "smtp.example.com", "-email-port", "587", "-email-use-tls=true",
				"-email-sender", "no-reply@example.com",
				"-sse-keepalive", "15s", "-events-retention", "10", "-sequester-webhook-timeout", "3s",
				"-log-level", "DEBUG", "-log-backend", "zap", "-debug",
			},
			expected: func() *Config {
				c := defaults()
				c.Host = "0.0.0.0"
				c.Port = 9090
				c.DatabaseURL = "postgres://db/parsec"
				c.DBMinConnections = 2
				c.DBMaxConnections = 20
				c.Blockstore = blockstore.Config{Type: blockstore.TypeRAID5, Nodes: []blockstore.Config{
					{Type: blockstore.TypeMocked}, {Type: blockstore.TypeMocked}, {Type: blockstore.TypeMocked},
				}}
				c.AdministrationToken = "secret"
				c.OrganizationSpontaneousBootstrap = true
				c.OrganizationBootstrapWebhookURL = "https://hooks.example.com"
				c.BackendAddr = "parsec://example.com"
				c.Email = EmailConfig{Host: "smtp.example.com", Port: 587, UseTLS: true, Sender: "no-reply@example.com"}
				c.SSEKeepalive = 15 * time.Second
				c.EventsRetention = 10
				c.SequesterWebhookTimeout = 3 * time.Second
				c.LogLevel = "debug"
				c.LogBackend = "zap"
				c.Debug = true
				return c
			},
		},
		{
			name:     "unknown flags are ignored",
			args:     []string{"cmd", "-test.v", "-port", "1234", "-x", "y"},
			expected: func() *Config { c := defaults(); c.Port = 1234; return c },
		},
		{name: "bad port", args: []string{"cmd", "-port", "http"}, expectPanic: true},
		{name: "bad blockstore", args: []string{"cmd", "-blockstore", "floppy"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := defaults()

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(tt.expected(), config))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
