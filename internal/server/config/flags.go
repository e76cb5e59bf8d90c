package config

import (
	"flag"
	"os"
	"strings"

	"github.com/Scille/parsec-cloud-sub009/internal/flagx"
)

var serverFlags = []string{
	"-host", "-port", "-db", "-db-min-connections", "-db-max-connections",
	"-blockstore", "-administration-token", "-spontaneous-organization-bootstrap",
	"-organization-bootstrap-webhook", "-backend-addr",
	"-email-host", "-email-port", "-email-host-user", "-email-host-password",
	"-email-use-ssl", "-email-use-tls", "-email-sender", "-email-tmpdir",
	"-sse-keepalive", "-events-retention", "-sequester-webhook-timeout",
	"-log-level", "-log-backend", "-debug",
}

// parseFlags populates server Config fields from command-line flags.
//
// Every flag defaults to the value already in config, so flags only override
// what they name. Boolean flags must be given as -flag or -flag=value.
//
// The blockstore flag takes comma separated specs, for instance
//
//	-blockstore raid5:0:MOCKED,raid5:1:MOCKED,raid5:2:MOCKED
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Host, "host", config.Host, "address to listen on")
	fs.IntVar(&config.Port, "port", config.Port, "port to listen on")
	fs.StringVar(&config.DatabaseURL, "db", config.DatabaseURL, "PostgreSQL url, or MOCKED")
	fs.IntVar(&config.DBMinConnections, "db-min-connections", config.DBMinConnections, "minimal number of database connections")
	fs.IntVar(&config.DBMaxConnections, "db-max-connections", config.DBMaxConnections, "maximal number of database connections")
	fs.Func("blockstore", "blockstore specs (MOCKED, POSTGRESQL, s3:..., swift:..., raidN:<idx>:<spec>)", func(s string) error {
		return config.Blockstore.UnmarshalText([]byte(s))
	})
	fs.StringVar(&config.AdministrationToken, "administration-token", config.AdministrationToken, "secret token of the administration API")
	fs.BoolVar(&config.OrganizationSpontaneousBootstrap, "spontaneous-organization-bootstrap", config.OrganizationSpontaneousBootstrap, "allow bootstrapping organizations nobody created")
	fs.StringVar(&config.OrganizationBootstrapWebhookURL, "organization-bootstrap-webhook", config.OrganizationBootstrapWebhookURL, "url notified on organization bootstrap")
	fs.StringVar(&config.BackendAddr, "backend-addr", config.BackendAddr, "public url of the server, used in invitation links")

	fs.StringVar(&config.Email.Host, "email-host", config.Email.Host, "SMTP host, or MOCKED")
	fs.IntVar(&config.Email.Port, "email-port", config.Email.Port, "SMTP port")
	fs.StringVar(&config.Email.HostUser, "email-host-user", config.Email.HostUser, "SMTP user")
	fs.StringVar(&config.Email.HostPassword, "email-host-password", config.Email.HostPassword, "SMTP password")
	fs.BoolVar(&config.Email.UseSSL, "email-use-ssl", config.Email.UseSSL, "SMTP over SSL")
	fs.BoolVar(&config.Email.UseTLS, "email-use-tls", config.Email.UseTLS, "SMTP with STARTTLS")
	fs.StringVar(&config.Email.Sender, "email-sender", config.Email.Sender, "sender address of invitation emails")
	fs.StringVar(&config.Email.TmpDir, "email-tmpdir", config.Email.TmpDir, "directory of MOCKED emails")

	fs.DurationVar(&config.SSEKeepalive, "sse-keepalive", config.SSEKeepalive, "keepalive interval of event streams")
	fs.IntVar(&config.EventsRetention, "events-retention", config.EventsRetention, "events kept per organization for stream resumption")
	fs.DurationVar(&config.SequesterWebhookTimeout, "sequester-webhook-timeout", config.SequesterWebhookTimeout, "timeout of sequester webhook calls")

	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error")
	fs.StringVar(&config.LogBackend, "log-backend", config.LogBackend, "slog or zap")
	fs.BoolVar(&config.Debug, "debug", config.Debug, "debug mode")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.LogLevel = strings.ToLower(config.LogLevel)
}
