package config

import (
	"encoding/json"
	"os"

	"github.com/Scille/parsec-cloud-sub009/internal/flagx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/blockstore"
	"github.com/Scille/parsec-cloud-sub009/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "30s" and integer nanoseconds.
//
// The blockstore accepts either the object form of blockstore.Config or a
// string of specs such as "raid1:0:MOCKED raid1:1:MOCKED".
type JsonConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	DatabaseURL      string `json:"db"`
	DBMinConnections int    `json:"db_min_connections"`
	DBMaxConnections int    `json:"db_max_connections"`

	Blockstore blockstore.Config `json:"blockstore"`

	AdministrationToken              string `json:"administration_token"`
	OrganizationSpontaneousBootstrap bool   `json:"spontaneous_organization_bootstrap"`
	OrganizationBootstrapWebhookURL  string `json:"organization_bootstrap_webhook"`

	Email       EmailConfig `json:"email"`
	BackendAddr string      `json:"backend_addr"`

	SSEKeepalive            timex.Duration `json:"sse_keepalive"`
	EventsRetention         int            `json:"events_retention"`
	SequesterWebhookTimeout timex.Duration `json:"sequester_webhook_timeout"`

	LogLevel   string `json:"log_level"`
	LogBackend string `json:"log_backend"`
	Debug      bool   `json:"debug"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		Host:                             c.Host,
		Port:                             c.Port,
		DatabaseURL:                      c.DatabaseURL,
		DBMinConnections:                 c.DBMinConnections,
		DBMaxConnections:                 c.DBMaxConnections,
		Blockstore:                       c.Blockstore,
		AdministrationToken:              c.AdministrationToken,
		OrganizationSpontaneousBootstrap: c.OrganizationSpontaneousBootstrap,
		OrganizationBootstrapWebhookURL:  c.OrganizationBootstrapWebhookURL,
		Email:                            c.Email,
		BackendAddr:                      c.BackendAddr,
		SSEKeepalive:                     timex.Duration{Duration: c.SSEKeepalive},
		EventsRetention:                  c.EventsRetention,
		SequesterWebhookTimeout:          timex.Duration{Duration: c.SequesterWebhookTimeout},
		LogLevel:                         c.LogLevel,
		LogBackend:                       c.LogBackend,
		Debug:                            c.Debug,
	}
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags. If
// neither is set, no JSON file is loaded. Keys absent from the file keep the
// value already in config. If the file cannot be read or contains invalid
// JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.Host = c.Host
	config.Port = c.Port
	config.DatabaseURL = c.DatabaseURL
	config.DBMinConnections = c.DBMinConnections
	config.DBMaxConnections = c.DBMaxConnections
	config.Blockstore = c.Blockstore
	config.AdministrationToken = c.AdministrationToken
	config.OrganizationSpontaneousBootstrap = c.OrganizationSpontaneousBootstrap
	config.OrganizationBootstrapWebhookURL = c.OrganizationBootstrapWebhookURL
	config.Email = c.Email
	config.BackendAddr = c.BackendAddr
	config.SSEKeepalive = c.SSEKeepalive.Duration
	config.EventsRetention = c.EventsRetention
	config.SequesterWebhookTimeout = c.SequesterWebhookTimeout.Duration
	config.LogLevel = c.LogLevel
	config.LogBackend = c.LogBackend
	config.Debug = c.Debug
}
