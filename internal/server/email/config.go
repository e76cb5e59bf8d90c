package email

import (
	"fmt"
	"strings"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
)

type Type string

const (
	TypeSMTP   Type = "SMTP"
	TypeMocked Type = "MOCKED"
)

// Config selects the email backend. An empty Type disables email.
type Config struct {
	Type   Type          `json:"type"`
	SMTP   *SMTPConfig   `json:"smtp,omitempty"`
	Mocked *MockedConfig `json:"mocked,omitempty"`
}

// New builds the sender for cfg, or nil when email is disabled.
func New(cfg Config, logger logging.Logger) (Sender, error) {
	switch Type(strings.ToUpper(string(cfg.Type))) {
	case "":
		return nil, nil
	case TypeSMTP:
		if cfg.SMTP == nil || cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("smtp email config requires a host")
		}
		smtpCfg := *cfg.SMTP
		if smtpCfg.Port == 0 {
			smtpCfg.Port = 25
		}
		return NewSMTPSender(smtpCfg), nil
	case TypeMocked:
		var m MockedConfig
		if cfg.Mocked != nil {
			m = *cfg.Mocked
		}
		s, err := NewMockedSender(m, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown email type %q", cfg.Type)
	}
}
