package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
)

type MockedConfig struct {
	Sender string `json:"sender"`
	TmpDir string `json:"tmpdir"`
}

// MockedSender writes each message to a .eml file instead of sending it.
type MockedSender struct {
	cfg    MockedConfig
	now    func() time.Time
	logger logging.Logger
}

// NewMockedSender creates the directory if needed; an empty TmpDir picks a
// fresh temporary directory.
func NewMockedSender(cfg MockedConfig, logger logging.Logger) (*MockedSender, error) {
	if cfg.TmpDir == "" {
		dir, err := os.MkdirTemp("", "parsec-emails-")
		if err != nil {
			return nil, err
		}
		cfg.TmpDir = dir
	} else if err := os.MkdirAll(cfg.TmpDir, 0o700); err != nil {
		return nil, err
	}
	if cfg.Sender == "" {
		cfg.Sender = "Parsec <no-reply@parsec.invalid>"
	}
	return &MockedSender{cfg: cfg, now: time.Now, logger: logger.With("module", "email")}, nil
}

// Dir is where messages are written.
func (s *MockedSender) Dir() string { return s.cfg.TmpDir }

func (s *MockedSender) Send(ctx context.Context, to, subject, body string) error {
	rcpt, err := checkRecipient(to)
	if err != nil {
		return err
	}
	now := s.now()
	name := fmt.Sprintf("%s_%s.eml", now.UTC().Format("20060102T150405.000000000"), strings.ReplaceAll(rcpt, "@", "_at_"))
	path := filepath.Join(s.cfg.TmpDir, name)
	if err := os.WriteFile(path, buildMessage(s.cfg.Sender, rcpt, subject, body, now), 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	s.logger.Info(ctx, "email written", "path", path)
	return nil
}
