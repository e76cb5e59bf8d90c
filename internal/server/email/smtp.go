package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"
)

type SMTPConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	UseSSL       bool   `json:"use_ssl"`
	UseTLS       bool   `json:"use_tls"`
	HostUser     string `json:"host_user"`
	HostPassword string `json:"host_password"`
	Sender       string `json:"sender"`
}

type SMTPSender struct {
	cfg   SMTPConfig
	now   func() time.Time
	dial  func(ctx context.Context, network, addr string) (net.Conn, error)
	tlsCf *tls.Config
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := &net.Dialer{Timeout: 30 * time.Second}
	return &SMTPSender{
		cfg:   cfg,
		now:   time.Now,
		dial:  d.DialContext,
		tlsCf: &tls.Config{ServerName: cfg.Host},
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	rcpt, err := checkRecipient(to)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if s.cfg.UseSSL {
		conn = tls.Client(conn, s.tlsCf)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	defer c.Close()

	if s.cfg.UseTLS && !s.cfg.UseSSL {
		if err := c.StartTLS(s.tlsCf); err != nil {
			return fmt.Errorf("%w: starttls: %v", ErrNotAvailable, err)
		}
	}
	if s.cfg.HostUser != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.HostUser, s.cfg.HostPassword, s.cfg.Host)); err != nil {
			return fmt.Errorf("%w: auth: %v", ErrNotAvailable, err)
		}
	}
	from := s.cfg.Sender
	if a, err := mail.ParseAddress(from); err == nil {
		from = a.Address
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if err := c.Rcpt(rcpt); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return fmt.Errorf("%w: %v", ErrBadRecipient, err)
		}
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if _, err := w.Write(buildMessage(s.cfg.Sender, rcpt, subject, body, s.now())); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	return c.Quit()
}
