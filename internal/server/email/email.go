// Package email delivers invitation emails, either over SMTP or, for
// development setups, by writing .eml files to a local directory.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

var (
	ErrBadRecipient = errors.New("bad recipient")
	ErrNotAvailable = errors.New("email not available")
)

// Sender delivers a message to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}

func checkRecipient(to string) (string, error) {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRecipient, err)
	}
	return addr.Address, nil
}

// InvitationURL renders the link the claimer opens in its client.
func InvitationURL(backendAddr string, org models.OrganizationID, typ models.InvitationType, token uuid.UUID) string {
	action := "claim_user"
	if typ == models.InvitationTypeDevice {
		action = "claim_device"
	}
	q := url.Values{}
	q.Set("action", action)
	q.Set("token", strings.ReplaceAll(token.String(), "-", ""))
	addr := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(backendAddr, "parsec://"), "https://"), "/")
	return fmt.Sprintf("parsec://%s/%s?%s", addr, url.PathEscape(string(org)), q.Encode())
}

var invitationTemplate = template.Must(template.New("invitation").Parse(
	`{{if eq .Type "DEVICE"}}You requested to add a new device to your account in organization {{.Organization}}.
{{else}}{{.Greeter}} invited you to join organization {{.Organization}}.
{{end}}
To accept, open the following link with the Parsec client:

{{.URL}}

If you did not expect this email, you can ignore it.
`))

// InvitationMailer sends the invitation emails and reduces delivery
// errors to the status reported to the greeter.
type InvitationMailer struct {
	sender      Sender
	backendAddr string
	logger      logging.Logger
}

func NewInvitationMailer(sender Sender, backendAddr string, logger logging.Logger) *InvitationMailer {
	return &InvitationMailer{sender: sender, backendAddr: backendAddr, logger: logger.With("module", "email")}
}

func (m *InvitationMailer) SendInvitation(ctx context.Context, org models.OrganizationID, inv *models.Invitation, to, greeter string) models.InvitationEmailSentStatus {
	if m == nil || m.sender == nil {
		return models.InvitationEmailSentNotAvailable
	}
	var body bytes.Buffer
	err := invitationTemplate.Execute(&body, map[string]string{
		"Type":         string(inv.Type),
		"Organization": string(org),
		"Greeter":      greeter,
		"URL":          InvitationURL(m.backendAddr, org, inv.Type, inv.Token),
	})
	if err != nil {
		m.logger.Error(ctx, "cannot render invitation email", "error", err)
		return models.InvitationEmailSentNotAvailable
	}
	subject := fmt.Sprintf("Invitation to Parsec organization %s", org)
	if inv.Type == models.InvitationTypeDevice {
		subject = "New device invitation to Parsec"
	}

	err = m.sender.Send(ctx, to, subject, body.String())
	switch {
	case err == nil:
		return models.InvitationEmailSentSuccess
	case errors.Is(err, ErrBadRecipient):
		m.logger.Info(ctx, "invitation email refused", "organization_id", org, "error", err)
		return models.InvitationEmailSentBadRecipient
	default:
		m.logger.Warn(ctx, "invitation email failed", "organization_id", org, "error", err)
		return models.InvitationEmailSentNotAvailable
	}
}
