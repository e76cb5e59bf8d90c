// Package webhooks calls the HTTP endpoints configured by administrators:
// sequester services of WEBHOOK type, and the organization bootstrap hook.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a sequester webhook call.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnavailable means the service did not answer 200 or 400 in time.
	ErrUnavailable = errors.New("sequester service unavailable")
)

// RejectedError is returned when the service refused the ciphertext.
type RejectedError struct {
	ServiceID uuid.UUID
	Reason    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by sequester service %s: %s", e.ServiceID, e.Reason)
}

// SequesterClient posts vlob ciphertexts to sequester webhooks.
type SequesterClient struct {
	httpClient *http.Client
	logger     logging.Logger
}

// NewSequesterClient builds a client whose calls time out after timeout
// (DefaultTimeout when zero).
func NewSequesterClient(timeout time.Duration, logger logging.Logger) *SequesterClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SequesterClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("module", "sequester_webhook"),
	}
}

// Post delivers blob to the service webhook. It returns nil when the service
// accepted it, a *RejectedError on 400, and ErrUnavailable otherwise.
func (c *SequesterClient) Post(ctx context.Context, org models.OrganizationID, service *models.SequesterService, blob []byte) error {
	u, err := url.Parse(service.WebhookURL)
	if err != nil {
		return fmt.Errorf("%w: bad webhook url: %v", ErrUnavailable, err)
	}
	q := u.Query()
	q.Set("organization_id", string(org))
	q.Set("service_id", service.ServiceID.String())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "sequester webhook unreachable",
			"organization_id", org, "service_id", service.ServiceID, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		var body struct {
			Reason string `json:"reason"`
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil || json.Unmarshal(raw, &body) != nil {
			c.logger.Warn(ctx, "sequester webhook returned an unreadable rejection",
				"organization_id", org, "service_id", service.ServiceID)
			return fmt.Errorf("%w: invalid rejection body", ErrUnavailable)
		}
		return &RejectedError{ServiceID: service.ServiceID, Reason: body.Reason}
	default:
		c.logger.Warn(ctx, "sequester webhook failed",
			"organization_id", org, "service_id", service.ServiceID, "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
