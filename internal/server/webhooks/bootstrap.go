package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// BootstrapInfo is the JSON document posted once an organization is
// bootstrapped.
type BootstrapInfo struct {
	OrganizationID models.OrganizationID `json:"organization_id"`
	DeviceID       models.DeviceID       `json:"device_id"`
	DeviceLabel    *string               `json:"device_label"`
	HumanEmail     *string               `json:"human_email"`
	HumanLabel     *string               `json:"human_label"`
}

// BootstrapNotifier posts BootstrapInfo to a fixed URL. A nil notifier or
// an empty URL disables it.
type BootstrapNotifier struct {
	url        string
	httpClient *http.Client
	logger     logging.Logger
}

func NewBootstrapNotifier(url string, logger logging.Logger) *BootstrapNotifier {
	return &BootstrapNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("module", "bootstrap_webhook"),
	}
}

// Notify sends info in the background. Failures are only logged.
func (n *BootstrapNotifier) Notify(ctx context.Context, info BootstrapInfo) {
	if n == nil || n.url == "" {
		return
	}
	// the request outlives the RPC that triggered it
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := n.send(ctx, info); err != nil {
			n.logger.Warn(ctx, "bootstrap webhook failed",
				"organization_id", info.OrganizationID, "error", err)
		}
	}()
}

func (n *BootstrapNotifier) send(ctx context.Context, info BootstrapInfo) error {
	body, err := json.Marshal(info)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
