package messages

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// Repository is an organization-scoped message box. Indexes start at 1 and
// are monotonic per recipient.
type Repository interface {
	Append(ctx context.Context, org models.OrganizationID, recipient models.UserID, sender models.DeviceID, timestamp time.Time, body []byte) (uint64, error)
	// List returns the messages of recipient with an index above offset.
	List(ctx context.Context, org models.OrganizationID, recipient models.UserID, offset uint64) ([]*models.Message, error)
}
