package blocks

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// Repository stores block metadata. Payloads live in the blockstore.
type Repository interface {
	Create(ctx context.Context, org models.OrganizationID, block *models.Block) error
	Get(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) (*models.Block, error)
	// Size sums block sizes, optionally restricted to a realm and to blocks
	// created at or before at.
	Size(ctx context.Context, org models.OrganizationID, realmID *uuid.UUID, at *time.Time) (int64, error)
}
