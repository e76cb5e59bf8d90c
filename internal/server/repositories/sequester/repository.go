package sequester

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, org models.OrganizationID, s *models.SequesterService) error
	Get(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.SequesterService, error)
	// List returns every service, disabled ones included, oldest first.
	List(ctx context.Context, org models.OrganizationID) ([]*models.SequesterService, error)
	Disable(ctx context.Context, org models.OrganizationID, id uuid.UUID, on time.Time) error
}
