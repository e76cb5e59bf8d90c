package organizations

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type Repository interface {
	// Create inserts org, or overwrites it while it is not bootstrapped yet.
	// It fails with common.ErrorAlreadyExists on a bootstrapped organization.
	Create(ctx context.Context, org *models.Organization) error
	Get(ctx context.Context, id models.OrganizationID) (*models.Organization, error)
	// GetForUpdate is Get, locking the organization until the end of the
	// transaction.
	GetForUpdate(ctx context.Context, id models.OrganizationID) (*models.Organization, error)
	List(ctx context.Context) ([]*models.Organization, error)
	Bootstrap(ctx context.Context, id models.OrganizationID, rootVerifyKey []byte, on time.Time, authority *models.SequesterAuthority) error
	Update(ctx context.Context, id models.OrganizationID, upd models.OrganizationUpdate) error
}
