package realms

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// Repository stores realms, their role history and their checkpoint counter.
type Repository interface {
	// Create inserts the realm with its initial OWNER grant.
	Create(ctx context.Context, org models.OrganizationID, realm *models.Realm, grant *models.RealmGrant) error
	Get(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.Realm, error)
	// GetForUpdate locks the realm row until the end of the transaction.
	GetForUpdate(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.Realm, error)
	List(ctx context.Context, org models.OrganizationID) ([]*models.Realm, error)

	AddGrant(ctx context.Context, org models.OrganizationID, grant *models.RealmGrant) error
	// Grants returns the role history of the realm, oldest first.
	Grants(ctx context.Context, org models.OrganizationID, realm uuid.UUID) ([]*models.RealmGrant, error)
	// LastGrant returns the most recent grant of user in realm, or
	// common.ErrorNotFound if the user never had a role there.
	LastGrant(ctx context.Context, org models.OrganizationID, realm uuid.UUID, user models.UserID) (*models.RealmGrant, error)
	// UserRealms lists the realms where user currently holds a role.
	UserRealms(ctx context.Context, org models.OrganizationID, user models.UserID) ([]uuid.UUID, error)

	StartMaintenance(ctx context.Context, org models.OrganizationID, realm uuid.UUID, revision uint64, by models.DeviceID, on time.Time) error
	FinishMaintenance(ctx context.Context, org models.OrganizationID, realm uuid.UUID) error
	// BumpCheckpoint increments and returns the realm checkpoint.
	BumpCheckpoint(ctx context.Context, org models.OrganizationID, realm uuid.UUID) (uint64, error)
}
