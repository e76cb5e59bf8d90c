package vlobs

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// Repository stores vlob atoms and the per-realm change log. Version numbers
// are shared by every encryption revision of a vlob: a reencrypted atom keeps
// the version of its source.
type Repository interface {
	// Latest returns the highest version of the vlob, taken from the newest
	// revision holding it.
	Latest(ctx context.Context, org models.OrganizationID, vlobID uuid.UUID) (*models.VlobAtom, error)
	Create(ctx context.Context, org models.OrganizationID, atom *models.VlobAtom) error
	// Read returns the atom at revision matching version, or the latest one
	// created at or before at, or the latest one.
	Read(ctx context.Context, org models.OrganizationID, vlobID uuid.UUID, revision uint64, version *uint64, at *time.Time) (*models.VlobAtom, error)
	ListVersions(ctx context.Context, org models.OrganizationID, vlobID uuid.UUID, revision uint64) ([]models.VlobVersionInfo, error)

	AddChange(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, change models.VlobChange) error
	// Changes returns the latest version of every vlob changed after since.
	Changes(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, since uint64) (map[uuid.UUID]uint64, error)

	ReencryptionBatch(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64, size int) ([]models.ReencryptionEntry, error)
	SaveReencrypted(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64, entries []models.ReencryptionEntry) error
	// ReencryptionProgress returns how many atoms exist at oldRev and how
	// many of them already have a newRev counterpart.
	ReencryptionProgress(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64) (total, done int, err error)

	// Size sums blob sizes, optionally restricted to a realm and to atoms
	// created at or before at.
	Size(ctx context.Context, org models.OrganizationID, realmID *uuid.UUID, at *time.Time) (int64, error)
}
