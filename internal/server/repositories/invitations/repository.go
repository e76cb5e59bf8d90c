package invitations

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// Repository persists invitations together with their conduit state.
// GreeterHuman is never stored: callers resolve it from the users repository.
type Repository interface {
	Create(ctx context.Context, org models.OrganizationID, inv *models.Invitation) error
	Get(ctx context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error)
	GetForUpdate(ctx context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error)
	// FindActive returns the non-deleted invitation matching the triple, if any.
	FindActive(ctx context.Context, org models.OrganizationID, greeter models.UserID, typ models.InvitationType, claimerEmail string) (*models.Invitation, error)
	// List returns the non-deleted invitations created by greeter, oldest first.
	List(ctx context.Context, org models.OrganizationID, greeter models.UserID) ([]*models.Invitation, error)
	Delete(ctx context.Context, org models.OrganizationID, token models.InvitationToken, on time.Time, reason models.InvitationDeletedReason) error
	SaveConduit(ctx context.Context, org models.OrganizationID, token models.InvitationToken, conduit models.Conduit) error
}
