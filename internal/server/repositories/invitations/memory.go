package invitations

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	invitations map[models.OrganizationID]map[models.InvitationToken]*models.Invitation
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{invitations: make(map[models.OrganizationID]map[models.InvitationToken]*models.Invitation)}
}

func cloneConduit(c models.Conduit) models.Conduit {
	out := c
	out.GreeterPayload = bytes.Clone(c.GreeterPayload)
	out.ClaimerPayload = bytes.Clone(c.ClaimerPayload)
	if c.LastExchange != nil {
		last := *c.LastExchange
		last.GreeterPayload = bytes.Clone(last.GreeterPayload)
		last.ClaimerPayload = bytes.Clone(last.ClaimerPayload)
		out.LastExchange = &last
	}
	return out
}

func cloneInvitation(inv *models.Invitation) *models.Invitation {
	c := *inv
	c.GreeterHuman = nil
	if inv.DeletedOn != nil {
		t := *inv.DeletedOn
		c.DeletedOn = &t
	}
	if inv.DeletedReason != nil {
		r := *inv.DeletedReason
		c.DeletedReason = &r
	}
	c.Conduit = cloneConduit(inv.Conduit)
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, org models.OrganizationID, inv *models.Invitation) error {
	if r.invitations[org] == nil {
		r.invitations[org] = make(map[models.InvitationToken]*models.Invitation)
	}
	if _, ok := r.invitations[org][inv.Token]; ok {
		return common.ErrorAlreadyExists
	}
	c := cloneInvitation(inv)
	c.Conduit = models.Conduit{State: models.ConduitState1WaitPeers}
	r.invitations[org][inv.Token] = c
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error) {
	inv, ok := r.invitations[org][token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneInvitation(inv), nil
}

func (r *MemoryRepository) GetForUpdate(ctx context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error) {
	return r.Get(ctx, org, token)
}

func (r *MemoryRepository) active(org models.OrganizationID, greeter models.UserID) []*models.Invitation {
	var out []*models.Invitation
	for _, inv := range r.invitations[org] {
		if inv.GreeterUserID == greeter && !inv.IsDeleted() {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].Token.String() < out[j].Token.String()
	})
	return out
}

func (r *MemoryRepository) FindActive(_ context.Context, org models.OrganizationID, greeter models.UserID, typ models.InvitationType, claimerEmail string) (*models.Invitation, error) {
	for _, inv := range r.active(org, greeter) {
		if inv.Type == typ && inv.ClaimerEmail == claimerEmail {
			return cloneInvitation(inv), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) List(_ context.Context, org models.OrganizationID, greeter models.UserID) ([]*models.Invitation, error) {
	active := r.active(org, greeter)
	out := make([]*models.Invitation, 0, len(active))
	for _, inv := range active {
		out = append(out, cloneInvitation(inv))
	}
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, org models.OrganizationID, token models.InvitationToken, on time.Time, reason models.InvitationDeletedReason) error {
	inv, ok := r.invitations[org][token]
	if !ok || inv.IsDeleted() {
		return common.ErrorNotFound
	}
	inv.DeletedOn = &on
	inv.DeletedReason = &reason
	return nil
}

func (r *MemoryRepository) SaveConduit(_ context.Context, org models.OrganizationID, token models.InvitationToken, conduit models.Conduit) error {
	inv, ok := r.invitations[org][token]
	if !ok {
		return common.ErrorNotFound
	}
	inv.Conduit = cloneConduit(conduit)
	return nil
}
