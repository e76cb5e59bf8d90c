package organizations

import (
	"context"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// MemoryRepository keeps organizations in a map. It is not safe for
// concurrent use: the memory repository manager serializes access.
type MemoryRepository struct {
	orgs map[models.OrganizationID]*models.Organization
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orgs: make(map[models.OrganizationID]*models.Organization)}
}

func clone(o *models.Organization) *models.Organization {
	c := *o
	if o.ActiveUsersLimit != nil {
		v := *o.ActiveUsersLimit
		c.ActiveUsersLimit = &v
	}
	if o.BootstrappedOn != nil {
		v := *o.BootstrappedOn
		c.BootstrappedOn = &v
	}
	if o.SequesterAuthority != nil {
		v := *o.SequesterAuthority
		c.SequesterAuthority = &v
	}
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, org *models.Organization) error {
	if existing, ok := r.orgs[org.OrganizationID]; ok {
		if existing.IsBootstrapped() {
			return common.ErrorAlreadyExists
		}
		existing.BootstrapToken = org.BootstrapToken
		existing.ActiveUsersLimit = clone(org).ActiveUsersLimit
		existing.UserProfileOutsiderAllowed = org.UserProfileOutsiderAllowed
		return nil
	}
	r.orgs[org.OrganizationID] = clone(org)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id models.OrganizationID) (*models.Organization, error) {
	org, ok := r.orgs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(org), nil
}

func (r *MemoryRepository) GetForUpdate(ctx context.Context, id models.OrganizationID) (*models.Organization, error) {
	return r.Get(ctx, id)
}

func (r *MemoryRepository) List(_ context.Context) ([]*models.Organization, error) {
	out := make([]*models.Organization, 0, len(r.orgs))
	for _, org := range r.orgs {
		out = append(out, clone(org))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrganizationID < out[j].OrganizationID })
	return out, nil
}

func (r *MemoryRepository) Bootstrap(_ context.Context, id models.OrganizationID, rootVerifyKey []byte, on time.Time, authority *models.SequesterAuthority) error {
	org, ok := r.orgs[id]
	if !ok {
		return common.ErrorNotFound
	}
	if org.IsBootstrapped() {
		return common.ErrorAlreadyExists
	}
	org.RootVerifyKey = rootVerifyKey
	org.BootstrappedOn = &on
	org.BootstrapToken = ""
	if authority != nil {
		a := *authority
		org.SequesterAuthority = &a
	}
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, id models.OrganizationID, upd models.OrganizationUpdate) error {
	org, ok := r.orgs[id]
	if !ok {
		return common.ErrorNotFound
	}
	if upd.IsExpired != nil {
		org.IsExpired = *upd.IsExpired
	}
	if upd.ActiveUsersLimit != nil {
		org.ActiveUsersLimit = nil
		if *upd.ActiveUsersLimit != nil {
			v := **upd.ActiveUsersLimit
			org.ActiveUsersLimit = &v
		}
	}
	if upd.UserProfileOutsiderAllowed != nil {
		org.UserProfileOutsiderAllowed = *upd.UserProfileOutsiderAllowed
	}
	return nil
}
