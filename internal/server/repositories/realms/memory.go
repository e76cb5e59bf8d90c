package realms

import (
	"context"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

type realmData struct {
	realm  *models.Realm
	grants []*models.RealmGrant
}

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	realms map[models.OrganizationID]map[uuid.UUID]*realmData
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{realms: make(map[models.OrganizationID]map[uuid.UUID]*realmData)}
}

func cloneRealm(r *models.Realm) *models.Realm {
	c := *r
	if r.MaintenanceType != nil {
		v := *r.MaintenanceType
		c.MaintenanceType = &v
	}
	if r.MaintenanceStartedOn != nil {
		v := *r.MaintenanceStartedOn
		c.MaintenanceStartedOn = &v
	}
	if r.MaintenanceStartedBy != nil {
		v := *r.MaintenanceStartedBy
		c.MaintenanceStartedBy = &v
	}
	return &c
}

func cloneGrant(g *models.RealmGrant) *models.RealmGrant {
	c := *g
	if g.Role != nil {
		v := *g.Role
		c.Role = &v
	}
	if g.GrantedBy != nil {
		v := *g.GrantedBy
		c.GrantedBy = &v
	}
	return &c
}

func (r *MemoryRepository) data(org models.OrganizationID, id uuid.UUID) (*realmData, error) {
	d, ok := r.realms[org][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return d, nil
}

func (r *MemoryRepository) Create(_ context.Context, org models.OrganizationID, realm *models.Realm, grant *models.RealmGrant) error {
	if r.realms[org] == nil {
		r.realms[org] = make(map[uuid.UUID]*realmData)
	}
	if _, ok := r.realms[org][realm.RealmID]; ok {
		return common.ErrorAlreadyExists
	}
	r.realms[org][realm.RealmID] = &realmData{
		realm:  cloneRealm(realm),
		grants: []*models.RealmGrant{cloneGrant(grant)},
	}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, org models.OrganizationID, id uuid.UUID) (*models.Realm, error) {
	d, err := r.data(org, id)
	if err != nil {
		return nil, err
	}
	return cloneRealm(d.realm), nil
}

func (r *MemoryRepository) GetForUpdate(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.Realm, error) {
	return r.Get(ctx, org, id)
}

func (r *MemoryRepository) List(_ context.Context, org models.OrganizationID) ([]*models.Realm, error) {
	out := make([]*models.Realm, 0, len(r.realms[org]))
	for _, d := range r.realms[org] {
		out = append(out, cloneRealm(d.realm))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].RealmID.String() < out[j].RealmID.String()
	})
	return out, nil
}

func (r *MemoryRepository) AddGrant(_ context.Context, org models.OrganizationID, grant *models.RealmGrant) error {
	d, err := r.data(org, grant.RealmID)
	if err != nil {
		return err
	}
	d.grants = append(d.grants, cloneGrant(grant))
	// Keep the history ordered by grant time, insertion order breaking ties.
	sort.SliceStable(d.grants, func(i, j int) bool { return d.grants[i].GrantedOn.Before(d.grants[j].GrantedOn) })
	return nil
}

func (r *MemoryRepository) Grants(_ context.Context, org models.OrganizationID, realm uuid.UUID) ([]*models.RealmGrant, error) {
	d, err := r.data(org, realm)
	if err != nil {
		return nil, err
	}
	out := make([]*models.RealmGrant, 0, len(d.grants))
	for _, g := range d.grants {
		out = append(out, cloneGrant(g))
	}
	return out, nil
}

func lastGrant(d *realmData, user models.UserID) *models.RealmGrant {
	for i := len(d.grants) - 1; i >= 0; i-- {
		if d.grants[i].UserID == user {
			return d.grants[i]
		}
	}
	return nil
}

func (r *MemoryRepository) LastGrant(_ context.Context, org models.OrganizationID, realm uuid.UUID, user models.UserID) (*models.RealmGrant, error) {
	d, err := r.data(org, realm)
	if err != nil {
		return nil, err
	}
	g := lastGrant(d, user)
	if g == nil {
		return nil, common.ErrorNotFound
	}
	return cloneGrant(g), nil
}

func (r *MemoryRepository) UserRealms(_ context.Context, org models.OrganizationID, user models.UserID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, d := range r.realms[org] {
		if g := lastGrant(d, user); g != nil && g.Role != nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *MemoryRepository) StartMaintenance(_ context.Context, org models.OrganizationID, realm uuid.UUID, revision uint64, by models.DeviceID, on time.Time) error {
	d, err := r.data(org, realm)
	if err != nil {
		return err
	}
	mtype := models.MaintenanceTypeReencryption
	d.realm.EncryptionRevision = revision
	d.realm.MaintenanceType = &mtype
	d.realm.MaintenanceStartedOn = &on
	d.realm.MaintenanceStartedBy = &by
	return nil
}

func (r *MemoryRepository) FinishMaintenance(_ context.Context, org models.OrganizationID, realm uuid.UUID) error {
	d, err := r.data(org, realm)
	if err != nil {
		return err
	}
	d.realm.MaintenanceType = nil
	d.realm.MaintenanceStartedOn = nil
	d.realm.MaintenanceStartedBy = nil
	return nil
}

func (r *MemoryRepository) BumpCheckpoint(_ context.Context, org models.OrganizationID, realm uuid.UUID) (uint64, error) {
	d, err := r.data(org, realm)
	if err != nil {
		return 0, err
	}
	d.realm.Checkpoint++
	return d.realm.Checkpoint, nil
}
