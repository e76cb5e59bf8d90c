package sequester

import (
	"context"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	services map[models.OrganizationID]map[uuid.UUID]*models.SequesterService
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{services: make(map[models.OrganizationID]map[uuid.UUID]*models.SequesterService)}
}

func clone(s *models.SequesterService) *models.SequesterService {
	c := *s
	if s.DisabledOn != nil {
		t := *s.DisabledOn
		c.DisabledOn = &t
	}
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, org models.OrganizationID, s *models.SequesterService) error {
	if r.services[org] == nil {
		r.services[org] = make(map[uuid.UUID]*models.SequesterService)
	}
	if _, ok := r.services[org][s.ServiceID]; ok {
		return common.ErrorAlreadyExists
	}
	r.services[org][s.ServiceID] = clone(s)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, org models.OrganizationID, id uuid.UUID) (*models.SequesterService, error) {
	s, ok := r.services[org][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(s), nil
}

func (r *MemoryRepository) List(_ context.Context, org models.OrganizationID) ([]*models.SequesterService, error) {
	out := make([]*models.SequesterService, 0, len(r.services[org]))
	for _, s := range r.services[org] {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].ServiceID.String() < out[j].ServiceID.String()
	})
	return out, nil
}

func (r *MemoryRepository) Disable(_ context.Context, org models.OrganizationID, id uuid.UUID, on time.Time) error {
	s, ok := r.services[org][id]
	if !ok || !s.IsEnabled() {
		return common.ErrorNotFound
	}
	s.DisabledOn = &on
	return nil
}
