package blocks

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	blocks map[models.OrganizationID]map[uuid.UUID]models.Block
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{blocks: make(map[models.OrganizationID]map[uuid.UUID]models.Block)}
}

func (r *MemoryRepository) Create(_ context.Context, org models.OrganizationID, block *models.Block) error {
	if r.blocks[org] == nil {
		r.blocks[org] = make(map[uuid.UUID]models.Block)
	}
	if _, ok := r.blocks[org][block.BlockID]; ok {
		return common.ErrorAlreadyExists
	}
	r.blocks[org][block.BlockID] = *block
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, org models.OrganizationID, blockID uuid.UUID) (*models.Block, error) {
	b, ok := r.blocks[org][blockID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) Size(_ context.Context, org models.OrganizationID, realmID *uuid.UUID, at *time.Time) (int64, error) {
	var size int64
	for _, b := range r.blocks[org] {
		if realmID != nil && b.RealmID != *realmID {
			continue
		}
		if at != nil && b.CreatedOn.After(*at) {
			continue
		}
		size += b.Size
	}
	return size, nil
}
