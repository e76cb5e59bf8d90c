// Package blockstore stores block payloads outside of the metadata database.
// Backends can be composed in RAID0, RAID1 and RAID5 arrangements.
package blockstore

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Read when the backend has no payload for the block.
var ErrNotFound = errors.New("block not found in blockstore")

// Blockstore is the payload storage used by the block service. Create must be
// idempotent: storing a block twice is a success.
type Blockstore interface {
	Read(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) ([]byte, error)
	Create(ctx context.Context, org models.OrganizationID, blockID uuid.UUID, data []byte) error
}

type blockKey struct {
	org models.OrganizationID
	id  uuid.UUID
}

// MemoryBlockstore keeps payloads in process memory.
type MemoryBlockstore struct {
	mu     sync.RWMutex
	blocks map[blockKey][]byte
}

func NewMemoryBlockstore() *MemoryBlockstore {
	return &MemoryBlockstore{blocks: make(map[blockKey][]byte)}
}

func (m *MemoryBlockstore) Read(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blocks[blockKey{org, blockID}]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (m *MemoryBlockstore) Create(ctx context.Context, org models.OrganizationID, blockID uuid.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := blockKey{org, blockID}
	if _, ok := m.blocks[key]; !ok {
		m.blocks[key] = bytes.Clone(data)
	}
	return nil
}

func objectName(org models.OrganizationID, blockID uuid.UUID) string {
	return string(org) + "/" + blockID.String()
}
