package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Scille/parsec-cloud-sub009/internal/server/blockstore"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// BlockService keeps block metadata in the repositories and payloads in
// the blockstore.
type BlockService struct {
	base
	store blockstore.Blockstore
}

// checkBlockWrite returns the existing metadata of blockID, if any.
func checkBlockWrite(ctx context.Context, r *repomanager.Repositories, caller Caller, realmID, blockID uuid.UUID, forUpdate bool) (*models.Block, error) {
	realm, role, err := loadRealm(ctx, r, caller, realmID, forUpdate)
	if err != nil {
		return nil, err
	}
	if !role.CanWrite() {
		return nil, ErrNotAllowed
	}
	if realm.InMaintenance() {
		return nil, ErrInMaintenance
	}
	existing, err := r.Blocks.Get(ctx, caller.OrganizationID, blockID)
	if err != nil {
		if err = repoError(err, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return existing, nil
}

// sameBlock reports whether a retried create matches what is stored.
func sameBlock(b *models.Block, caller Caller, realmID uuid.UUID, size int) bool {
	return b.RealmID == realmID && b.Author.UserID() == caller.UserID() && b.Size == int64(size)
}

// Create stores the payload then records its metadata. Retrying a create
// that already succeeded is a success.
func (s *BlockService) Create(ctx context.Context, caller Caller, blockID, realmID uuid.UUID, data []byte) error {
	var existing *models.Block
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		existing, err = checkBlockWrite(ctx, r, caller, realmID, blockID, false)
		return err
	})
	if err != nil {
		return err
	}
	if existing != nil {
		if sameBlock(existing, caller, realmID, len(data)) {
			return nil
		}
		return ErrAlreadyExists
	}

	if err := s.store.Create(ctx, caller.OrganizationID, blockID, data); err != nil {
		s.logger.Error(ctx, "blockstore create failed", "organization_id", caller.OrganizationID, "block_id", blockID, "error", err)
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		existing, err := checkBlockWrite(ctx, r, caller, realmID, blockID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			if sameBlock(existing, caller, realmID, len(data)) {
				return nil
			}
			return ErrAlreadyExists
		}
		err = r.Blocks.Create(ctx, caller.OrganizationID, &models.Block{
			BlockID: blockID, RealmID: realmID, Author: caller.DeviceID,
			Size: int64(len(data)), CreatedOn: s.now(),
		})
		return repoError(err, ErrNotFound)
	})
}

// Read returns the payload of a block of a realm the caller is part of.
func (s *BlockService) Read(ctx context.Context, caller Caller, blockID uuid.UUID) ([]byte, error) {
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		b, err := r.Blocks.Get(ctx, caller.OrganizationID, blockID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		realm, _, err := loadRealm(ctx, r, caller, b.RealmID, false)
		if err != nil {
			return err
		}
		if realm.InMaintenance() {
			return ErrInMaintenance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := s.store.Read(ctx, caller.OrganizationID, blockID)
	if err != nil {
		level := s.logger.Error
		if errors.Is(err, context.Canceled) {
			level = s.logger.Warn
		}
		level(ctx, "blockstore read failed", "organization_id", caller.OrganizationID, "block_id", blockID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return data, nil
}
