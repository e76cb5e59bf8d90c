package blockstore

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RAID0Blockstore spreads blocks over its nodes, each block living on
// exactly one node picked from the block id.
type RAID0Blockstore struct {
	nodes []Blockstore
}

func NewRAID0Blockstore(nodes []Blockstore) *RAID0Blockstore {
	return &RAID0Blockstore{nodes: nodes}
}

func (r *RAID0Blockstore) node(blockID uuid.UUID) Blockstore {
	n := new(big.Int).SetBytes(blockID[:])
	idx := n.Mod(n, big.NewInt(int64(len(r.nodes)))).Int64()
	return r.nodes[idx]
}

func (r *RAID0Blockstore) Read(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) ([]byte, error) {
	return r.node(blockID).Read(ctx, org, blockID)
}

func (r *RAID0Blockstore) Create(ctx context.Context, org models.OrganizationID, blockID uuid.UUID, data []byte) error {
	return r.node(blockID).Create(ctx, org, blockID, data)
}

// RAID1Blockstore mirrors every block on all of its nodes.
type RAID1Blockstore struct {
	nodes           []Blockstore
	partialCreateOK bool
	logger          logging.Logger
}

// NewRAID1Blockstore returns a mirror. With partialCreateOK, a create
// succeeds as long as one node stored the block.
func NewRAID1Blockstore(nodes []Blockstore, partialCreateOK bool, logger logging.Logger) *RAID1Blockstore {
	return &RAID1Blockstore{nodes: nodes, partialCreateOK: partialCreateOK, logger: logger}
}

func (r *RAID1Blockstore) Create(ctx context.Context, org models.OrganizationID, blockID uuid.UUID, data []byte) error {
	errs := make([]error, len(r.nodes))
	var g errgroup.Group
	for i, node := range r.nodes {
		g.Go(func() error {
			errs[i] = node.Create(ctx, org, blockID, data)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			r.logger.Warn(ctx, "raid1 node create failed", "node", i, "block_id", blockID, "error", err)
		}
	}
	if failed == 0 || (r.partialCreateOK && failed < len(r.nodes)) {
		return nil
	}
	return fmt.Errorf("raid1 create: %w", errors.Join(errs...))
}

// Read returns the payload of the first node answering successfully.
func (r *RAID1Blockstore) Read(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	results := make(chan result, len(r.nodes))
	for _, node := range r.nodes {
		go func() {
			data, err := node.Read(ctx, org, blockID)
			results <- result{data, err}
		}()
	}

	var errs []error
	notFound := 0
	for range r.nodes {
		res := <-results
		if res.err == nil {
			return res.data, nil
		}
		if errors.Is(res.err, ErrNotFound) {
			notFound++
		}
		errs = append(errs, res.err)
	}
	if notFound == len(r.nodes) {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("raid1 read: %w", errors.Join(errs...))
}
