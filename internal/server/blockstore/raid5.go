package blockstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
	"github.com/klauspost/reedsolomon"
	"golang.org/x/sync/errgroup"
)

const raid5SizePrefix = 4

// RAID5Blockstore splits each block into len(nodes)-1 data chunks plus one
// XOR parity chunk, chunk i being stored on node i. Any single node can be
// lost.
type RAID5Blockstore struct {
	nodes           []Blockstore
	enc             reedsolomon.Encoder
	partialCreateOK bool
	logger          logging.Logger
}

func NewRAID5Blockstore(nodes []Blockstore, partialCreateOK bool, logger logging.Logger) (*RAID5Blockstore, error) {
	if len(nodes) < 3 {
		return nil, fmt.Errorf("raid5 needs at least 3 nodes, got %d", len(nodes))
	}
	enc, err := reedsolomon.New(len(nodes)-1, 1, reedsolomon.WithFastOneParityMatrix())
	if err != nil {
		return nil, fmt.Errorf("raid5 encoder: %w", err)
	}
	return &RAID5Blockstore{nodes: nodes, enc: enc, partialCreateOK: partialCreateOK, logger: logger}, nil
}

// splitChunks prefixes data with its big endian length, pads it to a
// multiple of dataChunks and cuts it in dataChunks equal chunks.
func splitChunks(data []byte, dataChunks int) [][]byte {
	size := len(data) + raid5SizePrefix
	chunkSize := (size + dataChunks - 1) / dataChunks

	padded := make([]byte, chunkSize*dataChunks)
	binary.BigEndian.PutUint32(padded, uint32(len(data)))
	copy(padded[raid5SizePrefix:], data)

	chunks := make([][]byte, dataChunks)
	for i := range chunks {
		chunks[i] = padded[i*chunkSize : (i+1)*chunkSize]
	}
	return chunks
}

func joinChunks(chunks [][]byte) ([]byte, error) {
	var joined []byte
	for _, c := range chunks {
		joined = append(joined, c...)
	}
	if len(joined) < raid5SizePrefix {
		return nil, errors.New("raid5: truncated chunks")
	}
	size := int(binary.BigEndian.Uint32(joined))
	if size > len(joined)-raid5SizePrefix {
		return nil, errors.New("raid5: invalid size prefix")
	}
	return joined[raid5SizePrefix : raid5SizePrefix+size], nil
}

func (r *RAID5Blockstore) Create(ctx context.Context, org models.OrganizationID, blockID uuid.UUID, data []byte) error {
	shards := splitChunks(data, len(r.nodes)-1)
	shards = append(shards, make([]byte, len(shards[0])))
	if err := r.enc.Encode(shards); err != nil {
		return fmt.Errorf("raid5 encode: %w", err)
	}

	errs := make([]error, len(r.nodes))
	var g errgroup.Group
	for i, node := range r.nodes {
		g.Go(func() error {
			errs[i] = node.Create(ctx, org, blockID, shards[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			r.logger.Warn(ctx, "raid5 node create failed", "node", i, "block_id", blockID, "error", err)
		}
	}
	if failed == 0 || (r.partialCreateOK && failed == 1) {
		return nil
	}
	return fmt.Errorf("raid5 create: %w", errors.Join(errs...))
}

// Read fetches the data chunks and only falls back to the parity chunk when
// exactly one of them is missing.
func (r *RAID5Blockstore) Read(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) ([]byte, error) {
	dataChunks := len(r.nodes) - 1
	shards := make([][]byte, len(r.nodes))
	errs := make([]error, len(r.nodes))

	var g errgroup.Group
	for i := 0; i < dataChunks; i++ {
		g.Go(func() error {
			shards[i], errs[i] = r.nodes[i].Read(ctx, org, blockID)
			return nil
		})
	}
	_ = g.Wait()

	missing := -1
	for i := 0; i < dataChunks; i++ {
		if errs[i] == nil {
			continue
		}
		r.logger.Warn(ctx, "raid5 node read failed", "node", i, "block_id", blockID, "error", errs[i])
		if missing != -1 {
			return nil, r.readError(errs[:dataChunks])
		}
		missing = i
		shards[i] = nil
	}
	if missing == -1 {
		return joinChunks(shards[:dataChunks])
	}

	parity, err := r.nodes[dataChunks].Read(ctx, org, blockID)
	if err != nil {
		errs[dataChunks] = err
		return nil, r.readError(errs)
	}
	shards[dataChunks] = parity
	if err := r.enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("raid5 rebuild: %w", err)
	}
	return joinChunks(shards[:dataChunks])
}

func (r *RAID5Blockstore) readError(errs []error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("raid5 read: %w", errors.Join(errs...))
		}
	}
	return ErrNotFound
}
