package messages

import (
	"bytes"
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type box struct {
	org       models.OrganizationID
	recipient models.UserID
}

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	boxes map[box][]models.Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{boxes: make(map[box][]models.Message)}
}

func (r *MemoryRepository) Append(_ context.Context, org models.OrganizationID, recipient models.UserID, sender models.DeviceID, timestamp time.Time, body []byte) (uint64, error) {
	key := box{org, recipient}
	index := uint64(len(r.boxes[key])) + 1
	r.boxes[key] = append(r.boxes[key], models.Message{
		Index: index, Sender: sender, Timestamp: timestamp, Body: bytes.Clone(body),
	})
	return index, nil
}

func (r *MemoryRepository) List(_ context.Context, org models.OrganizationID, recipient models.UserID, offset uint64) ([]*models.Message, error) {
	msgs := r.boxes[box{org, recipient}]
	var out []*models.Message
	if offset >= uint64(len(msgs)) {
		return out, nil
	}
	for _, m := range msgs[offset:] {
		m.Body = bytes.Clone(m.Body)
		out = append(out, &m)
	}
	return out, nil
}
