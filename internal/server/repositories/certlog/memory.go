package certlog

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	logs map[models.OrganizationID][]models.CertificateRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{logs: make(map[models.OrganizationID][]models.CertificateRecord)}
}

func (r *MemoryRepository) Append(_ context.Context, org models.OrganizationID, kind string, timestamp time.Time, certificate []byte) (uint64, error) {
	index := uint64(len(r.logs[org]) + 1)
	r.logs[org] = append(r.logs[org], models.CertificateRecord{
		Index: index, Kind: kind, Timestamp: timestamp, Certificate: certificate,
	})
	return index, nil
}

func (r *MemoryRepository) List(_ context.Context, org models.OrganizationID, after uint64) ([]*models.CertificateRecord, error) {
	var out []*models.CertificateRecord
	for _, rec := range r.logs[org] {
		if rec.Index > after {
			rec := rec
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *MemoryRepository) IndexAt(_ context.Context, org models.OrganizationID, at time.Time) (uint64, error) {
	var index uint64
	for _, rec := range r.logs[org] {
		if !rec.Timestamp.After(at) && rec.Index > index {
			index = rec.Index
		}
	}
	return index, nil
}

func (r *MemoryRepository) Last(_ context.Context, org models.OrganizationID) (uint64, error) {
	return uint64(len(r.logs[org])), nil
}
