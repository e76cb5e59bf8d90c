// Package certlog stores the per-organization log of accepted certificates.
// Indexes start at 1 and grow by one on every append.
package certlog

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, org models.OrganizationID, kind string, timestamp time.Time, certificate []byte) (uint64, error)
	// List returns the records with an index greater than after.
	List(ctx context.Context, org models.OrganizationID, after uint64) ([]*models.CertificateRecord, error)
	// IndexAt returns the index of the last certificate issued at or before
	// at, 0 if there is none.
	IndexAt(ctx context.Context, org models.OrganizationID, at time.Time) (uint64, error)
	Last(ctx context.Context, org models.OrganizationID) (uint64, error)
}
