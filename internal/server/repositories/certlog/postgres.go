package certlog

import (
	"context"
	"fmt"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/dbx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, org models.OrganizationID, kind string, timestamp time.Time, certificate []byte) (uint64, error) {
	// Serialize appenders of the organization until the end of the transaction.
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('certificates/' || $1))`, string(org)); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	query :=
		`INSERT INTO certificates (organization_id, cert_index, kind, certified_on, certificate)
		 SELECT $1, COALESCE(MAX(cert_index), 0) + 1, $2, $3, $4
		 FROM certificates WHERE organization_id = $1
		 RETURNING cert_index
		 `

	var index uint64
	if err := r.db.QueryRowContext(ctx, query, string(org), kind, timestamp, certificate).Scan(&index); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return index, nil
}

func (r *PostgresRepository) List(ctx context.Context, org models.OrganizationID, after uint64) ([]*models.CertificateRecord, error) {
	query :=
		`SELECT cert_index, kind, certified_on, certificate FROM certificates
		 WHERE organization_id = $1 AND cert_index > $2
		 ORDER BY cert_index
		 `

	rows, err := r.db.QueryContext(ctx, query, string(org), int64(after))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.CertificateRecord
	for rows.Next() {
		var rec models.CertificateRecord
		if err := rows.Scan(&rec.Index, &rec.Kind, &rec.Timestamp, &rec.Certificate); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) IndexAt(ctx context.Context, org models.OrganizationID, at time.Time) (uint64, error) {
	query :=
		`SELECT COALESCE(MAX(cert_index), 0) FROM certificates
		 WHERE organization_id = $1 AND certified_on <= $2
		 `

	var index uint64
	if err := r.db.QueryRowContext(ctx, query, string(org), at).Scan(&index); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return index, nil
}

func (r *PostgresRepository) Last(ctx context.Context, org models.OrganizationID) (uint64, error) {
	query := `SELECT COALESCE(MAX(cert_index), 0) FROM certificates WHERE organization_id = $1`

	var index uint64
	if err := r.db.QueryRowContext(ctx, query, string(org)).Scan(&index); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return index, nil
}
