package blockstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Scille/parsec-cloud-sub009/internal/dbx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// PostgresBlockstore stores payloads in the block_data table of the
// metadata database.
type PostgresBlockstore struct {
	db dbx.DBTX
}

func NewPostgresBlockstore(db dbx.DBTX) *PostgresBlockstore {
	return &PostgresBlockstore{db: db}
}

func (s *PostgresBlockstore) Read(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) ([]byte, error) {
	query := `SELECT data FROM block_data WHERE organization_id = $1 AND block_id = $2`

	var data []byte
	if err := s.db.QueryRowContext(ctx, query, string(org), blockID).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return data, nil
}

func (s *PostgresBlockstore) Create(ctx context.Context, org models.OrganizationID, blockID uuid.UUID, data []byte) error {
	query :=
		`INSERT INTO block_data (organization_id, block_id, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING
		 `

	if _, err := s.db.ExecContext(ctx, query, string(org), blockID, data); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
