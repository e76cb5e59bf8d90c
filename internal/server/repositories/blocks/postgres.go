package blocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/dbx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, org models.OrganizationID, block *models.Block) error {
	query :=
		`INSERT INTO blocks (organization_id, block_id, realm_id, author, size, created_on)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), block.BlockID, block.RealmID, string(block.Author), block.Size, block.CreatedOn)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) (*models.Block, error) {
	query :=
		`SELECT block_id, realm_id, author, size, created_on FROM blocks
		 WHERE organization_id = $1 AND block_id = $2
		 `

	var (
		b      models.Block
		author string
	)
	err := r.db.QueryRowContext(ctx, query, string(org), blockID).Scan(&b.BlockID, &b.RealmID, &author, &b.Size, &b.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	b.Author = models.DeviceID(author)
	return &b, nil
}

func (r *PostgresRepository) Size(ctx context.Context, org models.OrganizationID, realmID *uuid.UUID, at *time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(size), 0) FROM blocks WHERE organization_id = $1`
	args := []any{string(org)}
	if realmID != nil {
		args = append(args, *realmID)
		query += fmt.Sprintf(` AND realm_id = $%d`, len(args))
	}
	if at != nil {
		args = append(args, *at)
		query += fmt.Sprintf(` AND created_on <= $%d`, len(args))
	}

	var size int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&size); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return size, nil
}
