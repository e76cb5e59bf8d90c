package sequester

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

const serviceColumns = `service_id, service_label, certificate, service_type, webhook_url, created_on, disabled_on`

func scanService(row interface{ Scan(dest ...any) error }) (*models.SequesterService, error) {
	var (
		s          models.SequesterService
		typ        string
		disabledOn sql.NullTime
	)
	if err := row.Scan(&s.ServiceID, &s.ServiceLabel, &s.Certificate, &typ, &s.WebhookURL, &s.CreatedOn, &disabledOn); err != nil {
		return nil, err
	}
	s.Type = models.SequesterServiceType(typ)
	s.DisabledOn = dbx.TimePtr(disabledOn)
	return &s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, org models.OrganizationID, s *models.SequesterService) error {
	query :=
		`INSERT INTO sequester_services (organization_id, service_id, service_label, certificate, service_type, webhook_url, created_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), s.ServiceID, s.ServiceLabel, s.Certificate, string(s.Type), s.WebhookURL, s.CreatedOn)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.SequesterService, error) {
	query := `SELECT ` + serviceColumns + ` FROM sequester_services
		 WHERE organization_id = $1 AND service_id = $2`

	s, err := scanService(r.db.QueryRowContext(ctx, query, string(org), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context, org models.OrganizationID) ([]*models.SequesterService, error) {
	query := `SELECT ` + serviceColumns + ` FROM sequester_services
		 WHERE organization_id = $1
		 ORDER BY created_on, service_id`

	rows, err := r.db.QueryContext(ctx, query, string(org))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.SequesterService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Disable(ctx context.Context, org models.OrganizationID, id uuid.UUID, on time.Time) error {
	query :=
		`UPDATE sequester_services SET disabled_on = $3
		 WHERE organization_id = $1 AND service_id = $2 AND disabled_on IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, string(org), id, on)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
