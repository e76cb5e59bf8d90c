package organizations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/dbx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `organization_id, bootstrap_token, root_verify_key, is_expired, active_users_limit,
		 user_profile_outsider_allowed, created_on, bootstrapped_on,
		 sequester_authority_certificate, sequester_authority_verify_key`

func (r *PostgresRepository) Create(ctx context.Context, org *models.Organization) error {
	query :=
		`INSERT INTO organizations (organization_id, bootstrap_token, active_users_limit, user_profile_outsider_allowed, created_on)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (organization_id) DO UPDATE
		 SET bootstrap_token = EXCLUDED.bootstrap_token,
		     active_users_limit = EXCLUDED.active_users_limit,
		     user_profile_outsider_allowed = EXCLUDED.user_profile_outsider_allowed
		 WHERE organizations.root_verify_key IS NULL
		 RETURNING organization_id
		 `

	var limit sql.NullInt64
	if org.ActiveUsersLimit != nil {
		limit = sql.NullInt64{Int64: *org.ActiveUsersLimit, Valid: true}
	}

	var id string
	err := r.db.QueryRowContext(ctx, query,
		string(org.OrganizationID), org.BootstrapToken, limit, org.UserProfileOutsiderAllowed, org.CreatedOn).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row scanner) (*models.Organization, error) {
	var (
		org            models.Organization
		limit          sql.NullInt64
		bootstrappedOn sql.NullTime
		authCert       []byte
		authKey        []byte
	)
	err := row.Scan(&org.OrganizationID, &org.BootstrapToken, &org.RootVerifyKey, &org.IsExpired, &limit,
		&org.UserProfileOutsiderAllowed, &org.CreatedOn, &bootstrappedOn, &authCert, &authKey)
	if err != nil {
		return nil, err
	}
	if limit.Valid {
		org.ActiveUsersLimit = &limit.Int64
	}
	if bootstrappedOn.Valid {
		org.BootstrappedOn = &bootstrappedOn.Time
	}
	if authCert != nil {
		org.SequesterAuthority = &models.SequesterAuthority{Certificate: authCert, VerifyKey: authKey}
	}
	return &org, nil
}

func (r *PostgresRepository) get(ctx context.Context, id models.OrganizationID, suffix string) (*models.Organization, error) {
	query := `SELECT ` + selectColumns + ` FROM organizations
		 WHERE organization_id = $1` + suffix

	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return org, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id models.OrganizationID) (*models.Organization, error) {
	return r.get(ctx, id, "")
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id models.OrganizationID) (*models.Organization, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Organization, error) {
	query := `SELECT ` + selectColumns + ` FROM organizations ORDER BY organization_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Bootstrap(ctx context.Context, id models.OrganizationID, rootVerifyKey []byte, on time.Time, authority *models.SequesterAuthority) error {
	query :=
		`UPDATE organizations
		 SET root_verify_key = $2, bootstrapped_on = $3, bootstrap_token = '',
		     sequester_authority_certificate = $4, sequester_authority_verify_key = $5
		 WHERE organization_id = $1 AND root_verify_key IS NULL
		 `

	var authCert, authKey []byte
	if authority != nil {
		authCert, authKey = authority.Certificate, authority.VerifyKey
	}
	res, err := r.db.ExecContext(ctx, query, string(id), rootVerifyKey, on, authCert, authKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorAlreadyExists
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, id models.OrganizationID, upd models.OrganizationUpdate) error {
	args := []any{string(id)}
	var sets []string
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.IsExpired != nil {
		set("is_expired", *upd.IsExpired)
	}
	if upd.ActiveUsersLimit != nil {
		var limit sql.NullInt64
		if *upd.ActiveUsersLimit != nil {
			limit = sql.NullInt64{Int64: **upd.ActiveUsersLimit, Valid: true}
		}
		set("active_users_limit", limit)
	}
	if upd.UserProfileOutsiderAllowed != nil {
		set("user_profile_outsider_allowed", *upd.UserProfileOutsiderAllowed)
	}
	if len(sets) == 0 {
		_, err := r.Get(ctx, id)
		return err
	}

	query := `UPDATE organizations SET ` + strings.Join(sets, ", ") + ` WHERE organization_id = $1`
	res, err := r.db.ExecContext(ctx, query, args...)
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
