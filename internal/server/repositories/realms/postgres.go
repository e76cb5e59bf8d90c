package realms

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

const realmColumns = `realm_id, encryption_revision, maintenance_type, maintenance_started_on,
		 maintenance_started_by, created_on, checkpoint`

const grantColumns = `realm_id, user_id, role, certificate, granted_by, granted_on`

type scanner interface {
	Scan(dest ...any) error
}

func scanRealm(row scanner) (*models.Realm, error) {
	var (
		realm     models.Realm
		mtype     sql.NullString
		startedOn sql.NullTime
		startedBy sql.NullString
	)
	err := row.Scan(&realm.RealmID, &realm.EncryptionRevision, &mtype, &startedOn, &startedBy,
		&realm.CreatedOn, &realm.Checkpoint)
	if err != nil {
		return nil, err
	}
	realm.MaintenanceType = dbx.StringPtr[models.MaintenanceType](mtype)
	realm.MaintenanceStartedOn = dbx.TimePtr(startedOn)
	realm.MaintenanceStartedBy = dbx.StringPtr[models.DeviceID](startedBy)
	return &realm, nil
}

func scanGrant(row scanner) (*models.RealmGrant, error) {
	var (
		g         models.RealmGrant
		role      sql.NullString
		grantedBy sql.NullString
	)
	if err := row.Scan(&g.RealmID, &g.UserID, &role, &g.Certificate, &grantedBy, &g.GrantedOn); err != nil {
		return nil, err
	}
	g.Role = dbx.StringPtr[models.RealmRole](role)
	g.GrantedBy = dbx.StringPtr[models.DeviceID](grantedBy)
	return &g, nil
}

func (r *PostgresRepository) Create(ctx context.Context, org models.OrganizationID, realm *models.Realm, grant *models.RealmGrant) error {
	query :=
		`INSERT INTO realms (organization_id, realm_id, encryption_revision, created_on, checkpoint)
		 VALUES ($1, $2, $3, $4, 0)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), realm.RealmID, int64(realm.EncryptionRevision), realm.CreatedOn)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return r.AddGrant(ctx, org, grant)
}

func (r *PostgresRepository) get(ctx context.Context, org models.OrganizationID, id uuid.UUID, suffix string) (*models.Realm, error) {
	query := `SELECT ` + realmColumns + ` FROM realms
		 WHERE organization_id = $1 AND realm_id = $2` + suffix

	realm, err := scanRealm(r.db.QueryRowContext(ctx, query, string(org), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return realm, nil
}

func (r *PostgresRepository) Get(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.Realm, error) {
	return r.get(ctx, org, id, "")
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.Realm, error) {
	return r.get(ctx, org, id, " FOR UPDATE")
}

func (r *PostgresRepository) List(ctx context.Context, org models.OrganizationID) ([]*models.Realm, error) {
	query := `SELECT ` + realmColumns + ` FROM realms
		 WHERE organization_id = $1
		 ORDER BY created_on, realm_id`

	rows, err := r.db.QueryContext(ctx, query, string(org))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Realm
	for rows.Next() {
		realm, err := scanRealm(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, realm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) AddGrant(ctx context.Context, org models.OrganizationID, grant *models.RealmGrant) error {
	query :=
		`INSERT INTO realm_user_roles (organization_id, realm_id, user_id, role, certificate, granted_by, granted_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), grant.RealmID, string(grant.UserID),
		dbx.NullString(grant.Role), grant.Certificate, dbx.NullString(grant.GrantedBy), grant.GrantedOn)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Grants(ctx context.Context, org models.OrganizationID, realm uuid.UUID) ([]*models.RealmGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM realm_user_roles
		 WHERE organization_id = $1 AND realm_id = $2
		 ORDER BY granted_on, _id`

	rows, err := r.db.QueryContext(ctx, query, string(org), realm)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.RealmGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) LastGrant(ctx context.Context, org models.OrganizationID, realm uuid.UUID, user models.UserID) (*models.RealmGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM realm_user_roles
		 WHERE organization_id = $1 AND realm_id = $2 AND user_id = $3
		 ORDER BY granted_on DESC, _id DESC
		 LIMIT 1`

	g, err := scanGrant(r.db.QueryRowContext(ctx, query, string(org), realm, string(user)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) UserRealms(ctx context.Context, org models.OrganizationID, user models.UserID) ([]uuid.UUID, error) {
	query :=
		`SELECT realm_id FROM (
		     SELECT DISTINCT ON (realm_id) realm_id, role FROM realm_user_roles
		     WHERE organization_id = $1 AND user_id = $2
		     ORDER BY realm_id, granted_on DESC, _id DESC
		 ) AS last_grants
		 WHERE role IS NOT NULL
		 `

	rows, err := r.db.QueryContext(ctx, query, string(org), string(user))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
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

func (r *PostgresRepository) StartMaintenance(ctx context.Context, org models.OrganizationID, realm uuid.UUID, revision uint64, by models.DeviceID, on time.Time) error {
	return r.exec(ctx,
		`UPDATE realms
		 SET encryption_revision = $3, maintenance_type = $4, maintenance_started_on = $5, maintenance_started_by = $6
		 WHERE organization_id = $1 AND realm_id = $2
		 `, string(org), realm, int64(revision), string(models.MaintenanceTypeReencryption), on, string(by))
}

func (r *PostgresRepository) FinishMaintenance(ctx context.Context, org models.OrganizationID, realm uuid.UUID) error {
	return r.exec(ctx,
		`UPDATE realms
		 SET maintenance_type = NULL, maintenance_started_on = NULL, maintenance_started_by = NULL
		 WHERE organization_id = $1 AND realm_id = $2
		 `, string(org), realm)
}

func (r *PostgresRepository) BumpCheckpoint(ctx context.Context, org models.OrganizationID, realm uuid.UUID) (uint64, error) {
	query :=
		`UPDATE realms SET checkpoint = checkpoint + 1
		 WHERE organization_id = $1 AND realm_id = $2
		 RETURNING checkpoint
		 `

	var checkpoint uint64
	if err := r.db.QueryRowContext(ctx, query, string(org), realm).Scan(&checkpoint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return checkpoint, nil
}
