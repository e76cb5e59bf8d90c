package vlobs

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

const atomColumns = `realm_id, vlob_id, encryption_revision, version, author, created_on, blob, sequester_blob`

func scanAtom(row interface{ Scan(dest ...any) error }) (*models.VlobAtom, error) {
	var (
		a         models.VlobAtom
		author    string
		sequester []byte
	)
	err := row.Scan(&a.RealmID, &a.VlobID, &a.EncryptionRevision, &a.Version, &author, &a.CreatedOn, &a.Blob, &sequester)
	if err != nil {
		return nil, err
	}
	a.Author = models.DeviceID(author)
	if a.SequesterBlob, err = decodeSequesterBlob(sequester); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepository) queryAtom(ctx context.Context, query string, args ...any) (*models.VlobAtom, error) {
	a, err := scanAtom(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Latest(ctx context.Context, org models.OrganizationID, vlobID uuid.UUID) (*models.VlobAtom, error) {
	query := `SELECT ` + atomColumns + ` FROM vlob_atoms
		 WHERE organization_id = $1 AND vlob_id = $2
		 ORDER BY version DESC, encryption_revision DESC
		 LIMIT 1`

	return r.queryAtom(ctx, query, string(org), vlobID)
}

func (r *PostgresRepository) Create(ctx context.Context, org models.OrganizationID, atom *models.VlobAtom) error {
	sequester, err := encodeSequesterBlob(atom.SequesterBlob)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO vlob_atoms (organization_id, realm_id, vlob_id, encryption_revision, version,
		     author, created_on, blob, size, sequester_blob)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 `

	_, err = r.db.ExecContext(ctx, query, string(org), atom.RealmID, atom.VlobID, int64(atom.EncryptionRevision),
		int64(atom.Version), string(atom.Author), atom.CreatedOn, atom.Blob, int64(len(atom.Blob)), sequester)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Read(ctx context.Context, org models.OrganizationID, vlobID uuid.UUID, revision uint64, version *uint64, at *time.Time) (*models.VlobAtom, error) {
	query := `SELECT ` + atomColumns + ` FROM vlob_atoms
		 WHERE organization_id = $1 AND vlob_id = $2 AND encryption_revision = $3`
	args := []any{string(org), vlobID, int64(revision)}

	switch {
	case version != nil:
		query += ` AND version = $4`
		args = append(args, int64(*version))
	case at != nil:
		query += ` AND created_on <= $4 ORDER BY version DESC LIMIT 1`
		args = append(args, *at)
	default:
		query += ` ORDER BY version DESC LIMIT 1`
	}
	return r.queryAtom(ctx, query, args...)
}

func (r *PostgresRepository) ListVersions(ctx context.Context, org models.OrganizationID, vlobID uuid.UUID, revision uint64) ([]models.VlobVersionInfo, error) {
	query :=
		`SELECT version, created_on, author FROM vlob_atoms
		 WHERE organization_id = $1 AND vlob_id = $2 AND encryption_revision = $3
		 ORDER BY version`

	rows, err := r.db.QueryContext(ctx, query, string(org), vlobID, int64(revision))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.VlobVersionInfo
	for rows.Next() {
		var (
			v      models.VlobVersionInfo
			author string
		)
		if err := rows.Scan(&v.Version, &v.CreatedOn, &author); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		v.Author = models.DeviceID(author)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) AddChange(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, change models.VlobChange) error {
	query :=
		`INSERT INTO realm_vlob_updates (organization_id, realm_id, checkpoint, vlob_id, version)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), realmID, int64(change.Checkpoint), change.VlobID, int64(change.Version))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Changes(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, since uint64) (map[uuid.UUID]uint64, error) {
	query :=
		`SELECT vlob_id, MAX(version) FROM realm_vlob_updates
		 WHERE organization_id = $1 AND realm_id = $2 AND checkpoint > $3
		 GROUP BY vlob_id`

	rows, err := r.db.QueryContext(ctx, query, string(org), realmID, int64(since))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]uint64)
	for rows.Next() {
		var (
			id      uuid.UUID
			version uint64
		)
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[id] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ReencryptionBatch(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64, size int) ([]models.ReencryptionEntry, error) {
	query :=
		`SELECT o.vlob_id, o.version, o.blob FROM vlob_atoms o
		 WHERE o.organization_id = $1 AND o.realm_id = $2 AND o.encryption_revision = $3
		   AND NOT EXISTS (
		     SELECT 1 FROM vlob_atoms n
		     WHERE n.organization_id = o.organization_id AND n.vlob_id = o.vlob_id
		       AND n.version = o.version AND n.encryption_revision = $4
		   )
		 ORDER BY o.vlob_id, o.version
		 LIMIT $5`

	rows, err := r.db.QueryContext(ctx, query, string(org), realmID, int64(oldRev), int64(newRev), size)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.ReencryptionEntry
	for rows.Next() {
		var e models.ReencryptionEntry
		if err := rows.Scan(&e.VlobID, &e.Version, &e.Blob); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// SaveReencrypted copies metadata of each old atom under newRev with the new
// blob. Entries without an old atom, or already saved, are skipped.
func (r *PostgresRepository) SaveReencrypted(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64, entries []models.ReencryptionEntry) error {
	query :=
		`INSERT INTO vlob_atoms (organization_id, realm_id, vlob_id, encryption_revision, version,
		     author, created_on, blob, size, sequester_blob)
		 SELECT organization_id, realm_id, vlob_id, $4, version, author, created_on, $6, $7, sequester_blob
		 FROM vlob_atoms
		 WHERE organization_id = $1 AND realm_id = $2 AND encryption_revision = $3
		   AND vlob_id = $5 AND version = $8
		 ON CONFLICT DO NOTHING
		 `

	for _, e := range entries {
		_, err := r.db.ExecContext(ctx, query, string(org), realmID, int64(oldRev), int64(newRev),
			e.VlobID, e.Blob, int64(len(e.Blob)), int64(e.Version))
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) ReencryptionProgress(ctx context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64) (int, int, error) {
	query :=
		`SELECT COUNT(*), COUNT(n.vlob_id) FROM vlob_atoms o
		 LEFT JOIN vlob_atoms n
		   ON n.organization_id = o.organization_id AND n.vlob_id = o.vlob_id
		  AND n.version = o.version AND n.encryption_revision = $4
		 WHERE o.organization_id = $1 AND o.realm_id = $2 AND o.encryption_revision = $3`

	var total, done int
	err := r.db.QueryRowContext(ctx, query, string(org), realmID, int64(oldRev), int64(newRev)).Scan(&total, &done)
	if err != nil {
		return 0, 0, fmt.Errorf("db error: %w", err)
	}
	return total, done, nil
}

func (r *PostgresRepository) Size(ctx context.Context, org models.OrganizationID, realmID *uuid.UUID, at *time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(size), 0) FROM vlob_atoms WHERE organization_id = $1`
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
