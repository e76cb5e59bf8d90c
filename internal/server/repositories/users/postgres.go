package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

const userColumns = `user_id, human_email, human_label, profile, user_certificate, redacted_user_certificate,
		 user_certifier, created_on, revoked_on, revoked_user_certificate, revoked_user_certifier`

const deviceColumns = `device_id, device_label, verify_key, device_certificate, redacted_device_certificate,
		 device_certifier, created_on`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u                models.User
		email, label     sql.NullString
		certifier        sql.NullString
		revokedOn        sql.NullTime
		revokedCertifier sql.NullString
	)
	err := row.Scan(&u.UserID, &email, &label, &u.Profile, &u.UserCertificate, &u.RedactedUserCertificate,
		&certifier, &u.CreatedOn, &revokedOn, &u.RevokedUserCertificate, &revokedCertifier)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		u.HumanHandle = &models.HumanHandle{Email: email.String, Label: label.String}
	}
	u.UserCertifier = dbx.StringPtr[models.DeviceID](certifier)
	u.RevokedOn = dbx.TimePtr(revokedOn)
	u.RevokedUserCertifier = dbx.StringPtr[models.DeviceID](revokedCertifier)
	return &u, nil
}

func scanDevice(row scanner) (*models.Device, error) {
	var (
		d         models.Device
		label     sql.NullString
		certifier sql.NullString
	)
	err := row.Scan(&d.DeviceID, &label, &d.VerifyKey, &d.DeviceCertificate, &d.RedactedDeviceCertificate,
		&certifier, &d.CreatedOn)
	if err != nil {
		return nil, err
	}
	d.DeviceLabel = dbx.StringPtr[string](label)
	d.DeviceCertifier = dbx.StringPtr[models.DeviceID](certifier)
	return &d, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, org models.OrganizationID, user *models.User, device *models.Device) error {
	query :=
		`INSERT INTO users (organization_id, user_id, human_email, human_label, profile, user_certificate,
		                    redacted_user_certificate, user_certifier, created_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	var email, label sql.NullString
	if user.HumanHandle != nil {
		email = sql.NullString{String: user.HumanHandle.Email, Valid: true}
		label = sql.NullString{String: user.HumanHandle.Label, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, string(org), string(user.UserID), email, label, string(user.Profile),
		user.UserCertificate, user.RedactedUserCertificate, dbx.NullString(user.UserCertifier), user.CreatedOn)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return r.CreateDevice(ctx, org, device)
}

func (r *PostgresRepository) CreateDevice(ctx context.Context, org models.OrganizationID, device *models.Device) error {
	query :=
		`INSERT INTO devices (organization_id, device_id, user_id, device_label, verify_key, device_certificate,
		                      redacted_device_certificate, device_certifier, created_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), string(device.DeviceID), string(device.DeviceID.UserID()),
		dbx.NullString(device.DeviceLabel), device.VerifyKey, device.DeviceCertificate, device.RedactedDeviceCertificate,
		dbx.NullString(device.DeviceCertifier), device.CreatedOn)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, org models.OrganizationID, id models.UserID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE organization_id = $1 AND user_id = $2`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, string(org), string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetDevice(ctx context.Context, org models.OrganizationID, id models.DeviceID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		 WHERE organization_id = $1 AND device_id = $2`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, string(org), string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context, org models.OrganizationID) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE organization_id = $1
		 ORDER BY created_on, user_id`

	rows, err := r.db.QueryContext(ctx, query, string(org))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListDevices(ctx context.Context, org models.OrganizationID, user models.UserID) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		 WHERE organization_id = $1 AND user_id = $2
		 ORDER BY created_on, device_id`

	rows, err := r.db.QueryContext(ctx, query, string(org), string(user))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, org models.OrganizationID, id models.UserID, certificate []byte, certifier models.DeviceID, on time.Time) error {
	query :=
		`UPDATE users
		 SET revoked_on = $3, revoked_user_certificate = $4, revoked_user_certifier = $5
		 WHERE organization_id = $1 AND user_id = $2 AND revoked_on IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, string(org), string(id), on, certificate, string(certifier))
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
