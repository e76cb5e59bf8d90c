package pki

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

const enrollmentColumns = `enrollment_id, submitter_der_x509_certificate, submitter_der_x509_fingerprint,
		 submitter_der_x509_certificate_email, submit_payload_signature, submit_payload, submitted_on,
		 status, decided_on, accepter_der_x509_certificate, accept_payload_signature, accept_payload,
		 accepted_by, enrolled_user`

func scanEnrollment(row interface{ Scan(dest ...any) error }) (*models.PkiEnrollment, error) {
	var (
		e            models.PkiEnrollment
		status       string
		decidedOn    sql.NullTime
		accepterCert []byte
		acceptSig    []byte
		acceptBody   []byte
		acceptedBy   sql.NullString
		enrolledUser sql.NullString
	)
	err := row.Scan(&e.EnrollmentID, &e.SubmitterDerX509Certificate, &e.SubmitterDerX509Fingerprint,
		&e.SubmitterDerX509CertificateEmail, &e.SubmitPayloadSignature, &e.SubmitPayload, &e.SubmittedOn,
		&status, &decidedOn, &accepterCert, &acceptSig, &acceptBody, &acceptedBy, &enrolledUser)
	if err != nil {
		return nil, err
	}
	e.Status = models.PkiEnrollmentStatus(status)
	e.DecidedOn = dbx.TimePtr(decidedOn)
	if accepterCert != nil {
		e.Accepted = &models.PkiEnrollmentAcceptance{
			AccepterDerX509Certificate: accepterCert,
			AcceptPayloadSignature:     acceptSig,
			AcceptPayload:              acceptBody,
		}
	}
	e.AcceptedBy = dbx.StringPtr[models.UserID](acceptedBy)
	e.EnrolledUser = dbx.StringPtr[models.UserID](enrolledUser)
	return &e, nil
}

func (r *PostgresRepository) Create(ctx context.Context, org models.OrganizationID, e *models.PkiEnrollment) error {
	query :=
		`INSERT INTO pki_enrollments (organization_id, enrollment_id, submitter_der_x509_certificate,
		     submitter_der_x509_fingerprint, submitter_der_x509_certificate_email, submit_payload_signature,
		     submit_payload, submitted_on, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), e.EnrollmentID, e.SubmitterDerX509Certificate,
		e.SubmitterDerX509Fingerprint, e.SubmitterDerX509CertificateEmail, e.SubmitPayloadSignature,
		e.SubmitPayload, e.SubmittedOn, string(models.PkiEnrollmentStatusSubmitted))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.PkiEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM pki_enrollments
		 WHERE organization_id = $1 AND enrollment_id = $2`

	e, err := scanEnrollment(r.db.QueryRowContext(ctx, query, string(org), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.PkiEnrollment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.PkiEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListByFingerprint(ctx context.Context, org models.OrganizationID, fingerprint []byte) ([]*models.PkiEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM pki_enrollments
		 WHERE organization_id = $1 AND submitter_der_x509_fingerprint = $2
		 ORDER BY submitted_on`
	return r.list(ctx, query, string(org), fingerprint)
}

func (r *PostgresRepository) ListSubmitted(ctx context.Context, org models.OrganizationID) ([]*models.PkiEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM pki_enrollments
		 WHERE organization_id = $1 AND status = $2
		 ORDER BY submitted_on`
	return r.list(ctx, query, string(org), string(models.PkiEnrollmentStatusSubmitted))
}

func (r *PostgresRepository) Decide(ctx context.Context, org models.OrganizationID, id uuid.UUID, status models.PkiEnrollmentStatus, on time.Time,
	accepted *models.PkiEnrollmentAcceptance, acceptedBy *models.UserID, enrolledUser *models.UserID) error {
	var accepterCert, acceptSig, acceptBody []byte
	if accepted != nil {
		accepterCert = accepted.AccepterDerX509Certificate
		acceptSig = accepted.AcceptPayloadSignature
		acceptBody = accepted.AcceptPayload
	}

	query :=
		`UPDATE pki_enrollments
		 SET status = $3, decided_on = $4, accepter_der_x509_certificate = $5,
		     accept_payload_signature = $6, accept_payload = $7, accepted_by = $8, enrolled_user = $9
		 WHERE organization_id = $1 AND enrollment_id = $2 AND status = 'SUBMITTED'
		 `

	res, err := r.db.ExecContext(ctx, query, string(org), id, string(status), on, accepterCert, acceptSig, acceptBody,
		dbx.NullString(acceptedBy), dbx.NullString(enrolledUser))
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
