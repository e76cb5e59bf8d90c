package pki

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, org models.OrganizationID, e *models.PkiEnrollment) error
	Get(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.PkiEnrollment, error)
	// ListByFingerprint returns every enrollment submitted with the
	// certificate, oldest first.
	ListByFingerprint(ctx context.Context, org models.OrganizationID, fingerprint []byte) ([]*models.PkiEnrollment, error)
	ListSubmitted(ctx context.Context, org models.OrganizationID) ([]*models.PkiEnrollment, error)
	// Decide moves a SUBMITTED enrollment to status. It fails with
	// common.ErrorNotFound if the enrollment is no longer SUBMITTED.
	Decide(ctx context.Context, org models.OrganizationID, id uuid.UUID, status models.PkiEnrollmentStatus, on time.Time,
		accepted *models.PkiEnrollmentAcceptance, acceptedBy *models.UserID, enrolledUser *models.UserID) error
}
