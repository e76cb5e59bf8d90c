package pki

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	enrollments map[models.OrganizationID]map[uuid.UUID]*models.PkiEnrollment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{enrollments: make(map[models.OrganizationID]map[uuid.UUID]*models.PkiEnrollment)}
}

func clone(e *models.PkiEnrollment) *models.PkiEnrollment {
	c := *e
	if e.DecidedOn != nil {
		t := *e.DecidedOn
		c.DecidedOn = &t
	}
	if e.Accepted != nil {
		a := *e.Accepted
		c.Accepted = &a
	}
	if e.AcceptedBy != nil {
		u := *e.AcceptedBy
		c.AcceptedBy = &u
	}
	if e.EnrolledUser != nil {
		u := *e.EnrolledUser
		c.EnrolledUser = &u
	}
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, org models.OrganizationID, e *models.PkiEnrollment) error {
	if r.enrollments[org] == nil {
		r.enrollments[org] = make(map[uuid.UUID]*models.PkiEnrollment)
	}
	if _, ok := r.enrollments[org][e.EnrollmentID]; ok {
		return common.ErrorAlreadyExists
	}
	c := clone(e)
	c.Status = models.PkiEnrollmentStatusSubmitted
	r.enrollments[org][e.EnrollmentID] = c
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, org models.OrganizationID, id uuid.UUID) (*models.PkiEnrollment, error) {
	e, ok := r.enrollments[org][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(e), nil
}

func (r *MemoryRepository) filter(org models.OrganizationID, keep func(*models.PkiEnrollment) bool) []*models.PkiEnrollment {
	var out []*models.PkiEnrollment
	for _, e := range r.enrollments[org] {
		if keep(e) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedOn.Before(out[j].SubmittedOn) })
	return out
}

func (r *MemoryRepository) ListByFingerprint(_ context.Context, org models.OrganizationID, fingerprint []byte) ([]*models.PkiEnrollment, error) {
	return r.filter(org, func(e *models.PkiEnrollment) bool {
		return bytes.Equal(e.SubmitterDerX509Fingerprint, fingerprint)
	}), nil
}

func (r *MemoryRepository) ListSubmitted(_ context.Context, org models.OrganizationID) ([]*models.PkiEnrollment, error) {
	return r.filter(org, func(e *models.PkiEnrollment) bool {
		return e.Status == models.PkiEnrollmentStatusSubmitted
	}), nil
}

func (r *MemoryRepository) Decide(_ context.Context, org models.OrganizationID, id uuid.UUID, status models.PkiEnrollmentStatus, on time.Time,
	accepted *models.PkiEnrollmentAcceptance, acceptedBy *models.UserID, enrolledUser *models.UserID) error {
	e, ok := r.enrollments[org][id]
	if !ok || e.Status != models.PkiEnrollmentStatusSubmitted {
		return common.ErrorNotFound
	}
	e.Status = status
	e.DecidedOn = &on
	e.Accepted = accepted
	e.AcceptedBy = acceptedBy
	e.EnrolledUser = enrolledUser
	*e = *clone(e)
	return nil
}
