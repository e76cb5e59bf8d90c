package services

import (
	"context"
	"strings"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// PkiService handles enrollments of users identified by an X.509
// certificate instead of an invitation.
type PkiService struct {
	base
}

type PkiSubmitParams struct {
	EnrollmentID                     uuid.UUID
	Force                            bool
	SubmitterDerX509Certificate      []byte
	SubmitterDerX509CertificateEmail string
	SubmitPayloadSignature           []byte
	SubmitPayload                    []byte
}

// Submit records an enrollment request. With force, a pending request for
// the same certificate is cancelled instead of failing.
func (s *PkiService) Submit(ctx context.Context, org models.OrganizationID, p PkiSubmitParams) (*models.PkiEnrollment, error) {
	now := s.now()
	e := &models.PkiEnrollment{
		EnrollmentID:                     p.EnrollmentID,
		SubmitterDerX509Certificate:      p.SubmitterDerX509Certificate,
		SubmitterDerX509Fingerprint:      cryptox.Fingerprint(p.SubmitterDerX509Certificate),
		SubmitterDerX509CertificateEmail: p.SubmitterDerX509CertificateEmail,
		SubmitPayloadSignature:           p.SubmitPayloadSignature,
		SubmitPayload:                    p.SubmitPayload,
		SubmittedOn:                      now,
		Status:                           models.PkiEnrollmentStatusSubmitted,
	}
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, err := r.Pki.Get(ctx, org, p.EnrollmentID); err == nil {
			return ErrIDAlreadyUsed
		} else if err = repoError(err, nil); err != nil {
			return err
		}

		previous, err := r.Pki.ListByFingerprint(ctx, org, e.SubmitterDerX509Fingerprint)
		if err != nil {
			return err
		}
		var cancel *models.PkiEnrollment
		if n := len(previous); n > 0 {
			last := previous[n-1]
			switch last.Status {
			case models.PkiEnrollmentStatusSubmitted:
				if !p.Force {
					return &AlreadySubmittedError{SubmittedOn: last.SubmittedOn}
				}
				cancel = last
			case models.PkiEnrollmentStatusAccepted:
				if last.EnrolledUser != nil {
					u, err := r.Users.GetUser(ctx, org, *last.EnrolledUser)
					if err = repoError(err, nil); err != nil {
						return err
					}
					if u != nil && !u.IsRevoked() {
						return ErrAlreadyEnrolled
					}
				}
			}
		}

		users, err := r.Users.ListUsers(ctx, org)
		if err != nil {
			return err
		}
		for _, u := range users {
			if !u.IsRevoked() && u.HumanHandle != nil && strings.EqualFold(u.HumanHandle.Email, p.SubmitterDerX509CertificateEmail) {
				return ErrEmailAlreadyUsed
			}
		}

		if cancel != nil {
			if err := r.Pki.Decide(ctx, org, cancel.EnrollmentID, models.PkiEnrollmentStatusCancelled, now, nil, nil, nil); err != nil {
				return err
			}
		}
		return repoError(r.Pki.Create(ctx, org, e), ErrIDAlreadyUsed)
	})
	if err != nil {
		return nil, err
	}
	s.publish(&events.PkiEnrollmentUpdated{OrganizationID: org})
	return e, nil
}

// Info returns an enrollment to its submitter.
func (s *PkiService) Info(ctx context.Context, org models.OrganizationID, id uuid.UUID) (*models.PkiEnrollment, error) {
	var e *models.PkiEnrollment
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		e, err = r.Pki.Get(ctx, org, id)
		return repoError(err, ErrNotFound)
	})
	return e, err
}

// List returns the pending enrollments. Administrators only.
func (s *PkiService) List(ctx context.Context, caller Caller) ([]*models.PkiEnrollment, error) {
	if caller.Profile != models.UserProfileAdmin {
		return nil, ErrNotAllowed
	}
	var out []*models.PkiEnrollment
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		out, err = r.Pki.ListSubmitted(ctx, caller.OrganizationID)
		return err
	})
	return out, err
}

func pendingEnrollment(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID, id uuid.UUID) error {
	e, err := r.Pki.Get(ctx, org, id)
	if err != nil {
		return repoError(err, ErrNotFound)
	}
	if e.Status != models.PkiEnrollmentStatusSubmitted {
		return ErrNoLongerAvailable
	}
	return nil
}

func (s *PkiService) Reject(ctx context.Context, caller Caller, id uuid.UUID) error {
	if caller.Profile != models.UserProfileAdmin {
		return ErrNotAllowed
	}
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := pendingEnrollment(ctx, r, caller.OrganizationID, id); err != nil {
			return err
		}
		err := r.Pki.Decide(ctx, caller.OrganizationID, id, models.PkiEnrollmentStatusRejected, s.now(), nil, nil, nil)
		return repoError(err, ErrNoLongerAvailable)
	})
	if err != nil {
		return err
	}
	s.publish(&events.PkiEnrollmentUpdated{OrganizationID: caller.OrganizationID})
	return nil
}

type PkiAcceptParams struct {
	EnrollmentID uuid.UUID
	Acceptance   models.PkiEnrollmentAcceptance
	UserCreateParams
}

// Accept creates the enrolled user, with the same checks as a regular
// user creation.
func (s *PkiService) Accept(ctx context.Context, caller Caller, p PkiAcceptParams) error {
	if caller.Profile != models.UserProfileAdmin {
		return ErrNotAllowed
	}
	author := caller.DeviceID
	nu, err := s.loadNewUser(caller.VerifyKey, &author, newUserCertificates{
		User: p.UserCertificate, Device: p.DeviceCertificate,
		RedactedUser: p.RedactedUserCertificate, RedactedDevice: p.RedactedDeviceCertificate,
	})
	if err != nil {
		return err
	}
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := pendingEnrollment(ctx, r, caller.OrganizationID, p.EnrollmentID); err != nil {
			return err
		}
		if err := insertNewUser(ctx, r, caller.OrganizationID, nu); err != nil {
			return err
		}
		accepter := caller.UserID()
		enrolled := nu.user.UserID
		acceptance := p.Acceptance
		err := r.Pki.Decide(ctx, caller.OrganizationID, p.EnrollmentID, models.PkiEnrollmentStatusAccepted,
			nu.user.Timestamp, &acceptance, &accepter, &enrolled)
		return repoError(err, ErrNoLongerAvailable)
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "pki enrollment accepted", "organization_id", caller.OrganizationID,
		"enrollment_id", p.EnrollmentID, "user_id", nu.user.UserID)
	s.publish(&events.PkiEnrollmentUpdated{OrganizationID: caller.OrganizationID})
	return nil
}
