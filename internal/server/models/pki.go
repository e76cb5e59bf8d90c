package models

import (
	"time"

	"github.com/google/uuid"
)

type PkiEnrollmentStatus string

const (
	PkiEnrollmentStatusSubmitted PkiEnrollmentStatus = "SUBMITTED"
	PkiEnrollmentStatusAccepted  PkiEnrollmentStatus = "ACCEPTED"
	PkiEnrollmentStatusRejected  PkiEnrollmentStatus = "REJECTED"
	PkiEnrollmentStatusCancelled PkiEnrollmentStatus = "CANCELLED"
)

type PkiEnrollment struct {
	EnrollmentID                     uuid.UUID
	SubmitterDerX509Certificate      []byte
	SubmitterDerX509Fingerprint      []byte
	SubmitterDerX509CertificateEmail string
	SubmitPayloadSignature           []byte
	SubmitPayload                    []byte
	SubmittedOn                      time.Time

	Status     PkiEnrollmentStatus
	DecidedOn  *time.Time
	Accepted   *PkiEnrollmentAcceptance
	AcceptedBy *UserID
	// EnrolledUser is the user created by the acceptance.
	EnrolledUser *UserID
}

// PkiEnrollmentAcceptance is what the claimer gets back once an admin
// accepted the enrollment.
type PkiEnrollmentAcceptance struct {
	AccepterDerX509Certificate []byte
	AcceptPayloadSignature     []byte
	AcceptPayload              []byte
}
