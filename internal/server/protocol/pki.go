package protocol

import (
	"time"

	"github.com/google/uuid"
)

type PkiEnrollmentSubmitReq struct {
	EnrollmentID                     uuid.UUID `msgpack:"enrollment_id"`
	Force                            bool      `msgpack:"force"`
	SubmitterDerX509Certificate      []byte    `msgpack:"submitter_der_x509_certificate"`
	SubmitterDerX509CertificateEmail string    `msgpack:"submitter_der_x509_certificate_email"`
	SubmitPayloadSignature           []byte    `msgpack:"submit_payload_signature"`
	SubmitPayload                    []byte    `msgpack:"submit_payload"`
}

func (PkiEnrollmentSubmitReq) Cmd() string { return "pki_enrollment_submit" }

type PkiEnrollmentSubmitRep struct {
	Status      string    `msgpack:"status"`
	SubmittedOn time.Time `msgpack:"submitted_on"`
}

type PkiEnrollmentInfoReq struct {
	EnrollmentID uuid.UUID `msgpack:"enrollment_id"`
}

func (PkiEnrollmentInfoReq) Cmd() string { return "pki_enrollment_info" }

type PkiEnrollmentInfoRep struct {
	Status                     string     `msgpack:"status"`
	EnrollmentStatus           string     `msgpack:"enrollment_status"`
	SubmittedOn                time.Time  `msgpack:"submitted_on"`
	DecidedOn                  *time.Time `msgpack:"decided_on,omitempty"`
	AccepterDerX509Certificate []byte     `msgpack:"accepter_der_x509_certificate,omitempty"`
	AcceptPayloadSignature     []byte     `msgpack:"accept_payload_signature,omitempty"`
	AcceptPayload              []byte     `msgpack:"accept_payload,omitempty"`
}

type PkiEnrollmentListReq struct{}

func (PkiEnrollmentListReq) Cmd() string { return "pki_enrollment_list" }

type PkiEnrollmentListItem struct {
	EnrollmentID                uuid.UUID `msgpack:"enrollment_id"`
	SubmittedOn                 time.Time `msgpack:"submitted_on"`
	SubmitterDerX509Certificate []byte    `msgpack:"submitter_der_x509_certificate"`
	SubmitPayloadSignature      []byte    `msgpack:"submit_payload_signature"`
	SubmitPayload               []byte    `msgpack:"submit_payload"`
}

type PkiEnrollmentListRep struct {
	Status      string                  `msgpack:"status"`
	Enrollments []PkiEnrollmentListItem `msgpack:"enrollments"`
}

type PkiEnrollmentRejectReq struct {
	EnrollmentID uuid.UUID `msgpack:"enrollment_id"`
}

func (PkiEnrollmentRejectReq) Cmd() string { return "pki_enrollment_reject" }

type PkiEnrollmentAcceptReq struct {
	EnrollmentID               uuid.UUID `msgpack:"enrollment_id"`
	AccepterDerX509Certificate []byte    `msgpack:"accepter_der_x509_certificate"`
	AcceptPayloadSignature     []byte    `msgpack:"accept_payload_signature"`
	AcceptPayload              []byte    `msgpack:"accept_payload"`
	UserCertificate            []byte    `msgpack:"user_certificate"`
	DeviceCertificate          []byte    `msgpack:"device_certificate"`
	RedactedUserCertificate    []byte    `msgpack:"redacted_user_certificate"`
	RedactedDeviceCertificate  []byte    `msgpack:"redacted_device_certificate"`
}

func (PkiEnrollmentAcceptReq) Cmd() string { return "pki_enrollment_accept" }

type PkiEnrollmentSubmitAlreadySubmittedRep struct {
	Status      string    `msgpack:"status"`
	SubmittedOn time.Time `msgpack:"submitted_on"`
}
