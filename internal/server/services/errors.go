package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/certificates"
	"github.com/google/uuid"
)

// Business errors. The transport maps each of them to a protocol status.
var (
	ErrNotAllowed             = errors.New("not allowed")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrBadVersion             = errors.New("bad version")
	ErrBadEncryptionRevision  = errors.New("bad encryption revision")
	ErrBadTimestamp           = errors.New("bad timestamp")
	ErrRequireGreaterTs       = errors.New("require greater timestamp")
	ErrInMaintenance          = errors.New("in maintenance")
	ErrNotInMaintenance       = errors.New("not in maintenance")
	ErrMaintenance            = errors.New("maintenance error")
	ErrParticipantsMismatch   = errors.New("participants mismatch")
	ErrInvalidCertification   = errors.New("invalid certification")
	ErrInvalidData            = errors.New("invalid data")
	ErrExpiredOrganization    = errors.New("expired organization")
	ErrRevokedUser            = errors.New("revoked user")
	ErrSequesterInconsistency = errors.New("sequester inconsistency")
	ErrRejectedBySequester    = errors.New("rejected by sequester service")
	ErrNotASequesteredOrg     = errors.New("not a sequestered organization")
	ErrTimeout                = errors.New("timeout")

	ErrAlreadyBootstrapped     = errors.New("already bootstrapped")
	ErrInvalidBootstrapToken   = errors.New("invalid bootstrap token")
	ErrActiveUsersLimitReached = errors.New("active users limit reached")
	ErrAlreadyRevoked          = errors.New("already revoked")
	ErrAlreadyGranted          = errors.New("already granted")
	ErrIncompatibleProfile     = errors.New("incompatible profile")

	ErrAlreadyMember  = errors.New("already member")
	ErrAlreadyDeleted = errors.New("already deleted")
	ErrInvalidState   = errors.New("invalid state")

	ErrAlreadySubmitted  = errors.New("already submitted")
	ErrIDAlreadyUsed     = errors.New("enrollment id already used")
	ErrEmailAlreadyUsed  = errors.New("email already used")
	ErrAlreadyEnrolled   = errors.New("already enrolled")
	ErrNoLongerAvailable = errors.New("no longer available")

	ErrAlreadyDisabled = errors.New("already disabled")
)

// BadTimestampError carries the ballpark the client failed to meet.
type BadTimestampError struct {
	ClientTimestamp  time.Time
	BackendTimestamp time.Time
}

func (e *BadTimestampError) Error() string {
	return fmt.Sprintf("bad timestamp: client %s, backend %s", e.ClientTimestamp, e.BackendTimestamp)
}

func (e *BadTimestampError) Unwrap() error { return ErrBadTimestamp }

// RequireGreaterTimestampError asks the client to retry with a timestamp
// strictly greater than StrictlyGreaterThan.
type RequireGreaterTimestampError struct {
	StrictlyGreaterThan time.Time
}

func (e *RequireGreaterTimestampError) Error() string {
	return fmt.Sprintf("timestamp must be strictly greater than %s", e.StrictlyGreaterThan)
}

func (e *RequireGreaterTimestampError) Unwrap() error { return ErrRequireGreaterTs }

// SequesterInconsistencyError returns the certificates the client must
// encrypt for.
type SequesterInconsistencyError struct {
	AuthorityCertificate []byte
	ServiceCertificates  [][]byte
}

func (e *SequesterInconsistencyError) Error() string {
	return fmt.Sprintf("sequester blob does not match the %d active services", len(e.ServiceCertificates))
}

func (e *SequesterInconsistencyError) Unwrap() error { return ErrSequesterInconsistency }

type RejectedBySequesterServiceError struct {
	ServiceID    uuid.UUID
	ServiceLabel string
	Reason       string
}

func (e *RejectedBySequesterServiceError) Error() string {
	return fmt.Sprintf("rejected by sequester service %s (%s): %s", e.ServiceID, e.ServiceLabel, e.Reason)
}

func (e *RejectedBySequesterServiceError) Unwrap() error { return ErrRejectedBySequester }

type AlreadySubmittedError struct {
	SubmittedOn time.Time
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("already submitted on %s", e.SubmittedOn)
}

func (e *AlreadySubmittedError) Unwrap() error { return ErrAlreadySubmitted }

// certError maps certificate loading failures.
func certError(err error) error {
	switch {
	case errors.Is(err, certificates.ErrInvalidCertification):
		return fmt.Errorf("%w: %v", ErrInvalidCertification, err)
	case errors.Is(err, certificates.ErrInvalidData):
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	default:
		return err
	}
}

// repoError turns repository sentinels into service errors, keeping any
// other failure as is.
func repoError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorNotFound):
		return notFound
	case errors.Is(err, common.ErrorAlreadyExists):
		return ErrAlreadyExists
	default:
		return err
	}
}
