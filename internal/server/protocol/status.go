package protocol

// Reply statuses. Every reply carries one of them in its "status" field.
const (
	StatusOK = "ok"

	StatusNotAllowed              = "not_allowed"
	StatusNotFound                = "not_found"
	StatusAlreadyExists           = "already_exists"
	StatusBadVersion              = "bad_version"
	StatusBadEncryptionRevision   = "bad_encryption_revision"
	StatusBadTimestamp            = "bad_timestamp"
	StatusRequireGreaterTimestamp = "require_greater_timestamp"
	StatusInMaintenance           = "in_maintenance"
	StatusNotInMaintenance        = "not_in_maintenance"
	StatusMaintenanceError        = "maintenance_error"
	StatusParticipantsMismatch    = "participants_mismatch"
	StatusInvalidCertification    = "invalid_certification"
	StatusInvalidData             = "invalid_data"
	StatusExpiredOrganization     = "expired_organization"
	StatusRevokedUser             = "revoked_user"
	StatusSequesterInconsistency  = "sequester_inconsistency"
	StatusRejectedBySequester     = "rejected_by_sequester_service"
	StatusNotASequesteredOrg      = "not_a_sequestered_organization"
	StatusTimeout                 = "timeout"
	StatusInvalidMsgFormat        = "invalid_msg_format"
	StatusUnknownCommand          = "unknown_command"

	StatusAlreadyBootstrapped     = "already_bootstrapped"
	StatusInvalidBootstrapToken   = "invalid_bootstrap_token"
	StatusActiveUsersLimitReached = "active_users_limit_reached"
	StatusAlreadyRevoked          = "already_revoked"
	StatusAlreadyGranted          = "already_granted"
	StatusIncompatibleProfile     = "incompatible_profile"

	StatusAlreadyMember  = "already_member"
	StatusAlreadyDeleted = "already_deleted"
	StatusInvalidState   = "invalid_state"

	StatusNoEvents = "no_events"

	StatusAlreadySubmitted  = "already_submitted"
	StatusIDAlreadyUsed     = "id_already_used"
	StatusEmailAlreadyUsed  = "email_already_used"
	StatusAlreadyEnrolled   = "already_enrolled"
	StatusNoLongerAvailable = "no_longer_available"
)

// ErrorRep is the reply of any failed command that has no extra payload.
type ErrorRep struct {
	Status string `msgpack:"status"`
	Reason string `msgpack:"reason,omitempty"`
}

func Error(status, reason string) *ErrorRep {
	return &ErrorRep{Status: status, Reason: reason}
}

// OKRep is the reply of a successful command that returns nothing.
type OKRep struct {
	Status string `msgpack:"status"`
}

func OK() *OKRep {
	return &OKRep{Status: StatusOK}
}
