package httpserver

import (
	"errors"

	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/Scille/parsec-cloud-sub009/internal/timex"
)

var errorStatuses = []struct {
	err    error
	status string
}{
	{services.ErrNotAllowed, protocol.StatusNotAllowed},
	{services.ErrNotFound, protocol.StatusNotFound},
	{services.ErrAlreadyExists, protocol.StatusAlreadyExists},
	{services.ErrBadVersion, protocol.StatusBadVersion},
	{services.ErrBadEncryptionRevision, protocol.StatusBadEncryptionRevision},
	{services.ErrInMaintenance, protocol.StatusInMaintenance},
	{services.ErrNotInMaintenance, protocol.StatusNotInMaintenance},
	{services.ErrMaintenance, protocol.StatusMaintenanceError},
	{services.ErrParticipantsMismatch, protocol.StatusParticipantsMismatch},
	{services.ErrInvalidCertification, protocol.StatusInvalidCertification},
	{services.ErrInvalidData, protocol.StatusInvalidData},
	{services.ErrExpiredOrganization, protocol.StatusExpiredOrganization},
	{services.ErrRevokedUser, protocol.StatusRevokedUser},
	{services.ErrNotASequesteredOrg, protocol.StatusNotASequesteredOrg},
	{services.ErrTimeout, protocol.StatusTimeout},
	{services.ErrAlreadyBootstrapped, protocol.StatusAlreadyBootstrapped},
	{services.ErrInvalidBootstrapToken, protocol.StatusInvalidBootstrapToken},
	{services.ErrActiveUsersLimitReached, protocol.StatusActiveUsersLimitReached},
	{services.ErrAlreadyRevoked, protocol.StatusAlreadyRevoked},
	{services.ErrAlreadyGranted, protocol.StatusAlreadyGranted},
	{services.ErrIncompatibleProfile, protocol.StatusIncompatibleProfile},
	{services.ErrAlreadyMember, protocol.StatusAlreadyMember},
	{services.ErrAlreadyDeleted, protocol.StatusAlreadyDeleted},
	{services.ErrInvalidState, protocol.StatusInvalidState},
	{services.ErrIDAlreadyUsed, protocol.StatusIDAlreadyUsed},
	{services.ErrEmailAlreadyUsed, protocol.StatusEmailAlreadyUsed},
	{services.ErrAlreadyEnrolled, protocol.StatusAlreadyEnrolled},
	{services.ErrNoLongerAvailable, protocol.StatusNoLongerAvailable},
}

// errorRep turns a service error into the reply the client expects. Errors
// with no protocol status are returned as is: they are internal failures.
func errorRep(err error) (any, error) {
	var (
		badTs     *services.BadTimestampError
		greater   *services.RequireGreaterTimestampError
		seqIncons *services.SequesterInconsistencyError
		rejected  *services.RejectedBySequesterServiceError
		submitted *services.AlreadySubmittedError
	)
	switch {
	case errors.As(err, &badTs):
		return &protocol.BadTimestampRep{
			Status:                    protocol.StatusBadTimestamp,
			Reason:                    err.Error(),
			BallparkClientEarlyOffset: timex.BallparkOffset.Seconds(),
			BallparkClientLateOffset:  timex.BallparkOffset.Seconds(),
			BackendTimestamp:          badTs.BackendTimestamp,
			ClientTimestamp:           badTs.ClientTimestamp,
		}, nil
	case errors.As(err, &greater):
		return &protocol.RequireGreaterTimestampRep{
			Status:              protocol.StatusRequireGreaterTimestamp,
			StrictlyGreaterThan: greater.StrictlyGreaterThan,
		}, nil
	case errors.As(err, &seqIncons):
		return &protocol.SequesterInconsistencyRep{
			Status:                        protocol.StatusSequesterInconsistency,
			SequesterAuthorityCertificate: seqIncons.AuthorityCertificate,
			SequesterServicesCertificates: seqIncons.ServiceCertificates,
		}, nil
	case errors.As(err, &rejected):
		return &protocol.RejectedBySequesterServiceRep{
			Status:       protocol.StatusRejectedBySequester,
			ServiceID:    rejected.ServiceID.String(),
			ServiceLabel: rejected.ServiceLabel,
			Reason:       rejected.Reason,
		}, nil
	case errors.As(err, &submitted):
		return &protocol.PkiEnrollmentSubmitAlreadySubmittedRep{
			Status:      protocol.StatusAlreadySubmitted,
			SubmittedOn: submitted.SubmittedOn,
		}, nil
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return protocol.Error(e.status, err.Error()), nil
		}
	}
	return nil, err
}
