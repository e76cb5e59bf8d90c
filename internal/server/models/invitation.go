package models

import "time"

type InvitationType string

const (
	InvitationTypeUser   InvitationType = "USER"
	InvitationTypeDevice InvitationType = "DEVICE"
)

type InvitationStatus string

const (
	InvitationStatusIdle    InvitationStatus = "IDLE"
	InvitationStatusReady   InvitationStatus = "READY"
	InvitationStatusDeleted InvitationStatus = "DELETED"
)

type InvitationDeletedReason string

const (
	InvitationDeletedReasonFinished  InvitationDeletedReason = "FINISHED"
	InvitationDeletedReasonCancelled InvitationDeletedReason = "CANCELLED"
	InvitationDeletedReasonRotten    InvitationDeletedReason = "ROTTEN"
)

func (r InvitationDeletedReason) Valid() bool {
	switch r {
	case InvitationDeletedReasonFinished, InvitationDeletedReasonCancelled, InvitationDeletedReasonRotten:
		return true
	}
	return false
}

type InvitationEmailSentStatus string

const (
	InvitationEmailSentSuccess      InvitationEmailSentStatus = "SUCCESS"
	InvitationEmailSentNotAvailable InvitationEmailSentStatus = "NOT_AVAILABLE"
	InvitationEmailSentBadRecipient InvitationEmailSentStatus = "BAD_RECIPIENT"
)

type ConduitState string

const (
	ConduitState1WaitPeers            ConduitState = "1_WAIT_PEERS"
	ConduitState2_1ClaimerHashedNonce ConduitState = "2_1_CLAIMER_HASHED_NONCE"
	ConduitState2_2GreeterNonce       ConduitState = "2_2_GREETER_NONCE"
	ConduitState2_3ClaimerNonce       ConduitState = "2_3_CLAIMER_NONCE"
	ConduitState3_1ClaimerTrust       ConduitState = "3_1_CLAIMER_TRUST"
	ConduitState3_2GreeterTrust       ConduitState = "3_2_GREETER_TRUST"
	ConduitState4Communicate          ConduitState = "4_COMMUNICATE"
)

var conduitNext = map[ConduitState]ConduitState{
	ConduitState1WaitPeers:            ConduitState2_1ClaimerHashedNonce,
	ConduitState2_1ClaimerHashedNonce: ConduitState2_2GreeterNonce,
	ConduitState2_2GreeterNonce:       ConduitState2_3ClaimerNonce,
	ConduitState2_3ClaimerNonce:       ConduitState3_1ClaimerTrust,
	ConduitState3_1ClaimerTrust:       ConduitState3_2GreeterTrust,
	ConduitState3_2GreeterTrust:       ConduitState4Communicate,
	ConduitState4Communicate:          ConduitState4Communicate,
}

// Next returns the state reached once both peers talked in s.
func (s ConduitState) Next() ConduitState {
	return conduitNext[s]
}

func (s ConduitState) Valid() bool {
	_, ok := conduitNext[s]
	return ok
}

// ConduitExchange holds the payloads of the last completed exchange.
// FromGeneration is the conduit generation in which both peers talked.
type ConduitExchange struct {
	FromGeneration uint64
	GreeterPayload []byte
	ClaimerPayload []byte
}

// Conduit is the persisted state of an invitation exchange. Generation is
// bumped on every transition or reset; a waiting peer uses it to tell
// "my exchange completed" from "the conduit was reset under me".
type Conduit struct {
	State          ConduitState
	GreeterPayload []byte
	ClaimerPayload []byte
	Generation     uint64
	LastExchange   *ConduitExchange
}

type Invitation struct {
	Token         InvitationToken
	Type          InvitationType
	GreeterUserID UserID
	GreeterHuman  *HumanHandle
	ClaimerEmail  string
	CreatedOn     time.Time
	DeletedOn     *time.Time
	DeletedReason *InvitationDeletedReason
	Conduit       Conduit
}

func (i *Invitation) IsDeleted() bool {
	return i.DeletedOn != nil
}
