package protocol

import (
	"time"

	"github.com/google/uuid"
)

type InviteNewReq struct {
	Type         string `msgpack:"type"`
	ClaimerEmail string `msgpack:"claimer_email,omitempty"`
	SendEmail    bool   `msgpack:"send_email"`
}

func (InviteNewReq) Cmd() string { return "invite_new" }

type InviteNewRep struct {
	Status    string    `msgpack:"status"`
	Token     uuid.UUID `msgpack:"token"`
	EmailSent string    `msgpack:"email_sent"`
}

type InviteDeleteReq struct {
	Token  uuid.UUID `msgpack:"token"`
	Reason string    `msgpack:"reason"`
}

func (InviteDeleteReq) Cmd() string { return "invite_delete" }

type InviteListReq struct{}

func (InviteListReq) Cmd() string { return "invite_list" }

type InviteListItem struct {
	Type         string    `msgpack:"type"`
	Token        uuid.UUID `msgpack:"token"`
	CreatedOn    time.Time `msgpack:"created_on"`
	ClaimerEmail string    `msgpack:"claimer_email,omitempty"`
	Status       string    `msgpack:"status"`
}

type InviteListRep struct {
	Status      string           `msgpack:"status"`
	Invitations []InviteListItem `msgpack:"invitations"`
}

type InviteInfoReq struct{}

func (InviteInfoReq) Cmd() string { return "invite_info" }

type InviteInfoRep struct {
	Status             string       `msgpack:"status"`
	Type               string       `msgpack:"type"`
	ClaimerEmail       string       `msgpack:"claimer_email,omitempty"`
	GreeterUserID      string       `msgpack:"greeter_user_id"`
	GreeterHumanHandle *HumanHandle `msgpack:"greeter_human_handle"`
}

// Greeter side of the conduit.

type Invite1GreeterWaitPeerReq struct {
	Token            uuid.UUID `msgpack:"token"`
	GreeterPublicKey []byte    `msgpack:"greeter_public_key"`
}

func (Invite1GreeterWaitPeerReq) Cmd() string { return "invite_1_greeter_wait_peer" }

type Invite1GreeterWaitPeerRep struct {
	Status           string `msgpack:"status"`
	ClaimerPublicKey []byte `msgpack:"claimer_public_key"`
}

type Invite2aGreeterGetHashedNonceReq struct {
	Token uuid.UUID `msgpack:"token"`
}

func (Invite2aGreeterGetHashedNonceReq) Cmd() string { return "invite_2a_greeter_get_hashed_nonce" }

type Invite2aGreeterGetHashedNonceRep struct {
	Status             string `msgpack:"status"`
	ClaimerHashedNonce []byte `msgpack:"claimer_hashed_nonce"`
}

type Invite2bGreeterSendNonceReq struct {
	Token        uuid.UUID `msgpack:"token"`
	GreeterNonce []byte    `msgpack:"greeter_nonce"`
}

func (Invite2bGreeterSendNonceReq) Cmd() string { return "invite_2b_greeter_send_nonce" }

type Invite2bGreeterSendNonceRep struct {
	Status       string `msgpack:"status"`
	ClaimerNonce []byte `msgpack:"claimer_nonce"`
}

type Invite3aGreeterWaitPeerTrustReq struct {
	Token uuid.UUID `msgpack:"token"`
}

func (Invite3aGreeterWaitPeerTrustReq) Cmd() string { return "invite_3a_greeter_wait_peer_trust" }

type Invite3bGreeterSignifyTrustReq struct {
	Token uuid.UUID `msgpack:"token"`
}

func (Invite3bGreeterSignifyTrustReq) Cmd() string { return "invite_3b_greeter_signify_trust" }

type Invite4GreeterCommunicateReq struct {
	Token   uuid.UUID `msgpack:"token"`
	Payload []byte    `msgpack:"payload"`
}

func (Invite4GreeterCommunicateReq) Cmd() string { return "invite_4_greeter_communicate" }

// Claimer side of the conduit.

type Invite1ClaimerWaitPeerReq struct {
	ClaimerPublicKey []byte `msgpack:"claimer_public_key"`
}

func (Invite1ClaimerWaitPeerReq) Cmd() string { return "invite_1_claimer_wait_peer" }

type Invite1ClaimerWaitPeerRep struct {
	Status           string `msgpack:"status"`
	GreeterPublicKey []byte `msgpack:"greeter_public_key"`
}

type Invite2aClaimerSendHashedNonceReq struct {
	ClaimerHashedNonce []byte `msgpack:"claimer_hashed_nonce"`
}

func (Invite2aClaimerSendHashedNonceReq) Cmd() string {
	return "invite_2a_claimer_send_hashed_nonce"
}

type Invite2aClaimerSendHashedNonceRep struct {
	Status       string `msgpack:"status"`
	GreeterNonce []byte `msgpack:"greeter_nonce"`
}

type Invite2bClaimerSendNonceReq struct {
	ClaimerNonce []byte `msgpack:"claimer_nonce"`
}

func (Invite2bClaimerSendNonceReq) Cmd() string { return "invite_2b_claimer_send_nonce" }

type Invite3aClaimerSignifyTrustReq struct{}

func (Invite3aClaimerSignifyTrustReq) Cmd() string { return "invite_3a_claimer_signify_trust" }

type Invite3bClaimerWaitPeerTrustReq struct{}

func (Invite3bClaimerWaitPeerTrustReq) Cmd() string { return "invite_3b_claimer_wait_peer_trust" }

type Invite4ClaimerCommunicateReq struct {
	Payload []byte `msgpack:"payload"`
}

func (Invite4ClaimerCommunicateReq) Cmd() string { return "invite_4_claimer_communicate" }

type Invite4CommunicateRep struct {
	Status  string `msgpack:"status"`
	Payload []byte `msgpack:"payload"`
}
