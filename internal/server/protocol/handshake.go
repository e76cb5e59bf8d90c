package protocol

import "time"

// Legacy WebSocket handshake messages.

const (
	HandshakeChallenge = "challenge"
	HandshakeAnswer    = "answer"
	HandshakeResult    = "result"

	HandshakeResultOK                  = "ok"
	HandshakeResultBadProtocol         = "bad_protocol"
	HandshakeResultBadIdentity         = "bad_identity"
	HandshakeResultOrganizationExpired = "organization_expired"
	HandshakeResultRevokedDevice       = "revoked_device"
	HandshakeResultRVKMismatch         = "rvk_mismatch"
	HandshakeResultBadInvitation       = "bad_invitation"
)

type HandshakeChallengeMsg struct {
	Handshake                 string    `msgpack:"handshake"`
	Challenge                 []byte    `msgpack:"challenge"`
	SupportedAPIVersions      [][2]int  `msgpack:"supported_api_versions"`
	BallparkClientEarlyOffset float64   `msgpack:"ballpark_client_early_offset"`
	BallparkClientLateOffset  float64   `msgpack:"ballpark_client_late_offset"`
	BackendTimestamp          time.Time `msgpack:"backend_timestamp"`
}

type HandshakeAnswerMsg struct {
	Handshake        string  `msgpack:"handshake"`
	Type             string  `msgpack:"type"`
	ClientAPIVersion [2]int  `msgpack:"client_api_version"`
	OrganizationID   string  `msgpack:"organization_id"`
	DeviceID         string  `msgpack:"device_id,omitempty"`
	RootVerifyKey    []byte  `msgpack:"rvk,omitempty"`
	Answer           []byte  `msgpack:"answer,omitempty"`
	Token            string  `msgpack:"token,omitempty"`
	InvitationType   *string `msgpack:"invitation_type,omitempty"`
}

type HandshakeResultMsg struct {
	Handshake string `msgpack:"handshake"`
	Result    string `msgpack:"result"`
	Help      string `msgpack:"help,omitempty"`
}
