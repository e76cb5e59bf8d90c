package protocol

import "time"

type PingReq struct {
	Ping string `msgpack:"ping"`
}

func (PingReq) Cmd() string { return "ping" }

type PingRep struct {
	Status string `msgpack:"status"`
	Pong   string `msgpack:"pong"`
}

// BadTimestampRep carries the ballpark bounds the client failed to meet.
type BadTimestampRep struct {
	Status                    string    `msgpack:"status"`
	Reason                    string    `msgpack:"reason,omitempty"`
	BallparkClientEarlyOffset float64   `msgpack:"ballpark_client_early_offset"`
	BallparkClientLateOffset  float64   `msgpack:"ballpark_client_late_offset"`
	BackendTimestamp          time.Time `msgpack:"backend_timestamp"`
	ClientTimestamp           time.Time `msgpack:"client_timestamp"`
}

type RequireGreaterTimestampRep struct {
	Status              string    `msgpack:"status"`
	StrictlyGreaterThan time.Time `msgpack:"strictly_greater_than"`
}

type SequesterInconsistencyRep struct {
	Status                        string   `msgpack:"status"`
	SequesterAuthorityCertificate []byte   `msgpack:"sequester_authority_certificate"`
	SequesterServicesCertificates [][]byte `msgpack:"sequester_services_certificates"`
}

type RejectedBySequesterServiceRep struct {
	Status       string `msgpack:"status"`
	ServiceID    string `msgpack:"service_id"`
	ServiceLabel string `msgpack:"service_label"`
	Reason       string `msgpack:"reason"`
}

// EventsListenReq waits for the next event of the connection. Only
// available before API 4, which streams events over SSE instead.
type EventsListenReq struct {
	Wait bool `msgpack:"wait"`
}

func (EventsListenReq) Cmd() string { return "events_listen" }

type EventsSubscribeReq struct{}

func (EventsSubscribeReq) Cmd() string { return "events_subscribe" }

// Event names as seen by clients.
const (
	EventPinged                   = "pinged"
	EventMessageReceived          = "message.received"
	EventInviteStatusChanged      = "invite.status_changed"
	EventRealmRolesUpdated        = "realm.roles_updated"
	EventRealmMaintenanceStarted  = "realm.maintenance_started"
	EventRealmMaintenanceFinished = "realm.maintenance_finished"
	EventRealmVlobsUpdated        = "realm.vlobs_updated"
	EventPkiEnrollmentsUpdated    = "pki_enrollment.updated"
)

// EventRep is the body of an events_listen reply and of every SSE event.
type EventRep struct {
	Status string `msgpack:"status"`
	Event  string `msgpack:"event"`

	Ping               string `msgpack:"ping,omitempty"`
	Index              uint64 `msgpack:"index,omitempty"`
	Token              string `msgpack:"token,omitempty"`
	InvitationStatus   string `msgpack:"invitation_status,omitempty"`
	RealmID            string `msgpack:"realm_id,omitempty"`
	Role               string `msgpack:"role,omitempty"`
	EncryptionRevision uint64 `msgpack:"encryption_revision,omitempty"`
	Checkpoint         uint64 `msgpack:"checkpoint,omitempty"`
	Src                string `msgpack:"src_id,omitempty"`
	SrcVersion         uint64 `msgpack:"src_version,omitempty"`
}

type CertificateGetReq struct {
	Offset uint64 `msgpack:"offset"`
}

func (CertificateGetReq) Cmd() string { return "certificate_get" }

type CertificateGetRep struct {
	Status       string   `msgpack:"status"`
	Certificates [][]byte `msgpack:"certificates"`
	LastIndex    uint64   `msgpack:"last_index"`
}
