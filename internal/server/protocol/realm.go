package protocol

import (
	"time"

	"github.com/google/uuid"
)

type RealmCreateReq struct {
	RoleCertificate []byte `msgpack:"role_certificate"`
}

func (RealmCreateReq) Cmd() string { return "realm_create" }

type RealmStatusReq struct {
	RealmID uuid.UUID `msgpack:"realm_id"`
}

func (RealmStatusReq) Cmd() string { return "realm_status" }

type RealmStatusRep struct {
	Status               string     `msgpack:"status"`
	InMaintenance        bool       `msgpack:"in_maintenance"`
	MaintenanceType      *string    `msgpack:"maintenance_type"`
	MaintenanceStartedOn *time.Time `msgpack:"maintenance_started_on"`
	MaintenanceStartedBy *string    `msgpack:"maintenance_started_by"`
	EncryptionRevision   uint64     `msgpack:"encryption_revision"`
}

type RealmStatsReq struct {
	RealmID uuid.UUID `msgpack:"realm_id"`
}

func (RealmStatsReq) Cmd() string { return "realm_stats" }

type RealmStatsRep struct {
	Status     string `msgpack:"status"`
	BlocksSize int64  `msgpack:"blocks_size"`
	VlobsSize  int64  `msgpack:"vlobs_size"`
}

type RealmGetRoleCertificatesReq struct {
	RealmID uuid.UUID `msgpack:"realm_id"`
}

func (RealmGetRoleCertificatesReq) Cmd() string { return "realm_get_role_certificates" }

type RealmGetRoleCertificatesRep struct {
	Status       string   `msgpack:"status"`
	Certificates [][]byte `msgpack:"certificates"`
}

type RealmUpdateRolesReq struct {
	RoleCertificate  []byte `msgpack:"role_certificate"`
	RecipientMessage []byte `msgpack:"recipient_message,omitempty"`
}

func (RealmUpdateRolesReq) Cmd() string { return "realm_update_roles" }

type RealmStartReencryptionMaintenanceReq struct {
	RealmID               uuid.UUID         `msgpack:"realm_id"`
	EncryptionRevision    uint64            `msgpack:"encryption_revision"`
	Timestamp             time.Time         `msgpack:"timestamp"`
	PerParticipantMessage map[string][]byte `msgpack:"per_participant_message"`
}

func (RealmStartReencryptionMaintenanceReq) Cmd() string {
	return "realm_start_reencryption_maintenance"
}

type RealmFinishReencryptionMaintenanceReq struct {
	RealmID            uuid.UUID `msgpack:"realm_id"`
	EncryptionRevision uint64    `msgpack:"encryption_revision"`
}

func (RealmFinishReencryptionMaintenanceReq) Cmd() string {
	return "realm_finish_reencryption_maintenance"
}
