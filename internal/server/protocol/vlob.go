package protocol

import (
	"time"

	"github.com/google/uuid"
)

type VlobCreateReq struct {
	RealmID            uuid.UUID         `msgpack:"realm_id"`
	EncryptionRevision uint64            `msgpack:"encryption_revision"`
	VlobID             uuid.UUID         `msgpack:"vlob_id"`
	Timestamp          time.Time         `msgpack:"timestamp"`
	Blob               []byte            `msgpack:"blob"`
	SequesterBlob      map[string][]byte `msgpack:"sequester_blob,omitempty"`
}

func (VlobCreateReq) Cmd() string { return "vlob_create" }

type VlobUpdateReq struct {
	EncryptionRevision uint64            `msgpack:"encryption_revision"`
	VlobID             uuid.UUID         `msgpack:"vlob_id"`
	Timestamp          time.Time         `msgpack:"timestamp"`
	Version            uint64            `msgpack:"version"`
	Blob               []byte            `msgpack:"blob"`
	SequesterBlob      map[string][]byte `msgpack:"sequester_blob,omitempty"`
}

func (VlobUpdateReq) Cmd() string { return "vlob_update" }

type VlobReadReq struct {
	EncryptionRevision uint64     `msgpack:"encryption_revision"`
	VlobID             uuid.UUID  `msgpack:"vlob_id"`
	Version            *uint64    `msgpack:"version"`
	Timestamp          *time.Time `msgpack:"timestamp"`
}

func (VlobReadReq) Cmd() string { return "vlob_read" }

type VlobReadRep struct {
	Status                  string    `msgpack:"status"`
	Version                 uint64    `msgpack:"version"`
	Blob                    []byte    `msgpack:"blob"`
	Author                  string    `msgpack:"author"`
	Timestamp               time.Time `msgpack:"timestamp"`
	AuthorLastRoleGrantedOn time.Time `msgpack:"author_last_role_granted_on"`
	CertificateIndex        *uint64   `msgpack:"certificate_index,omitempty"`
}

type VlobPollChangesReq struct {
	RealmID        uuid.UUID `msgpack:"realm_id"`
	LastCheckpoint uint64    `msgpack:"last_checkpoint"`
}

func (VlobPollChangesReq) Cmd() string { return "vlob_poll_changes" }

type VlobPollChangesRep struct {
	Status            string            `msgpack:"status"`
	CurrentCheckpoint uint64            `msgpack:"current_checkpoint"`
	Changes           map[string]uint64 `msgpack:"changes"`
}

type VlobListVersionsReq struct {
	VlobID uuid.UUID `msgpack:"vlob_id"`
}

func (VlobListVersionsReq) Cmd() string { return "vlob_list_versions" }

type VlobVersionItem struct {
	Version   uint64    `msgpack:"version"`
	Timestamp time.Time `msgpack:"timestamp"`
	Author    string    `msgpack:"author"`
}

type VlobListVersionsRep struct {
	Status   string            `msgpack:"status"`
	Versions []VlobVersionItem `msgpack:"versions"`
}

type ReencryptionBatchEntry struct {
	VlobID  uuid.UUID `msgpack:"vlob_id"`
	Version uint64    `msgpack:"version"`
	Blob    []byte    `msgpack:"blob"`
}

type VlobMaintenanceGetReencryptionBatchReq struct {
	RealmID            uuid.UUID `msgpack:"realm_id"`
	EncryptionRevision uint64    `msgpack:"encryption_revision"`
	Size               int       `msgpack:"size"`
}

func (VlobMaintenanceGetReencryptionBatchReq) Cmd() string {
	return "vlob_maintenance_get_reencryption_batch"
}

type VlobMaintenanceGetReencryptionBatchRep struct {
	Status string                   `msgpack:"status"`
	Batch  []ReencryptionBatchEntry `msgpack:"batch"`
}

type VlobMaintenanceSaveReencryptionBatchReq struct {
	RealmID            uuid.UUID                `msgpack:"realm_id"`
	EncryptionRevision uint64                   `msgpack:"encryption_revision"`
	Batch              []ReencryptionBatchEntry `msgpack:"batch"`
}

func (VlobMaintenanceSaveReencryptionBatchReq) Cmd() string {
	return "vlob_maintenance_save_reencryption_batch"
}

type VlobMaintenanceSaveReencryptionBatchRep struct {
	Status string `msgpack:"status"`
	Total  int    `msgpack:"total"`
	Done   int    `msgpack:"done"`
}
