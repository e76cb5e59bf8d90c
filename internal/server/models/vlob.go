package models

import (
	"time"

	"github.com/google/uuid"
)

// VlobAtom is one version of a vlob at a given encryption revision.
type VlobAtom struct {
	RealmID            uuid.UUID
	VlobID             uuid.UUID
	EncryptionRevision uint64
	Version            uint64
	Author             DeviceID
	CreatedOn          time.Time
	Blob               []byte
	SequesterBlob      map[uuid.UUID][]byte
}

// VlobChange records that a checkpoint bumped vlob_id to version.
type VlobChange struct {
	Checkpoint uint64
	VlobID     uuid.UUID
	Version    uint64
}

type ReencryptionEntry struct {
	VlobID  uuid.UUID
	Version uint64
	Blob    []byte
}

type VlobVersionInfo struct {
	Version   uint64
	CreatedOn time.Time
	Author    DeviceID
}
