package models

import (
	"time"

	"github.com/google/uuid"
)

type RealmRole string

const (
	RealmRoleOwner       RealmRole = "OWNER"
	RealmRoleManager     RealmRole = "MANAGER"
	RealmRoleContributor RealmRole = "CONTRIBUTOR"
	RealmRoleReader      RealmRole = "READER"
)

func (r RealmRole) Valid() bool {
	switch r {
	case RealmRoleOwner, RealmRoleManager, RealmRoleContributor, RealmRoleReader:
		return true
	}
	return false
}

// CanWrite reports whether the role allows creating vlobs and blocks.
func (r RealmRole) CanWrite() bool {
	return r == RealmRoleOwner || r == RealmRoleManager || r == RealmRoleContributor
}

// IsManagement reports whether granting or removing the role requires OWNER.
func (r RealmRole) IsManagement() bool {
	return r == RealmRoleOwner || r == RealmRoleManager
}

type MaintenanceType string

const MaintenanceTypeReencryption MaintenanceType = "REENCRYPTION"

type Realm struct {
	RealmID              uuid.UUID
	EncryptionRevision   uint64
	MaintenanceType      *MaintenanceType
	MaintenanceStartedOn *time.Time
	MaintenanceStartedBy *DeviceID
	CreatedOn            time.Time
	Checkpoint           uint64
}

func (r *Realm) InMaintenance() bool {
	return r.MaintenanceType != nil
}

// RealmGrant is one entry of a realm role history. A nil Role is a removal.
type RealmGrant struct {
	RealmID     uuid.UUID
	UserID      UserID
	Role        *RealmRole
	Certificate []byte
	GrantedBy   *DeviceID
	GrantedOn   time.Time
}

type RealmStats struct {
	BlocksSize int64
	VlobsSize  int64
}
