package models

import (
	"time"

	"github.com/google/uuid"
)

type Block struct {
	BlockID   uuid.UUID
	RealmID   uuid.UUID
	Author    DeviceID
	Size      int64
	CreatedOn time.Time
}
