package models

import "time"

type Message struct {
	Index     uint64
	Sender    DeviceID
	Timestamp time.Time
	Body      []byte
}
