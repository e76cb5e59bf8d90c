package models

import "time"

// CertificateRecord is one entry of the organization certificate log.
type CertificateRecord struct {
	Index       uint64
	Kind        string
	Timestamp   time.Time
	Certificate []byte
}
