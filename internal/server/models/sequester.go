package models

import (
	"time"

	"github.com/google/uuid"
)

type SequesterAuthority struct {
	Certificate []byte
	VerifyKey   []byte
}

type SequesterServiceType string

const (
	SequesterServiceTypeStorage SequesterServiceType = "STORAGE"
	SequesterServiceTypeWebhook SequesterServiceType = "WEBHOOK"
)

type SequesterService struct {
	ServiceID    uuid.UUID
	ServiceLabel string
	Certificate  []byte
	Type         SequesterServiceType
	WebhookURL   string
	CreatedOn    time.Time
	DisabledOn   *time.Time
}

func (s *SequesterService) IsEnabled() bool {
	return s.DisabledOn == nil
}
