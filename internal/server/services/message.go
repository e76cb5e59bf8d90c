package services

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
)

// MessageService is the per-user message box of an organization.
type MessageService struct {
	base
}

// Send appends body to the box of recipient and notifies it.
func (s *MessageService) Send(ctx context.Context, caller Caller, recipient models.UserID, ts time.Time, body []byte) (uint64, error) {
	var index uint64
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, err := r.Users.GetUser(ctx, caller.OrganizationID, recipient); err != nil {
			return repoError(err, ErrNotFound)
		}
		var err error
		index, err = r.Messages.Append(ctx, caller.OrganizationID, recipient, caller.DeviceID, ts, body)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.publish(&events.MessageReceived{
		OrganizationID: caller.OrganizationID, Author: caller.DeviceID, Recipient: recipient, Index: index,
	})
	return index, nil
}

// Get returns the caller's messages with an index above offset.
func (s *MessageService) Get(ctx context.Context, caller Caller, offset uint64) ([]*models.Message, error) {
	var out []*models.Message
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		out, err = r.Messages.List(ctx, caller.OrganizationID, caller.UserID(), offset)
		return err
	})
	return out, err
}
