package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Scille/parsec-cloud-sub009/internal/server/email"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

type presenceKey struct {
	org   models.OrganizationID
	token models.InvitationToken
}

// InviteService handles invitations and the greeter/claimer conduit.
type InviteService struct {
	base
	mailer *email.InvitationMailer

	mu sync.Mutex
	// presence counts the claimer connections of every invitation.
	presence map[presenceKey]int
}

func newInviteService(b base, mailer *email.InvitationMailer) *InviteService {
	return &InviteService{base: b, mailer: mailer, presence: make(map[presenceKey]int)}
}

// ClaimerJoined records a claimer connection. The invitation switches to
// READY on the first one.
func (s *InviteService) ClaimerJoined(org models.OrganizationID, greeter models.UserID, token models.InvitationToken) {
	s.mu.Lock()
	k := presenceKey{org, token}
	s.presence[k]++
	first := s.presence[k] == 1
	s.mu.Unlock()
	if first {
		s.publish(&events.InviteStatusChanged{OrganizationID: org, Greeter: greeter, Token: token, Status: models.InvitationStatusReady})
	}
}

// ClaimerLeft is the counterpart of ClaimerJoined. It must run even when
// the claimer connection was cancelled.
func (s *InviteService) ClaimerLeft(org models.OrganizationID, greeter models.UserID, token models.InvitationToken) {
	s.mu.Lock()
	k := presenceKey{org, token}
	s.presence[k]--
	last := s.presence[k] <= 0
	if last {
		delete(s.presence, k)
	}
	s.mu.Unlock()
	if last {
		s.publish(&events.InviteStatusChanged{OrganizationID: org, Greeter: greeter, Token: token, Status: models.InvitationStatusIdle})
	}
}

func (s *InviteService) isReady(org models.OrganizationID, token models.InvitationToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence[presenceKey{org, token}] > 0
}

type InviteNewParams struct {
	Type         models.InvitationType
	ClaimerEmail string
	SendEmail    bool
}

// New creates an invitation, or returns the pending one for the same
// greeter, type and claimer.
func (s *InviteService) New(ctx context.Context, caller Caller, p InviteNewParams) (models.InvitationToken, models.InvitationEmailSentStatus, error) {
	switch p.Type {
	case models.InvitationTypeUser:
		if caller.Profile != models.UserProfileAdmin {
			return uuid.Nil, "", ErrNotAllowed
		}
		if p.ClaimerEmail == "" {
			return uuid.Nil, "", fmt.Errorf("%w: missing claimer email", ErrInvalidData)
		}
	case models.InvitationTypeDevice:
		p.ClaimerEmail = ""
	default:
		return uuid.Nil, "", fmt.Errorf("%w: unknown invitation type %q", ErrInvalidData, p.Type)
	}

	var (
		inv     *models.Invitation
		created bool
		greeter *models.User
	)
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		if greeter, err = r.Users.GetUser(ctx, caller.OrganizationID, caller.UserID()); err != nil {
			return repoError(err, ErrNotFound)
		}
		if p.Type == models.InvitationTypeUser {
			users, err := r.Users.ListUsers(ctx, caller.OrganizationID)
			if err != nil {
				return err
			}
			for _, u := range users {
				if !u.IsRevoked() && u.HumanHandle != nil && strings.EqualFold(u.HumanHandle.Email, p.ClaimerEmail) {
					return ErrAlreadyMember
				}
			}
		}

		inv, err = r.Invitations.FindActive(ctx, caller.OrganizationID, caller.UserID(), p.Type, p.ClaimerEmail)
		if err == nil {
			return nil
		}
		if err = repoError(err, nil); err != nil {
			return err
		}
		inv = &models.Invitation{
			Token:         uuid.New(),
			Type:          p.Type,
			GreeterUserID: caller.UserID(),
			ClaimerEmail:  p.ClaimerEmail,
			CreatedOn:     s.now(),
		}
		created = true
		return r.Invitations.Create(ctx, caller.OrganizationID, inv)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	if created {
		s.logger.Info(ctx, "invitation created", "organization_id", caller.OrganizationID, "greeter", caller.UserID(), "type", p.Type)
		s.publish(&events.InviteStatusChanged{
			OrganizationID: caller.OrganizationID, Greeter: caller.UserID(), Token: inv.Token, Status: models.InvitationStatusIdle,
		})
	}

	status := models.InvitationEmailSentSuccess
	if p.SendEmail {
		greeterName := string(greeter.UserID)
		if greeter.HumanHandle != nil {
			greeterName = greeter.HumanHandle.Label
		}
		to := p.ClaimerEmail
		if p.Type == models.InvitationTypeDevice {
			if greeter.HumanHandle == nil {
				return inv.Token, models.InvitationEmailSentBadRecipient, nil
			}
			to = greeter.HumanHandle.Email
		}
		status = s.mailer.SendInvitation(ctx, caller.OrganizationID, inv, to, greeterName)
	}
	return inv.Token, status, nil
}

// Delete cancels an invitation of the caller and wakes up both peers.
func (s *InviteService) Delete(ctx context.Context, caller Caller, token models.InvitationToken, reason models.InvitationDeletedReason) error {
	if !reason.Valid() {
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidData, reason)
	}
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		inv, err := r.Invitations.GetForUpdate(ctx, caller.OrganizationID, token)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		if inv.GreeterUserID != caller.UserID() {
			return ErrNotFound
		}
		if inv.IsDeleted() {
			return ErrAlreadyDeleted
		}
		return r.Invitations.Delete(ctx, caller.OrganizationID, token, s.now(), reason)
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "invitation deleted", "organization_id", caller.OrganizationID, "token", token, "reason", reason)
	s.publish(
		&events.InviteStatusChanged{OrganizationID: caller.OrganizationID, Greeter: caller.UserID(), Token: token, Status: models.InvitationStatusDeleted},
		&events.InviteConduitUpdated{OrganizationID: caller.OrganizationID, Token: token},
	)
	return nil
}

// InvitationStatus is a pending invitation and whether a claimer is online.
type InvitationStatus struct {
	Invitation *models.Invitation
	Status     models.InvitationStatus
}

func (s *InviteService) List(ctx context.Context, caller Caller) ([]InvitationStatus, error) {
	var invs []*models.Invitation
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		invs, err = r.Invitations.List(ctx, caller.OrganizationID, caller.UserID())
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]InvitationStatus, 0, len(invs))
	for _, inv := range invs {
		st := models.InvitationStatusIdle
		if s.isReady(caller.OrganizationID, inv.Token) {
			st = models.InvitationStatusReady
		}
		out = append(out, InvitationStatus{Invitation: inv, Status: st})
	}
	return out, nil
}

// Claimer resolves the invitation of a claimer connection. It fails with
// ErrNotFound for unknown tokens and ErrAlreadyDeleted for used ones.
func (s *InviteService) Claimer(ctx context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error) {
	var inv *models.Invitation
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		if inv, err = r.Invitations.Get(ctx, org, token); err != nil {
			return repoError(err, ErrNotFound)
		}
		if inv.IsDeleted() {
			return ErrAlreadyDeleted
		}
		return nil
	})
	return inv, err
}

// Info returns the invitation with the human handle of its greeter.
func (s *InviteService) Info(ctx context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error) {
	var inv *models.Invitation
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		if inv, err = r.Invitations.Get(ctx, org, token); err != nil {
			return repoError(err, ErrNotFound)
		}
		if inv.IsDeleted() {
			return ErrAlreadyDeleted
		}
		greeter, err := r.Users.GetUser(ctx, org, inv.GreeterUserID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		inv.GreeterHuman = greeter.HumanHandle
		return nil
	})
	return inv, err
}
