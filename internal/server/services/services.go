// Package services contains the server business logic. Every service works
// on top of a repomanager.RepositoryManager, so the same code runs against
// PostgreSQL and against the in-memory repositories used in tests.
//
// Services never talk to clients directly: they return typed errors that the
// transport layer maps to protocol statuses, and they publish events on the
// bus once the transaction that justifies them is committed.
package services

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/blockstore"
	"github.com/Scille/parsec-cloud-sub009/internal/server/email"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/Scille/parsec-cloud-sub009/internal/server/webhooks"
	"github.com/Scille/parsec-cloud-sub009/internal/timex"
)

// Caller is the authenticated device issuing a command.
type Caller struct {
	OrganizationID models.OrganizationID
	DeviceID       models.DeviceID
	Profile        models.UserProfile
	VerifyKey      cryptox.VerifyKey
}

func (c Caller) UserID() models.UserID { return c.DeviceID.UserID() }

// SequesterWebhook delivers vlob ciphertexts to WEBHOOK sequester services.
type SequesterWebhook interface {
	Post(ctx context.Context, org models.OrganizationID, service *models.SequesterService, blob []byte) error
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Repos      repomanager.RepositoryManager
	Blockstore blockstore.Blockstore
	Bus        *events.Bus
	Clock      timex.Clock
	Logger     logging.Logger

	Sequester     SequesterWebhook
	Mailer        *email.InvitationMailer
	BootstrapHook *webhooks.BootstrapNotifier

	// SpontaneousBootstrap lets organization_bootstrap create unknown
	// organizations on the fly.
	SpontaneousBootstrap bool
}

type base struct {
	repos  repomanager.RepositoryManager
	bus    *events.Bus
	clock  timex.Clock
	logger logging.Logger
}

func (b *base) now() time.Time { return b.clock.Now() }

// checkBallpark fails with a *BadTimestampError when ts is too far from the
// server clock.
func (b *base) checkBallpark(ts time.Time) error {
	now := b.now()
	if !timex.InBallpark(ts, now) {
		return &BadTimestampError{ClientTimestamp: ts, BackendTimestamp: now}
	}
	return nil
}

func (b *base) publish(evs ...events.Event) {
	for _, ev := range evs {
		b.bus.Send(ev)
	}
}

// Services bundles the business services handed to the transport layer.
type Services struct {
	Organizations *OrganizationService
	Users         *UserService
	Realms        *RealmService
	Vlobs         *VlobService
	Blocks        *BlockService
	Messages      *MessageService
	Invites       *InviteService
	Pki           *PkiService
	Sequester     *SequesterService
}

func New(d Deps) *Services {
	if d.Clock == nil {
		d.Clock = timex.Real()
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	mk := func(module string) base {
		return base{repos: d.Repos, bus: d.Bus, clock: d.Clock, logger: d.Logger.With("module", module)}
	}
	users := &UserService{base: mk("users")}
	return &Services{
		Organizations: &OrganizationService{
			base:                 mk("organizations"),
			bootstrapHook:        d.BootstrapHook,
			spontaneousBootstrap: d.SpontaneousBootstrap,
		},
		Users:     users,
		Realms:    &RealmService{base: mk("realms")},
		Vlobs:     &VlobService{base: mk("vlobs"), webhook: d.Sequester},
		Blocks:    &BlockService{base: mk("blocks"), store: d.Blockstore},
		Messages:  &MessageService{base: mk("messages")},
		Invites:   newInviteService(mk("invites"), d.Mailer),
		Pki:       &PkiService{base: mk("pki")},
		Sequester: &SequesterService{base: mk("sequester")},
	}
}

// Ping echoes ping to the other connections of the caller's organization.
func (s *Services) Ping(ctx context.Context, caller Caller, ping string) {
	if ping == "" {
		return
	}
	s.Messages.publish(&events.Pinged{OrganizationID: caller.OrganizationID, Author: caller.DeviceID, Ping: ping})
}
