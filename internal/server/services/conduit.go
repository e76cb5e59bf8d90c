package services

import (
	"context"

	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
)

type peer int

const (
	greeterPeer peer = iota
	claimerPeer
)

// Peer identifies one side of a conduit: the greeter user of the
// invitation, or its claimer.
type Peer struct {
	OrganizationID models.OrganizationID
	Token          models.InvitationToken
	side           peer
	greeter        models.UserID
}

func GreeterPeer(caller Caller, token models.InvitationToken) Peer {
	return Peer{OrganizationID: caller.OrganizationID, Token: token, side: greeterPeer, greeter: caller.UserID()}
}

func ClaimerPeer(org models.OrganizationID, token models.InvitationToken) Peer {
	return Peer{OrganizationID: org, Token: token, side: claimerPeer}
}

// talk deposits payload in the conduit. It returns done with the peer
// payload when the peer already talked, otherwise the generation to wait on.
func talk(ctx context.Context, r *repomanager.Repositories, p Peer, state models.ConduitState, payload []byte) (peerPayload []byte, done bool, gen uint64, err error) {
	inv, err := r.Invitations.GetForUpdate(ctx, p.OrganizationID, p.Token)
	if err != nil {
		return nil, false, 0, repoError(err, ErrNotFound)
	}
	if p.side == greeterPeer && inv.GreeterUserID != p.greeter {
		return nil, false, 0, ErrNotFound
	}
	if inv.IsDeleted() {
		return nil, false, 0, ErrAlreadyDeleted
	}

	c := inv.Conduit
	switch {
	case c.State == state:
	case state == models.ConduitState1WaitPeers:
		c = models.Conduit{State: models.ConduitState1WaitPeers, Generation: c.Generation + 1}
	default:
		return nil, false, 0, ErrInvalidState
	}

	if p.side == greeterPeer {
		c.GreeterPayload = payload
	} else {
		c.ClaimerPayload = payload
	}
	if c.GreeterPayload != nil && c.ClaimerPayload != nil {
		c.LastExchange = &models.ConduitExchange{
			FromGeneration: c.Generation,
			GreeterPayload: c.GreeterPayload,
			ClaimerPayload: c.ClaimerPayload,
		}
		peerPayload = c.ClaimerPayload
		if p.side == claimerPeer {
			peerPayload = c.GreeterPayload
		}
		c.State = c.State.Next()
		c.GreeterPayload, c.ClaimerPayload = nil, nil
		done = true
		c.Generation++
	}
	gen = c.Generation
	if err := r.Invitations.SaveConduit(ctx, p.OrganizationID, p.Token, c); err != nil {
		return nil, false, 0, err
	}
	return peerPayload, done, gen, nil
}

// conduitExchange runs one exchange step for p and blocks until the other
// peer took part in it.
func (s *InviteService) conduitExchange(ctx context.Context, p Peer, state models.ConduitState, payload []byte) ([]byte, error) {
	if payload == nil {
		payload = []byte{}
	}
	updated := make(chan struct{}, 1)
	sub := s.bus.Connect(events.TypeInviteConduitUpdated, func(env events.Envelope) {
		ev := env.Event.(*events.InviteConduitUpdated)
		if ev.OrganizationID != p.OrganizationID || ev.Token != p.Token {
			return
		}
		select {
		case updated <- struct{}{}:
		default:
		}
	})
	defer sub.Disconnect()

	var (
		peerPayload []byte
		done        bool
		gen         uint64
	)
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		peerPayload, done, gen, err = talk(ctx, r, p, state, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(&events.InviteConduitUpdated{OrganizationID: p.OrganizationID, Token: p.Token})
	if done {
		return peerPayload, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-updated:
		}
		var inv *models.Invitation
		err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
			var err error
			inv, err = r.Invitations.Get(ctx, p.OrganizationID, p.Token)
			return repoError(err, ErrNotFound)
		})
		if err != nil {
			return nil, err
		}
		if inv.IsDeleted() {
			return nil, ErrAlreadyDeleted
		}
		c := inv.Conduit
		if c.Generation == gen {
			continue
		}
		if last := c.LastExchange; last != nil && last.FromGeneration == gen {
			if p.side == greeterPeer {
				return last.ClaimerPayload, nil
			}
			return last.GreeterPayload, nil
		}
		return nil, ErrInvalidState
	}
}

type step struct {
	state   models.ConduitState
	payload []byte
}

// exchanges runs consecutive steps, returning the peer payload of the last.
func (s *InviteService) exchanges(ctx context.Context, p Peer, steps ...step) ([]byte, error) {
	var out []byte
	for _, st := range steps {
		var err error
		if out, err = s.conduitExchange(ctx, p, st.state, st.payload); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WaitPeer exchanges the public keys of both peers. It restarts the
// conduit when it was in another state.
func (s *InviteService) WaitPeer(ctx context.Context, p Peer, publicKey []byte) ([]byte, error) {
	return s.conduitExchange(ctx, p, models.ConduitState1WaitPeers, publicKey)
}

// GreeterGetHashedNonce returns the claimer hashed nonce.
func (s *InviteService) GreeterGetHashedNonce(ctx context.Context, p Peer) ([]byte, error) {
	return s.conduitExchange(ctx, p, models.ConduitState2_1ClaimerHashedNonce, nil)
}

// ClaimerSendHashedNonce sends the hashed nonce and returns the greeter nonce.
func (s *InviteService) ClaimerSendHashedNonce(ctx context.Context, p Peer, hashedNonce []byte) ([]byte, error) {
	return s.exchanges(ctx, p,
		step{models.ConduitState2_1ClaimerHashedNonce, hashedNonce},
		step{models.ConduitState2_2GreeterNonce, nil},
	)
}

// GreeterSendNonce sends the greeter nonce and returns the claimer nonce.
func (s *InviteService) GreeterSendNonce(ctx context.Context, p Peer, nonce []byte) ([]byte, error) {
	return s.exchanges(ctx, p,
		step{models.ConduitState2_2GreeterNonce, nonce},
		step{models.ConduitState2_3ClaimerNonce, nil},
	)
}

func (s *InviteService) ClaimerSendNonce(ctx context.Context, p Peer, nonce []byte) error {
	_, err := s.conduitExchange(ctx, p, models.ConduitState2_3ClaimerNonce, nonce)
	return err
}

// ClaimerTrust is the step where the greeter waits for the claimer to
// signify trust.
func (s *InviteService) ClaimerTrust(ctx context.Context, p Peer) error {
	_, err := s.conduitExchange(ctx, p, models.ConduitState3_1ClaimerTrust, nil)
	return err
}

func (s *InviteService) GreeterTrust(ctx context.Context, p Peer) error {
	_, err := s.conduitExchange(ctx, p, models.ConduitState3_2GreeterTrust, nil)
	return err
}

// Communicate exchanges arbitrary payloads, as many times as needed.
func (s *InviteService) Communicate(ctx context.Context, p Peer, payload []byte) ([]byte, error) {
	return s.conduitExchange(ctx, p, models.ConduitState4Communicate, payload)
}
