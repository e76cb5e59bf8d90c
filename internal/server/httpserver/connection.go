package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/google/uuid"
)

// Causes of a connection being closed by the server.
var (
	errUserRevoked         = errors.New("user revoked")
	errOrganizationExpired = errors.New("organization expired")
	errInvitationDeleted   = errors.New("invitation deleted")
	errEventsOverflow      = errors.New("client too slow to consume events")
)

// eventsBuffer is the number of events a connection may lag behind before
// being closed.
const eventsBuffer = 32

var clientEventTypes = []events.Type{
	events.TypePinged,
	events.TypeMessageReceived,
	events.TypeInviteStatusChanged,
	events.TypeRealmRolesUpdated,
	events.TypeRealmMaintenanceStarted,
	events.TypeRealmMaintenanceFinished,
	events.TypeRealmVlobsUpdated,
	events.TypePkiEnrollmentUpdated,
}

// connection is the server side of one RPC request, SSE stream or
// WebSocket. Its context is cancelled when the peer loses its right to
// talk to the server.
type connection struct {
	cc     *clientContext
	ctx    context.Context
	cancel context.CancelCauseFunc
	scope  *events.Scope

	// events is nil unless the connection listens to events.
	events chan events.Envelope

	mu     sync.Mutex
	realms map[uuid.UUID]struct{}
}

func (s *Server) openConnection(parent context.Context, cc *clientContext, listen bool) (*connection, error) {
	ctx, cancel := context.WithCancelCause(parent)
	c := &connection{cc: cc, ctx: ctx, cancel: cancel, scope: s.bus.NewScope()}
	org := cc.org

	c.scope.Connect(events.TypeOrganizationExpired, func(env events.Envelope) {
		if env.Event.Organization() == org {
			cancel(errOrganizationExpired)
		}
	})

	switch {
	case cc.caller != nil:
		user := cc.caller.UserID()
		c.scope.Connect(events.TypeUserRevoked, func(env events.Envelope) {
			if ev, ok := env.Event.(*events.UserRevoked); ok && ev.OrganizationID == org && ev.UserID == user {
				cancel(errUserRevoked)
			}
		})
	case cc.invitation != nil:
		token := cc.invitation.Token
		c.scope.Connect(events.TypeInviteStatusChanged, func(env events.Envelope) {
			ev, ok := env.Event.(*events.InviteStatusChanged)
			if ok && ev.OrganizationID == org && ev.Token == token && ev.Status == models.InvitationStatusDeleted {
				cancel(errInvitationDeleted)
			}
		})
	}

	if !listen || cc.caller == nil {
		return c, nil
	}

	// Subscribe before loading the realms so no role change is missed.
	c.realms = make(map[uuid.UUID]struct{})
	c.events = make(chan events.Envelope, eventsBuffer)
	for _, typ := range clientEventTypes {
		c.scope.Connect(typ, c.deliver)
	}
	realms, err := s.svc.Realms.UserRealms(ctx, org, cc.caller.UserID())
	if err != nil {
		c.close()
		return nil, err
	}
	c.mu.Lock()
	for _, id := range realms {
		c.realms[id] = struct{}{}
	}
	c.mu.Unlock()
	return c, nil
}

func (c *connection) close() {
	c.scope.Close()
	c.cancel(nil)
}

// closedBy returns why the server closed the connection, nil when it was
// not closed or closed by the peer.
func (c *connection) closedBy() error {
	cause := context.Cause(c.ctx)
	for _, err := range []error{errUserRevoked, errOrganizationExpired, errInvitationDeleted, errEventsOverflow} {
		if errors.Is(cause, err) {
			return err
		}
	}
	return nil
}

func httpStatusOf(closedBy error) int {
	switch {
	case errors.Is(closedBy, errUserRevoked):
		return StatusUserRevoked
	case errors.Is(closedBy, errOrganizationExpired):
		return StatusOrganizationExpired
	case errors.Is(closedBy, errInvitationDeleted):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// deliver runs on the bus goroutine and must not block.
func (c *connection) deliver(env events.Envelope) {
	c.track(env.Event)
	if !c.visible(env.Event) {
		return
	}
	select {
	case c.events <- env:
	default:
		c.cancel(errEventsOverflow)
	}
}

// track keeps the realms of the user current. Only live events go through
// it: replayed history is older than the realms loaded at connection time.
func (c *connection) track(ev events.Event) {
	e, ok := ev.(*events.RealmRolesUpdated)
	caller := c.cc.caller
	if !ok || e.OrganizationID != caller.OrganizationID || e.UserID != caller.UserID() {
		return
	}
	c.mu.Lock()
	if e.Role == nil {
		delete(c.realms, e.RealmID)
	} else {
		c.realms[e.RealmID] = struct{}{}
	}
	c.mu.Unlock()
}

// visible tells whether the device of the connection must see ev.
func (c *connection) visible(ev events.Event) bool {
	caller := c.cc.caller
	if ev.Organization() != caller.OrganizationID {
		return false
	}
	switch e := ev.(type) {
	case *events.Pinged:
		return e.Author != caller.DeviceID
	case *events.MessageReceived:
		return e.Recipient == caller.UserID()
	case *events.InviteStatusChanged:
		return e.Greeter == caller.UserID()
	case *events.RealmRolesUpdated:
		return e.UserID == caller.UserID() && e.Author != caller.DeviceID
	case *events.RealmMaintenanceStarted:
		return e.Author != caller.DeviceID && c.inRealm(e.RealmID)
	case *events.RealmMaintenanceFinished:
		return e.Author != caller.DeviceID && c.inRealm(e.RealmID)
	case *events.RealmVlobsUpdated:
		return e.Author != caller.DeviceID && c.inRealm(e.RealmID)
	case *events.PkiEnrollmentUpdated:
		return caller.Profile == models.UserProfileAdmin
	}
	return false
}

func (c *connection) inRealm(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.realms[id]
	return ok
}

// nextEvent is events_listen. Without wait it answers no_events when
// nothing is pending.
func (c *connection) nextEvent(ctx context.Context, wait bool) (any, error) {
	if c.events == nil {
		return protocol.Error(protocol.StatusNoEvents, ""), nil
	}
	if !wait {
		select {
		case env := <-c.events:
			return eventRep(env.Event), nil
		default:
			return protocol.Error(protocol.StatusNoEvents, ""), nil
		}
	}
	select {
	case env := <-c.events:
		return eventRep(env.Event), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func eventRep(ev events.Event) *protocol.EventRep {
	rep := &protocol.EventRep{Status: protocol.StatusOK}
	switch e := ev.(type) {
	case *events.Pinged:
		rep.Event = protocol.EventPinged
		rep.Ping = e.Ping
	case *events.MessageReceived:
		rep.Event = protocol.EventMessageReceived
		rep.Index = e.Index
	case *events.InviteStatusChanged:
		rep.Event = protocol.EventInviteStatusChanged
		rep.Token = e.Token.String()
		rep.InvitationStatus = string(e.Status)
	case *events.RealmRolesUpdated:
		rep.Event = protocol.EventRealmRolesUpdated
		rep.RealmID = e.RealmID.String()
		if e.Role != nil {
			rep.Role = string(*e.Role)
		}
	case *events.RealmMaintenanceStarted:
		rep.Event = protocol.EventRealmMaintenanceStarted
		rep.RealmID = e.RealmID.String()
		rep.EncryptionRevision = e.EncryptionRevision
	case *events.RealmMaintenanceFinished:
		rep.Event = protocol.EventRealmMaintenanceFinished
		rep.RealmID = e.RealmID.String()
		rep.EncryptionRevision = e.EncryptionRevision
	case *events.RealmVlobsUpdated:
		rep.Event = protocol.EventRealmVlobsUpdated
		rep.RealmID = e.RealmID.String()
		rep.Checkpoint = e.Checkpoint
		rep.Src = e.SrcID.String()
		rep.SrcVersion = e.SrcVersion
	case *events.PkiEnrollmentUpdated:
		rep.Event = protocol.EventPkiEnrollmentsUpdated
	}
	return rep
}
