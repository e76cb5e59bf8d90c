package events

import (
	"context"
	"sync"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// Envelope is what subscribers receive. ID is non-zero only for client
// events and grows monotonically across the whole process.
type Envelope struct {
	ID    uint64
	Event Event
}

// Handler is called synchronously from Send. It must not block and must not
// call Send.
type Handler func(Envelope)

type subscription struct {
	id uint64
	h  Handler
}

// Bus dispatches events to subscribers in registration order.
type Bus struct {
	// sendMu serializes Send so that subscribers observe events in id order.
	sendMu sync.Mutex

	subsMu sync.Mutex
	nextID uint64
	subs   map[Type][]subscription

	history *history
}

// NewBus creates a bus keeping the last retention client events of each
// organization.
func NewBus(retention int) *Bus {
	return &Bus{
		subs:    make(map[Type][]subscription),
		history: newHistory(retention),
	}
}

// Subscription is the handle returned by Connect.
type Subscription struct {
	bus  *Bus
	typ  Type
	id   uint64
	once sync.Once
}

// Connect registers h for events of type typ until the subscription is
// disconnected.
func (b *Bus) Connect(typ Type, h Handler) *Subscription {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.nextID++
	b.subs[typ] = append(b.subs[typ], subscription{id: b.nextID, h: h})
	return &Subscription{bus: b, typ: typ, id: b.nextID}
}

// Disconnect is idempotent.
func (s *Subscription) Disconnect() {
	s.once.Do(func() {
		b := s.bus
		b.subsMu.Lock()
		defer b.subsMu.Unlock()
		list := b.subs[s.typ]
		for i, sub := range list {
			if sub.id == s.id {
				b.subs[s.typ] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[s.typ]) == 0 {
			delete(b.subs, s.typ)
		}
	})
}

// Send records client events in the history then calls every subscriber of
// the event type. It returns the event id (0 for internal events).
func (b *Bus) Send(ev Event) uint64 {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	env := Envelope{Event: ev}
	if ce, ok := ev.(ClientEvent); ok {
		env.ID = b.history.append(ce)
	}

	b.subsMu.Lock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type()]))
	for _, sub := range b.subs[ev.Type()] {
		handlers = append(handlers, sub.h)
	}
	b.subsMu.Unlock()

	for _, h := range handlers {
		h(env)
	}
	return env.ID
}

// Since returns the retained client events of org with an id greater than
// lastID. ok is false when some of those events were already dropped, in
// which case the caller must tell its client it missed events.
func (b *Bus) Since(org models.OrganizationID, lastID uint64) (envs []Envelope, ok bool) {
	return b.history.since(org, lastID)
}

// LastID returns the id of the most recent client event.
func (b *Bus) LastID() uint64 {
	return b.history.last()
}

// WaitFor blocks until an event of type typ matching pred is sent, or ctx
// is done.
func (b *Bus) WaitFor(ctx context.Context, typ Type, pred func(Event) bool) (Event, error) {
	found := make(chan Event, 1)
	sub := b.Connect(typ, func(env Envelope) {
		if pred == nil || pred(env.Event) {
			select {
			case found <- env.Event:
			default:
			}
		}
	})
	defer sub.Disconnect()

	select {
	case ev := <-found:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Scope groups the subscriptions of one connection. Close disconnects all
// of them, whatever the exit path of the connection.
type Scope struct {
	bus    *Bus
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

func (b *Bus) NewScope() *Scope {
	return &Scope{bus: b}
}

func (s *Scope) Connect(typ Type, h Handler) {
	sub := s.bus.Connect(typ, h)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.Disconnect()
		return
	}
	s.subs = append(s.subs, sub)
}

func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Disconnect()
	}
}
