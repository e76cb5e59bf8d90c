package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const org = models.OrganizationID("CoolOrg")

func ping(o models.OrganizationID, p string) *Pinged {
	return &Pinged{OrganizationID: o, Author: "alice@dev1", Ping: p}
}

func TestBus_DispatchInRegistrationOrder(t *testing.T) {
	bus := NewBus(10)
	var got []string
	bus.Connect(TypePinged, func(env Envelope) { got = append(got, "a:"+env.Event.(*Pinged).Ping) })
	bus.Connect(TypePinged, func(env Envelope) { got = append(got, "b:"+env.Event.(*Pinged).Ping) })
	bus.Connect(TypeUserRevoked, func(env Envelope) { got = append(got, "revoked") })

	bus.Send(ping(org, "1"))
	bus.Send(ping(org, "2"))

	assert.Equal(t, []string{"a:1", "b:1", "a:2", "b:2"}, got)
}

func TestBus_IDsOnlyForClientEvents(t *testing.T) {
	bus := NewBus(10)
	id1 := bus.Send(ping(org, "x"))
	id2 := bus.Send(&UserRevoked{OrganizationID: org, UserID: "bob"})
	id3 := bus.Send(ping("Other", "y"))

	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(0), id2)
	assert.Equal(t, uint64(2), id3)
	assert.Equal(t, uint64(2), bus.LastID())
}

func TestSubscription_Disconnect(t *testing.T) {
	bus := NewBus(10)
	calls := 0
	sub := bus.Connect(TypePinged, func(Envelope) { calls++ })
	bus.Send(ping(org, "1"))
	sub.Disconnect()
	sub.Disconnect()
	bus.Send(ping(org, "2"))
	assert.Equal(t, 1, calls)
}

func TestScope_Close(t *testing.T) {
	bus := NewBus(10)
	calls := 0
	scope := bus.NewScope()
	scope.Connect(TypePinged, func(Envelope) { calls++ })
	scope.Connect(TypeMessageReceived, func(Envelope) { calls++ })
	bus.Send(ping(org, "1"))
	scope.Close()
	bus.Send(ping(org, "2"))
	bus.Send(&MessageReceived{OrganizationID: org, Recipient: "bob", Index: 1})
	assert.Equal(t, 1, calls)

	// Connecting on a closed scope is a no-op.
	scope.Connect(TypePinged, func(Envelope) { calls++ })
	bus.Send(ping(org, "3"))
	assert.Equal(t, 1, calls)
}

func TestBus_WaitFor(t *testing.T) {
	bus := NewBus(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var got Event
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err = bus.WaitFor(ctx, TypePinged, func(ev Event) bool {
			return ev.(*Pinged).Ping == "wanted"
		})
	}()
	require.Eventually(t, func() bool {
		bus.subsMu.Lock()
		defer bus.subsMu.Unlock()
		return len(bus.subs[TypePinged]) == 1
	}, time.Second, time.Millisecond)

	bus.Send(ping(org, "other"))
	bus.Send(ping(org, "wanted"))
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, "wanted", got.(*Pinged).Ping)

	bus.subsMu.Lock()
	assert.Empty(t, bus.subs[TypePinged])
	bus.subsMu.Unlock()
}

func TestBus_WaitForCancelled(t *testing.T) {
	bus := NewBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bus.WaitFor(ctx, TypePinged, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBus_Since(t *testing.T) {
	bus := NewBus(3)
	for i := 0; i < 5; i++ {
		bus.Send(ping(org, "p"))
		bus.Send(ping("Other", "p"))
	}
	// org got ids 1,3,5,7,9; only 5,7,9 are retained.

	tests := []struct {
		name   string
		lastID uint64
		ok     bool
		ids    []uint64
	}{
		{name: "within window", lastID: 5, ok: true, ids: []uint64{7, 9}},
		{name: "last dropped event known", lastID: 3, ok: true, ids: []uint64{5, 7, 9}},
		{name: "other org id in between", lastID: 6, ok: true, ids: []uint64{7, 9}},
		{name: "up to date", lastID: 10, ok: true, ids: nil},
		{name: "too old", lastID: 2, ok: false},
		{name: "from the future", lastID: 42, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs, ok := bus.Since(org, tt.lastID)
			assert.Equal(t, tt.ok, ok)
			var ids []uint64
			for _, env := range envs {
				ids = append(ids, env.ID)
				assert.Equal(t, org, env.Event.Organization())
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	envs, ok := bus.Since("Unknown", 1)
	assert.True(t, ok)
	assert.Empty(t, envs)
}
