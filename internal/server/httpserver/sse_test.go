package httpserver

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseMessage struct {
	comment string
	event   string
	data    string
	id      string
}

type sseStream struct {
	resp *http.Response
	r    *bufio.Reader
}

func (e *testEnv) openEvents(t *testing.T, d *testDevice, opts ...requestOption) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.ts.URL+"/authenticated/"+string(coolOrg)+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", common.ContentTypeEventStream)
	req.Header.Set(common.HeaderAPIVersion, "4.0")
	signedBy(d.id, d.key, nil)(req)
	for _, opt := range opts {
		opt(req)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) stream(t *testing.T, d *testDevice, opts ...requestOption) *sseStream {
	t.Helper()
	resp := e.openEvents(t, d, opts...)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, common.ContentTypeEventStream, resp.Header.Get("Content-Type"))
	s := &sseStream{resp: resp, r: bufio.NewReader(resp.Body)}
	assert.Equal(t, sseMessage{comment: "keepalive"}, s.next(t))
	return s
}

func (s *sseStream) next(t *testing.T) sseMessage {
	t.Helper()
	var m sseMessage
	for {
		line, err := s.r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return m
		}
		key, value, _ := strings.Cut(line, ":")
		switch key {
		case "":
			m.comment = value
		case "event":
			m.event = value
		case "data":
			m.data = value
		case "id":
			m.id = value
		}
	}
}

// nextEvent skips keepalives and decodes the next event.
func (s *sseStream) nextEvent(t *testing.T) (protocol.EventRep, uint64) {
	t.Helper()
	for {
		m := s.next(t)
		if m.data == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(m.data)
		require.NoError(t, err)
		var rep protocol.EventRep
		require.NoError(t, protocol.LoadRep(raw, &rep))
		id, err := strconv.ParseUint(m.id, 10, 64)
		require.NoError(t, err)
		return rep, id
	}
}

func (e *testEnv) ping(t *testing.T, d *testDevice, ping string) {
	t.Helper()
	var rep protocol.PingRep
	e.call(t, d, &protocol.PingReq{Ping: ping}, &rep)
	require.Equal(t, protocol.StatusOK, rep.Status)
}

func TestSSE_StreamsEvents(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)

	s := e.stream(t, alice)
	assert.Equal(t, "4.0", s.resp.Header.Get(common.HeaderAPIVersion))

	// Own pings are not echoed back.
	e.ping(t, alice, "mine")
	e.ping(t, bob, "hello")

	rep, id := s.nextEvent(t)
	assert.Equal(t, protocol.EventRep{Status: protocol.StatusOK, Event: protocol.EventPinged, Ping: "hello"}, rep)
	assert.Equal(t, e.bus.LastID(), id)
}

func TestSSE_ResumesFromLastEventID(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)

	last := e.bus.LastID()
	e.ping(t, bob, "one")
	e.ping(t, bob, "two")

	s := e.stream(t, alice, withHeader(common.HeaderLastEventID, strconv.FormatUint(last, 10)))
	e.ping(t, bob, "three")

	var got []string
	for range 3 {
		rep, _ := s.nextEvent(t)
		got = append(got, rep.Ping)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestSSE_MissedEvents(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)

	s := e.stream(t, alice, withHeader(common.HeaderLastEventID, "999999"))
	assert.Equal(t, sseMessage{event: "missed_events"}, s.next(t))

	e.ping(t, bob, "after")
	rep, _ := s.nextEvent(t)
	assert.Equal(t, "after", rep.Ping)
}

func TestSSE_Keepalive(t *testing.T) {
	e := newTestEnv(t, withKeepalive(20*time.Millisecond))
	alice := e.bootstrap(t)

	s := e.stream(t, alice)
	assert.Equal(t, sseMessage{comment: "keepalive"}, s.next(t))
}

func TestSSE_ClosedOnRevocation(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)

	s := e.stream(t, bob)
	e.revoke(t, alice, bob.user())

	_, err := io.ReadAll(s.r)
	assert.NoError(t, err)
}

func TestSSE_ClosedOnExpiry(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)

	s := e.stream(t, alice)
	expired := true
	require.NoError(t, e.svc.Organizations.Update(context.Background(), coolOrg, models.OrganizationUpdate{IsExpired: &expired}))

	_, err := io.ReadAll(s.r)
	assert.NoError(t, err)
}

func TestSSE_Rejected(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)

	tests := []struct {
		name string
		opts []requestOption
		want int
	}{
		{
			name: "legacy api",
			opts: []requestOption{withHeader(common.HeaderAPIVersion, "3.3")},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "not accepting event stream",
			opts: []requestOption{withHeader("Accept", "application/json")},
			want: http.StatusNotAcceptable,
		},
		{
			name: "bad last event id",
			opts: []requestOption{withHeader(common.HeaderLastEventID, "yesterday")},
			want: http.StatusBadRequest,
		},
		{
			name: "not signed",
			opts: []requestOption{withoutHeader(common.HeaderSignature)},
			want: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.openEvents(t, alice, tt.opts...)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSSE_ExpiryReportedBeforeAccept(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	expired := true
	require.NoError(t, e.svc.Organizations.Update(context.Background(), coolOrg, models.OrganizationUpdate{IsExpired: &expired}))

	resp := e.openEvents(t, alice, withHeader("Accept", "application/json"))
	assert.Equal(t, StatusOrganizationExpired, resp.StatusCode)
}
