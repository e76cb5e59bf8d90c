package httpserver

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type wsClient struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (e *testEnv) dialWS(t *testing.T) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(e.ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return &wsClient{ctx: ctx, conn: conn}
}

func (c *wsClient) send(t *testing.T, msg any) {
	t.Helper()
	raw, err := msgpack.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, c.conn.Write(c.ctx, websocket.MessageBinary, raw))
}

func (c *wsClient) sendReq(t *testing.T, req protocol.Req) {
	t.Helper()
	require.NoError(t, c.conn.Write(c.ctx, websocket.MessageBinary, dumpReq(t, req)))
}

func (c *wsClient) recv(t *testing.T, out any) {
	t.Helper()
	typ, raw, err := c.conn.Read(c.ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, typ)
	require.NoError(t, msgpack.Unmarshal(raw, out))
}

// handshake answers the challenge with the answer built by fill and
// returns the result.
func (c *wsClient) handshake(t *testing.T, fill func(a *protocol.HandshakeAnswerMsg, challenge []byte)) protocol.HandshakeResultMsg {
	t.Helper()
	var challenge protocol.HandshakeChallengeMsg
	c.recv(t, &challenge)
	require.Equal(t, protocol.HandshakeChallenge, challenge.Handshake)
	require.Len(t, challenge.Challenge, challengeSize)

	answer := &protocol.HandshakeAnswerMsg{
		Handshake:        protocol.HandshakeAnswer,
		Type:             string(protocol.KindAnonymous),
		ClientAPIVersion: [2]int{2, 8},
		OrganizationID:   string(coolOrg),
	}
	fill(answer, challenge.Challenge)
	c.send(t, answer)

	var result protocol.HandshakeResultMsg
	c.recv(t, &result)
	assert.Equal(t, protocol.HandshakeResult, result.Handshake)
	return result
}

func (e *testEnv) authenticatedAnswer(d *testDevice) func(*protocol.HandshakeAnswerMsg, []byte) {
	return func(a *protocol.HandshakeAnswerMsg, challenge []byte) {
		a.Type = string(protocol.KindAuthenticated)
		a.DeviceID = string(d.id)
		a.RootVerifyKey = e.rootKey.Public().(cryptox.VerifyKey)
		a.Answer = ed25519.Sign(d.key, challenge)
	}
}

func (e *testEnv) dialAuthenticated(t *testing.T, d *testDevice) *wsClient {
	t.Helper()
	c := e.dialWS(t)
	require.Equal(t, protocol.HandshakeResultOK, c.handshake(t, e.authenticatedAnswer(d)).Result)
	return c
}

// ready waits for the server to serve commands, which means the
// connection is subscribed to events.
func (c *wsClient) ready(t *testing.T) {
	t.Helper()
	c.sendReq(t, &protocol.PingReq{Ping: "ready"})
	var pong protocol.PingRep
	c.recv(t, &pong)
	require.Equal(t, "ready", pong.Pong)
}

func TestWS_Challenge(t *testing.T) {
	e := newTestEnv(t)
	e.bootstrap(t)
	c := e.dialWS(t)

	var challenge protocol.HandshakeChallengeMsg
	c.recv(t, &challenge)
	assert.Equal(t, [][2]int{{2, 8}, {3, 3}}, challenge.SupportedAPIVersions)
	assert.True(t, challenge.BackendTimestamp.Equal(t0))
	assert.Positive(t, challenge.BallparkClientEarlyOffset)
}

func TestWS_Handshake(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)
	e.revoke(t, alice, bob.user())
	token, _, err := e.svc.Invites.New(ctx, alice.caller(), services.InviteNewParams{Type: models.InvitationTypeDevice})
	require.NoError(t, err)
	otherKey, otherVerify, err := cryptox.GenerateSigningKey()
	require.NoError(t, err)

	tests := []struct {
		name string
		fill func(a *protocol.HandshakeAnswerMsg, challenge []byte)
		want string
	}{
		{
			name: "anonymous",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) {},
			want: protocol.HandshakeResultOK,
		},
		{
			name: "api 4 is not served over websocket",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) { a.ClientAPIVersion = [2]int{4, 0} },
			want: protocol.HandshakeResultBadProtocol,
		},
		{
			name: "not an answer",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) { a.Handshake = "hello" },
			want: protocol.HandshakeResultBadProtocol,
		},
		{
			name: "unknown type",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) { a.Type = "administration" },
			want: protocol.HandshakeResultBadProtocol,
		},
		{
			name: "unknown organization",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) { a.OrganizationID = "NoSuchOrg" },
			want: protocol.HandshakeResultBadIdentity,
		},
		{
			name: "authenticated",
			fill: e.authenticatedAnswer(alice),
			want: protocol.HandshakeResultOK,
		},
		{
			name: "root verify key mismatch",
			fill: func(a *protocol.HandshakeAnswerMsg, challenge []byte) {
				e.authenticatedAnswer(alice)(a, challenge)
				a.RootVerifyKey = otherVerify
			},
			want: protocol.HandshakeResultRVKMismatch,
		},
		{
			name: "wrong challenge signature",
			fill: func(a *protocol.HandshakeAnswerMsg, challenge []byte) {
				e.authenticatedAnswer(alice)(a, challenge)
				a.Answer = ed25519.Sign(otherKey, challenge)
			},
			want: protocol.HandshakeResultBadIdentity,
		},
		{
			name: "unknown device",
			fill: func(a *protocol.HandshakeAnswerMsg, challenge []byte) {
				e.authenticatedAnswer(alice)(a, challenge)
				a.DeviceID = "zack@dev1"
			},
			want: protocol.HandshakeResultBadIdentity,
		},
		{
			name: "revoked device",
			fill: e.authenticatedAnswer(bob),
			want: protocol.HandshakeResultRevokedDevice,
		},
		{
			name: "invited",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) {
				a.Type = string(protocol.KindInvited)
				a.Token = token.String()
			},
			want: protocol.HandshakeResultOK,
		},
		{
			name: "invited with another type",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) {
				a.Type = string(protocol.KindInvited)
				a.Token = token.String()
				typ := string(models.InvitationTypeUser)
				a.InvitationType = &typ
			},
			want: protocol.HandshakeResultBadInvitation,
		},
		{
			name: "invited with bad token",
			fill: func(a *protocol.HandshakeAnswerMsg, _ []byte) {
				a.Type = string(protocol.KindInvited)
				a.Token = "nope"
			},
			want: protocol.HandshakeResultBadInvitation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.dialWS(t)
			result := c.handshake(t, tt.fill)
			assert.Equal(t, tt.want, result.Result)
			if tt.want != protocol.HandshakeResultOK {
				_, _, err := c.conn.Read(c.ctx)
				assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
			}
		})
	}
}

func TestWS_Commands(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	c := e.dialAuthenticated(t, alice)

	c.sendReq(t, &protocol.PingReq{Ping: "hello"})
	var pong protocol.PingRep
	c.recv(t, &pong)
	assert.Equal(t, protocol.PingRep{Status: protocol.StatusOK, Pong: "hello"}, pong)

	var rep protocol.ErrorRep
	c.send(t, map[string]any{"cmd": "dummy"})
	c.recv(t, &rep)
	assert.Equal(t, protocol.StatusUnknownCommand, rep.Status)

	require.NoError(t, c.conn.Write(c.ctx, websocket.MessageBinary, []byte{0xc1}))
	c.recv(t, &rep)
	assert.Equal(t, protocol.StatusInvalidMsgFormat, rep.Status)

	// Only available from API 4.
	c.sendReq(t, &protocol.CertificateGetReq{})
	c.recv(t, &rep)
	assert.Equal(t, protocol.StatusUnknownCommand, rep.Status)
}

func TestWS_EventsListen(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)
	c := e.dialAuthenticated(t, alice)

	var rep protocol.EventRep
	c.sendReq(t, &protocol.EventsListenReq{Wait: false})
	c.recv(t, &rep)
	assert.Equal(t, protocol.StatusNoEvents, rep.Status)

	e.ping(t, bob, "hello")
	c.sendReq(t, &protocol.EventsListenReq{Wait: true})
	rep = protocol.EventRep{}
	c.recv(t, &rep)
	assert.Equal(t, protocol.EventRep{Status: protocol.StatusOK, Event: protocol.EventPinged, Ping: "hello"}, rep)
}

func TestWS_NextCommandCancelsWait(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	c := e.dialAuthenticated(t, alice)

	c.sendReq(t, &protocol.EventsListenReq{Wait: true})
	c.sendReq(t, &protocol.PingReq{Ping: "still there?"})

	// The pending events_listen gets no reply.
	var pong protocol.PingRep
	c.recv(t, &pong)
	assert.Equal(t, "still there?", pong.Pong)

	var rep protocol.EventRep
	c.sendReq(t, &protocol.EventsListenReq{Wait: false})
	c.recv(t, &rep)
	assert.Equal(t, protocol.StatusNoEvents, rep.Status)
}

func TestWS_ClosedOnRevocation(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)
	c := e.dialAuthenticated(t, bob)
	c.ready(t)

	e.revoke(t, alice, bob.user())
	_, _, err := c.conn.Read(c.ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWS_ClosedOnExpiry(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	c := e.dialAuthenticated(t, alice)
	c.ready(t)

	expired := true
	require.NoError(t, e.svc.Organizations.Update(context.Background(), coolOrg, models.OrganizationUpdate{IsExpired: &expired}))
	_, _, err := c.conn.Read(c.ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWS_ClosedOnOverflow(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)
	c := e.dialAuthenticated(t, alice)
	c.ready(t)

	// Events pile up until events_listen is sent.
	for i := 0; i <= eventsBuffer; i++ {
		e.ping(t, bob, "flood")
	}
	_, _, err := c.conn.Read(c.ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

// withWSDispatch swaps the WebSocket command runner for the test.
func withWSDispatch(t *testing.T, wrap func(next func(*Server, context.Context, *connection, protocol.Req) (any, error)) func(*Server, context.Context, *connection, protocol.Req) (any, error)) {
	t.Helper()
	orig := wsDispatch
	wsDispatch = wrap(orig)
	t.Cleanup(func() { wsDispatch = orig })
}

func TestWS_PanicClosesOnlyThatConnection(t *testing.T) {
	withWSDispatch(t, func(next func(*Server, context.Context, *connection, protocol.Req) (any, error)) func(*Server, context.Context, *connection, protocol.Req) (any, error) {
		return func(s *Server, ctx context.Context, conn *connection, req protocol.Req) (any, error) {
			switch req := req.(type) {
			case *protocol.PingReq:
				if req.Ping == "boom" {
					panic("boom")
				}
			case *protocol.EventsListenReq:
				if req.Wait {
					panic("boom while waiting")
				}
			}
			return next(s, ctx, conn, req)
		}
	})

	e := newTestEnv(t)
	alice := e.bootstrap(t)

	tests := []struct {
		name string
		req  protocol.Req
	}{
		{name: "immediate command", req: &protocol.PingReq{Ping: "boom"}},
		{name: "long running command", req: &protocol.EventsListenReq{Wait: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.dialAuthenticated(t, alice)
			c.sendReq(t, tt.req)
			_, _, err := c.conn.Read(c.ctx)
			assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))

			// The server keeps serving other connections.
			other := e.dialAuthenticated(t, alice)
			other.sendReq(t, &protocol.PingReq{Ping: "still up"})
			var pong protocol.PingRep
			other.recv(t, &pong)
			assert.Equal(t, "still up", pong.Pong)
		})
	}
}

func TestWS_CompletedWaitStillReplied(t *testing.T) {
	// events_listen takes the event off the queue, then the next command
	// arrives before its reply is sent.
	withWSDispatch(t, func(next func(*Server, context.Context, *connection, protocol.Req) (any, error)) func(*Server, context.Context, *connection, protocol.Req) (any, error) {
		return func(s *Server, ctx context.Context, conn *connection, req protocol.Req) (any, error) {
			rep, err := next(s, ctx, conn, req)
			if listen, ok := req.(*protocol.EventsListenReq); ok && listen.Wait {
				<-ctx.Done()
			}
			return rep, err
		}
	})

	e := newTestEnv(t)
	alice := e.bootstrap(t)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)
	c := e.dialAuthenticated(t, alice)
	c.ready(t)

	e.ping(t, bob, "hello")
	c.sendReq(t, &protocol.EventsListenReq{Wait: true})
	c.sendReq(t, &protocol.PingReq{Ping: "next"})

	var rep protocol.EventRep
	c.recv(t, &rep)
	assert.Equal(t, protocol.EventRep{Status: protocol.StatusOK, Event: protocol.EventPinged, Ping: "hello"}, rep)

	var pong protocol.PingRep
	c.recv(t, &pong)
	assert.Equal(t, "next", pong.Pong)
}
