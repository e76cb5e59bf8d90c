package httpserver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/Scille/parsec-cloud-sub009/internal/timex"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const challengeSize = 48

var (
	// errPeerGone stops the command loop when the client closed the socket.
	errPeerGone = errors.New("peer closed the connection")
	errPanic    = errors.New("command panicked")
)

// wsDispatch runs one WebSocket command. Replaced in tests.
var wsDispatch = (*Server).dispatch

// safeDispatch turns a panic of the command into an error that closes
// this connection only.
func (s *Server) safeDispatch(ctx context.Context, conn *connection, req protocol.Req) (rep any, err error) {
	defer func() {
		if r := recover(); r != nil {
			conn.cc.logger.Error(ctx, "command panicked", "cmd", req.Cmd(), "panic", r, "stack", string(debug.Stack()))
			rep, err = nil, fmt.Errorf("%w: %s: %v", errPanic, req.Cmd(), r)
		}
	}()
	return wsDispatch(s, ctx, conn, req)
}

// legacyVersions are the API versions spoken over WebSocket.
func legacyVersions() []protocol.APIVersion {
	var out []protocol.APIVersion
	for _, v := range protocol.SupportedAPIVersions {
		if v.Major < protocol.FirstSSEMajor {
			out = append(out, v)
		}
	}
	return out
}

// handleWebsocket serves the pre-SSE transport: a challenge/answer
// handshake followed by msgpack commands, one reply per command.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(maxBodySize)

	ctx := r.Context()
	cc, failure, err := s.wsHandshake(ctx, ws)
	if err != nil {
		s.logger.Warn(ctx, "websocket handshake failed", "error", err)
		_ = ws.Close(websocket.StatusInternalError, "handshake failed")
		return
	}
	if failure != "" {
		_ = ws.Close(websocket.StatusPolicyViolation, failure)
		return
	}

	conn, err := s.openConnection(ctx, cc, cc.kind == protocol.KindAuthenticated)
	if err != nil {
		cc.logger.Error(ctx, "cannot open connection", "error", err)
		_ = ws.Close(websocket.StatusInternalError, "internal error")
		return
	}
	defer conn.close()

	if inv := cc.invitation; inv != nil {
		s.svc.Invites.ClaimerJoined(cc.org, inv.GreeterUserID, inv.Token)
		defer s.svc.Invites.ClaimerLeft(cc.org, inv.GreeterUserID, inv.Token)
	}

	cc.logger.Info(ctx, "websocket connection opened")
	err = s.serveWebsocket(conn, ws)
	switch closedBy := conn.closedBy(); {
	case closedBy != nil:
		cc.logger.Info(ctx, "websocket connection closed by server", "cause", closedBy)
		_ = ws.Close(websocket.StatusPolicyViolation, closedBy.Error())
	case err != nil && !errors.Is(err, errPeerGone):
		cc.logger.Error(ctx, "websocket connection failed", "error", err)
		_ = ws.Close(websocket.StatusInternalError, "internal error")
	default:
		cc.logger.Info(ctx, "websocket connection closed")
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}
}

func writeMsg(ctx context.Context, ws *websocket.Conn, msg any) error {
	raw, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageBinary, raw)
}

// wsHandshake returns the client context, or the handshake result sent to
// a rejected client. err is set for transport or internal failures.
func (s *Server) wsHandshake(ctx context.Context, ws *websocket.Conn) (*clientContext, string, error) {
	challenge := make([]byte, challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, "", err
	}
	versions := legacyVersions()
	supported := make([][2]int, 0, len(versions))
	for _, v := range versions {
		supported = append(supported, [2]int{v.Major, v.Minor})
	}
	err := writeMsg(ctx, ws, &protocol.HandshakeChallengeMsg{
		Handshake:                 protocol.HandshakeChallenge,
		Challenge:                 challenge,
		SupportedAPIVersions:      supported,
		BallparkClientEarlyOffset: timex.BallparkOffset.Seconds(),
		BallparkClientLateOffset:  timex.BallparkOffset.Seconds(),
		BackendTimestamp:          s.opts.Clock.Now(),
	})
	if err != nil {
		return nil, "", err
	}

	_, raw, err := ws.Read(ctx)
	if err != nil {
		return nil, "", err
	}
	var answer protocol.HandshakeAnswerMsg
	result, help := protocol.HandshakeResultBadProtocol, "invalid answer"
	var cc *clientContext
	if msgpack.Unmarshal(raw, &answer) == nil {
		cc, result, help, err = s.checkAnswer(ctx, challenge, &answer)
		if err != nil {
			return nil, "", err
		}
	}

	err = writeMsg(ctx, ws, &protocol.HandshakeResultMsg{Handshake: protocol.HandshakeResult, Result: result, Help: help})
	if err != nil {
		return nil, "", err
	}
	if result != protocol.HandshakeResultOK {
		return nil, result, nil
	}
	return cc, "", nil
}

func (s *Server) checkAnswer(ctx context.Context, challenge []byte, a *protocol.HandshakeAnswerMsg) (*clientContext, string, string, error) {
	if a.Handshake != protocol.HandshakeAnswer {
		return nil, protocol.HandshakeResultBadProtocol, "expected answer", nil
	}
	client := protocol.APIVersion{Major: a.ClientAPIVersion[0], Minor: a.ClientAPIVersion[1]}
	version, err := protocol.Negotiate(client.String(), legacyVersions())
	if err != nil {
		return nil, protocol.HandshakeResultBadProtocol, "unsupported api version", nil
	}

	cc := &clientContext{
		kind:       protocol.ConnectionKind(a.Type),
		apiVersion: version,
		org:        models.OrganizationID(a.OrganizationID),
		connID:     uuid.New(),
	}
	switch cc.kind {
	case protocol.KindAnonymous, protocol.KindInvited, protocol.KindAuthenticated:
	default:
		return nil, protocol.HandshakeResultBadProtocol, "unknown handshake type", nil
	}
	if cc.org.Validate() != nil {
		return nil, protocol.HandshakeResultBadIdentity, "", nil
	}

	org, err := s.svc.Organizations.Get(ctx, cc.org)
	switch {
	case errors.Is(err, services.ErrNotFound):
		if cc.kind != protocol.KindAnonymous || !s.opts.SpontaneousBootstrap {
			return nil, protocol.HandshakeResultBadIdentity, "", nil
		}
	case err != nil:
		return nil, "", "", err
	case org.IsExpired:
		return nil, protocol.HandshakeResultOrganizationExpired, "", nil
	}
	cc.organization = org

	switch cc.kind {
	case protocol.KindAuthenticated:
		if !org.IsBootstrapped() {
			return nil, protocol.HandshakeResultBadIdentity, "", nil
		}
		if !bytes.Equal(a.RootVerifyKey, org.RootVerifyKey) {
			return nil, protocol.HandshakeResultRVKMismatch, "", nil
		}
		deviceID := models.DeviceID(a.DeviceID)
		if deviceID.Validate() != nil {
			return nil, protocol.HandshakeResultBadIdentity, "", nil
		}
		caller, err := s.svc.Users.Authenticate(ctx, cc.org, deviceID)
		switch {
		case errors.Is(err, services.ErrNotFound):
			return nil, protocol.HandshakeResultBadIdentity, "", nil
		case errors.Is(err, services.ErrRevokedUser):
			return nil, protocol.HandshakeResultRevokedDevice, "", nil
		case err != nil:
			return nil, "", "", err
		}
		if !ed25519.Verify(caller.VerifyKey, challenge, a.Answer) {
			return nil, protocol.HandshakeResultBadIdentity, "", nil
		}
		cc.caller = caller

	case protocol.KindInvited:
		token, err := models.ParseInvitationToken(a.Token)
		if err != nil {
			return nil, protocol.HandshakeResultBadInvitation, "", nil
		}
		inv, err := s.svc.Invites.Claimer(ctx, cc.org, token)
		switch {
		case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrAlreadyDeleted):
			return nil, protocol.HandshakeResultBadInvitation, "", nil
		case err != nil:
			return nil, "", "", err
		}
		if a.InvitationType != nil && *a.InvitationType != string(inv.Type) {
			return nil, protocol.HandshakeResultBadInvitation, "", nil
		}
		cc.invitation = inv
	}

	cc.logger = s.logger.With(
		"conn_id", cc.connID.String(),
		"organization_id", string(cc.org),
		"kind", string(cc.kind),
		"api_version", version.String(),
		"transport", "websocket",
	)
	if cc.caller != nil {
		cc.logger = cc.logger.With("device_id", string(cc.caller.DeviceID))
	}
	return cc, protocol.HandshakeResultOK, "", nil
}

type wsMessage struct {
	raw []byte
	err error
}

// cancelledByNextCommand lists the commands that may block for long. A new
// message from the client cancels them.
func cancelledByNextCommand(req protocol.Req) bool {
	switch req := req.(type) {
	case *protocol.EventsListenReq:
		return req.Wait
	case *protocol.Invite1GreeterWaitPeerReq, *protocol.Invite2aGreeterGetHashedNonceReq,
		*protocol.Invite2bGreeterSendNonceReq, *protocol.Invite3aGreeterWaitPeerTrustReq,
		*protocol.Invite3bGreeterSignifyTrustReq, *protocol.Invite4GreeterCommunicateReq,
		*protocol.Invite1ClaimerWaitPeerReq, *protocol.Invite2aClaimerSendHashedNonceReq,
		*protocol.Invite2bClaimerSendNonceReq, *protocol.Invite3aClaimerSignifyTrustReq,
		*protocol.Invite3bClaimerWaitPeerTrustReq, *protocol.Invite4ClaimerCommunicateReq:
		return true
	}
	return false
}

func (s *Server) serveWebsocket(conn *connection, ws *websocket.Conn) error {
	ctx := conn.ctx
	cc := conn.cc

	incoming := make(chan wsMessage)
	go func() {
		defer close(incoming)
		for {
			_, raw, err := ws.Read(ctx)
			select {
			case incoming <- wsMessage{raw: raw, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var pending []byte
	for {
		raw := pending
		pending = nil
		if raw == nil {
			select {
			case msg, ok := <-incoming:
				if !ok || msg.err != nil {
					return errPeerGone
				}
				raw = msg.raw
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var rep any
		req, err := protocol.LoadReq(cc.kind, cc.apiVersion, raw)
		switch {
		case errors.Is(err, protocol.ErrUnknownCommand):
			rep = protocol.Error(protocol.StatusUnknownCommand, "")
		case err != nil:
			rep = protocol.Error(protocol.StatusInvalidMsgFormat, "")
		case cancelledByNextCommand(req):
			rep, pending, err = s.runUntilNextCommand(conn, req, incoming)
		default:
			rep, err = s.safeDispatch(ctx, conn, req)
		}
		if err != nil {
			return err
		}
		if rep == nil {
			// Cancelled by the next command before completing.
			continue
		}
		if err := writeMsg(ctx, ws, rep); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
}

// runUntilNextCommand runs req until it completes or the client sends a new
// message. The new message is returned to be processed next. req is then
// cancelled and gets no reply, unless it completed in the meantime: its
// reply still goes out so an event already taken off the queue is not lost.
func (s *Server) runUntilNextCommand(conn *connection, req protocol.Req, incoming <-chan wsMessage) (any, []byte, error) {
	ctx, cancel := context.WithCancel(conn.ctx)
	defer cancel()

	type result struct {
		rep any
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := s.safeDispatch(ctx, conn, req)
		done <- result{rep, err}
	}()

	select {
	case res := <-done:
		return res.rep, nil, res.err
	case msg, ok := <-incoming:
		cancel()
		res := <-done
		if !ok || msg.err != nil {
			return nil, nil, errPeerGone
		}
		if errors.Is(res.err, errPanic) {
			return nil, nil, res.err
		}
		if res.err != nil || res.rep == nil {
			conn.cc.logger.Debug(conn.ctx, "command cancelled by the next one", "cmd", req.Cmd())
			return nil, msg.raw, nil
		}
		return res.rep, msg.raw, nil
	}
}
