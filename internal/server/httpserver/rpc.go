package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
)

func (s *Server) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	s.serveRPC(w, r, protocol.KindAnonymous)
}

func (s *Server) handleInvited(w http.ResponseWriter, r *http.Request) {
	s.serveRPC(w, r, protocol.KindInvited)
}

func (s *Server) handleAuthenticated(w http.ResponseWriter, r *http.Request) {
	s.serveRPC(w, r, protocol.KindAuthenticated)
}

// serveRPC runs one msgpack command. Handshake failures are plain HTTP
// errors; once the handshake passed, command failures are msgpack replies
// with a 200 status.
func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request, kind protocol.ConnectionKind) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	cc, herr := s.handshake(r, kind, body, false)
	if herr != nil {
		s.writeHandshakeError(w, r, herr)
		return
	}
	w.Header().Set(common.HeaderAPIVersion, cc.apiVersion.String())

	req, err := protocol.LoadReq(kind, cc.apiVersion, body)
	switch {
	case errors.Is(err, protocol.ErrUnknownCommand):
		s.writeRep(w, r, cc, protocol.Error(protocol.StatusUnknownCommand, ""))
		return
	case err != nil:
		http.Error(w, "invalid msgpack body", http.StatusUnsupportedMediaType)
		return
	}
	if _, bootstrap := req.(*protocol.OrganizationBootstrapReq); cc.organization == nil && !bootstrap {
		http.Error(w, "organization not found", http.StatusNotFound)
		return
	}

	conn, err := s.openConnection(r.Context(), cc, false)
	if err != nil {
		cc.logger.Error(r.Context(), "cannot open connection", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer conn.close()

	if inv := cc.invitation; inv != nil {
		s.svc.Invites.ClaimerJoined(cc.org, inv.GreeterUserID, inv.Token)
		defer s.svc.Invites.ClaimerLeft(cc.org, inv.GreeterUserID, inv.Token)
	}

	cc.logger.Debug(conn.ctx, "command", "cmd", req.Cmd())
	rep, err := s.dispatch(conn.ctx, conn, req)
	if err != nil {
		if closedBy := conn.closedBy(); closedBy != nil {
			http.Error(w, closedBy.Error(), httpStatusOf(closedBy))
			return
		}
		if r.Context().Err() != nil {
			// Client went away.
			return
		}
		cc.logger.Error(r.Context(), "command failed", "cmd", req.Cmd(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeRep(w, r, cc, rep)
}

func (s *Server) writeRep(w http.ResponseWriter, r *http.Request, cc *clientContext, rep any) {
	raw, err := protocol.DumpRep(rep)
	if err != nil {
		cc.logger.Error(r.Context(), "cannot encode reply", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", common.ContentTypeMsgpack)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
