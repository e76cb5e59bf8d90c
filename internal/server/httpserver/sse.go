package httpserver

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
)

// handleEvents streams the events of an authenticated device as
// server-sent events. Each event is a base64 msgpack EventRep whose id can
// be sent back in Last-Event-Id to resume after a disconnection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	cc, herr := s.handshake(r, protocol.KindAuthenticated, nil, true)
	if herr != nil {
		s.writeHandshakeError(w, r, herr)
		return
	}
	if cc.apiVersion.Major < protocol.FirstSSEMajor {
		s.writeHandshakeError(w, r, reject(http.StatusUnprocessableEntity, "events stream requires api 4"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var lastEventID *uint64
	if raw := r.Header.Get(common.HeaderLastEventID); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "bad last event id", http.StatusBadRequest)
			return
		}
		lastEventID = &id
	}

	conn, err := s.openConnection(r.Context(), cc, true)
	if err != nil {
		cc.logger.Error(r.Context(), "cannot open event stream", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer conn.close()

	h := w.Header()
	h.Set("Content-Type", common.ContentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	h.Set(common.HeaderAPIVersion, cc.apiVersion.String())
	w.WriteHeader(http.StatusOK)
	if err := writeKeepalive(w); err != nil {
		return
	}
	flusher.Flush()

	cc.logger.Info(conn.ctx, "event stream opened")
	defer func() {
		cc.logger.Info(r.Context(), "event stream closed", "cause", conn.closedBy())
	}()

	var sent uint64
	if lastEventID != nil {
		missed, ok := s.bus.Since(cc.org, *lastEventID)
		if !ok {
			if _, err := io.WriteString(w, "event:missed_events\n\n"); err != nil {
				return
			}
		}
		for _, env := range missed {
			sent = env.ID
			if !conn.visible(env.Event) {
				continue
			}
			if err := writeEvent(w, env); err != nil {
				return
			}
		}
		flusher.Flush()
	}

	keepalive := time.NewTimer(s.opts.SSEKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-conn.ctx.Done():
			return
		case env := <-conn.events:
			if env.ID <= sent {
				// Already replayed from the history.
				continue
			}
			if err := writeEvent(w, env); err != nil {
				return
			}
		case <-keepalive.C:
			if err := writeKeepalive(w); err != nil {
				return
			}
		}
		flusher.Flush()
		keepalive.Reset(s.opts.SSEKeepalive)
	}
}

func writeKeepalive(w io.Writer) error {
	_, err := io.WriteString(w, ":keepalive\n\n")
	return err
}

func writeEvent(w io.Writer, env events.Envelope) error {
	raw, err := protocol.DumpRep(eventRep(env.Event))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data:%s\nid:%d\n\n", base64.StdEncoding.EncodeToString(raw), env.ID)
	return err
}
