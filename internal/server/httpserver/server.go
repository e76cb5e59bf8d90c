// Package httpserver exposes the services over HTTP: the msgpack RPC
// endpoints, the SSE event stream, the legacy WebSocket transport and the
// JSON administration API.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/Scille/parsec-cloud-sub009/internal/timex"
)

// maxBodySize bounds RPC bodies. Blocks are the largest payloads.
const maxBodySize = 64 << 20

type Options struct {
	AdministrationToken string
	// SSEKeepalive is the idle delay before a keepalive comment.
	SSEKeepalive time.Duration
	// SpontaneousBootstrap lets anonymous requests target unknown
	// organizations, for organization_bootstrap only.
	SpontaneousBootstrap bool
	Clock                timex.Clock
}

type Server struct {
	address string
	opts    Options
	svc     *services.Services
	bus     *events.Bus
	logger  logging.Logger
	handler http.Handler
}

func New(address string, opts Options, svc *services.Services, bus *events.Bus, l logging.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = timex.Real()
	}
	if opts.SSEKeepalive <= 0 {
		opts.SSEKeepalive = 30 * time.Second
	}
	if l == nil {
		l = logging.Nop()
	}
	s := &Server{
		address: address,
		opts:    opts,
		svc:     svc,
		bus:     bus,
		logger:  l.With("module", "http_server"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "graceful shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
