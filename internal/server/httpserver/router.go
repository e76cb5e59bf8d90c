package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/anonymous/{organization_id}", s.handleAnonymous)
	r.Post("/invited/{organization_id}", s.handleInvited)
	r.Post("/authenticated/{organization_id}", s.handleAuthenticated)
	r.Get("/authenticated/{organization_id}/events", s.handleEvents)
	r.Get("/ws", s.handleWebsocket)

	r.Mount("/administration", s.administrationRoutes())

	return r
}

// logRequests logs every request once it is served. Long-lived streams are
// logged when they end.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug(r.Context(), "request served",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
