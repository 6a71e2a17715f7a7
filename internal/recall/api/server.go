package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler builds the chi mux with all routes wired.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/", s.handleInfo())
	r.Get("/health", s.handleHealth())
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.config.Auth.IsConfigured() {
			r.Use(authMiddleware(s.config.Auth, s.logger))
		}
		r.Route("/messages", func(r chi.Router) {
			r.Post("/", s.handleCreate())
			r.Get("/", s.handleList())
			r.Get("/{id}", s.handleGet())
			r.Delete("/{id}", s.handleDelete())
		})
		r.Get("/stats", s.handleStats())
		r.Get("/stats/", s.handleStats())
	})

	return r
}

// countRequests records every request by route pattern and status.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordAPIRequest(route, status)
	})
}
