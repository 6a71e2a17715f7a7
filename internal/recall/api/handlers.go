package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/sandy/internal/recall"
)

const maxBodySize = 1 << 20

// detail mirrors the error envelope clients already expect.
type detail struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detail{Detail: msg})
}

// writeError maps store errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recall.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Message not found")
	case errors.Is(err, recall.ErrInvalid):
		writeDetail(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("recall api: store failure", "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":        "recall",
			"description": "Chat message archive with filtered listing and full-text search",
			"endpoints": map[string]string{
				"POST /messages/":       "Archive a message",
				"GET /messages/":        "List messages (limit, offset, author_id, server_id, channel_id, author, server, channel, tag, q, since, until, hours_ago, minutes_ago)",
				"GET /messages/{id}":    "Fetch one message",
				"DELETE /messages/{id}": "Delete one message",
				"GET /stats/":           "Archive totals",
				"GET /health":           "Liveness",
				"GET /metrics":          "Prometheus metrics",
			},
		})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "healthy",
			"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		})
	}
}

func (s *Server) handleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m recall.Message
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err := dec.Decode(&m); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		m.ID = 0

		created, err := s.store.Create(r.Context(), m)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := recall.ParseQuery(r.URL.Query())
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		msgs, err := s.store.List(r.Context(), q)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func (s *Server) handleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		m, err := s.store.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (s *Server) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := s.store.Delete(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.store.Stats(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "message id must be an integer")
		return 0, false
	}
	return id, true
}
