package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/noahxzhu/discord-scheduler/internal/interval"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/queue"
)

type Server struct {
	queues map[string]*queue.Queue
	router *http.ServeMux
	token  string
	now    func() time.Time
}

// NewServer exposes the given queues. An empty token disables authentication.
func NewServer(token string, queues ...*queue.Queue) *Server {
	s := &Server{
		queues: make(map[string]*queue.Queue, len(queues)),
		router: http.NewServeMux(),
		token:  token,
		now:    time.Now,
	}
	for _, q := range queues {
		s.queues[q.Name()] = q
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	s.router.HandleFunc("GET /api/queues", s.authMiddleware(s.handleQueues))
	s.router.HandleFunc("GET /api/queues/{queue}/deliveries", s.authMiddleware(s.handleList))
	s.router.HandleFunc("POST /api/queues/{queue}/deliveries", s.authMiddleware(s.handleSchedule))
	s.router.HandleFunc("DELETE /api/queues/{queue}/deliveries/{id}", s.authMiddleware(s.handleCancel))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Middleware
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queueInfo struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"`
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	out := make([]queueInfo, 0, len(s.queues))
	for name, q := range s.queues {
		out = append(out, queueInfo{Name: name, Pending: q.Len()})
	}
	slices.SortFunc(out, func(a, b queueInfo) int { return strings.Compare(a.Name, b.Name) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) queue(w http.ResponseWriter, r *http.Request) (*queue.Queue, bool) {
	q, ok := s.queues[r.PathValue("queue")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown queue "+r.PathValue("queue"))
	}
	return q, ok
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q, ok := s.queue(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q.List())
}

// ScheduleRequest is the body of POST /api/queues/{queue}/deliveries. Exactly
// one of DueAt and In must be set.
type ScheduleRequest struct {
	Destination model.Destination `json:"destination"`
	Payload     model.Payload     `json:"payload"`
	DueAt       *time.Time        `json:"due_at,omitempty"`
	In          string            `json:"in,omitempty"`     // 1d2h30m
	Repeat      string            `json:"repeat,omitempty"` // hourly, daily, weekly or 1d2h30m
	CreatedBy   string            `json:"created_by,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	q, ok := s.queue(w, r)
	if !ok {
		return
	}

	var req ScheduleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	var due time.Time
	switch {
	case req.DueAt != nil && req.In != "":
		writeError(w, http.StatusBadRequest, "set either due_at or in, not both")
		return
	case req.DueAt != nil:
		due = *req.DueAt
	case req.In != "":
		d, err := interval.Parse(req.In)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		due = s.now().Add(d)
	default:
		writeError(w, http.StatusBadRequest, "due_at or in is required")
		return
	}

	var repeat time.Duration
	if req.Repeat != "" {
		d, err := interval.ParseRepeat(req.Repeat)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		repeat = d
	}

	d, err := q.Schedule(req.Destination, req.Payload, due, repeat, req.CreatedBy)
	switch {
	case errors.Is(err, model.ErrInvalidDelivery), errors.Is(err, interval.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Failed to schedule delivery", "queue", q.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	q, ok := s.queue(w, r)
	if !ok {
		return
	}

	id, err := q.Resolve(r.PathValue("id"))
	if err == nil {
		_, err = q.Cancel(id)
	}
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrAmbiguous):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		slog.Error("Failed to cancel delivery", "queue", q.Name(), "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
