// Package http exposes the session coordinator over a JSON API.
//
// The caller's authenticated identity arrives in the X-Identity header; auth
// itself is handled upstream at the gateway.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/communet/sessiond/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const identityHeader = "X-Identity"

// Coordinator defines the session lifecycle operations the API exposes.
type Coordinator interface {
	CreateOrRejoin(ctx context.Context, therapistIdentity, clientIdentity string) (domain.SessionToken, error)
	JoinAsClient(ctx context.Context, clientIdentity string) (domain.SessionToken, error)
	Teardown(ctx context.Context, therapistIdentity string) error
	HandleWebhook(ctx context.Context, body []byte, authHeader string)
}

// Pinger reports backing-store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the API dependencies.
type Server struct {
	coordinator Coordinator
	health      Pinger
	logger      *slog.Logger
}

// NewHandler builds the router. Passing a prometheus Gatherer mounts /metrics.
func NewHandler(coordinator Coordinator, health Pinger, logger *slog.Logger, gatherer prometheus.Gatherer) http.Handler {
	s := &Server{
		coordinator: coordinator,
		health:      health,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/sessions", s.createSession)
	r.Post("/v1/sessions/join", s.joinSession)
	r.Delete("/v1/sessions", s.teardownSession)
	r.Post("/v1/webhooks/livekit", s.webhook)
	r.Get("/healthz", s.healthz)

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

type createRequest struct {
	Client string `json:"client"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	therapist := r.Header.Get(identityHeader)
	if therapist == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.coordinator.CreateOrRejoin(r.Context(), therapist, body.Client)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, token)
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	client := r.Header.Get(identityHeader)
	if client == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	token, err := s.coordinator.JoinAsClient(r.Context(), client)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, token)
}

func (s *Server) teardownSession(w http.ResponseWriter, r *http.Request) {
	therapist := r.Header.Get(identityHeader)
	if therapist == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	if err := s.coordinator.Teardown(r.Context(), therapist); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Verification failures are handled (logged and dropped) inside the
	// coordinator; the provider always gets a 200 so it stops redelivering.
	s.coordinator.HandleWebhook(r.Context(), body, r.Header.Get("Authorization"))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the domain error taxonomy to status codes: caller errors are
// 404s, inconsistencies are 500s, dependency failures are 502s.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrParticipantNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrChatRoomIndexMissing), errors.Is(err, domain.ErrSessionRecordIncomplete):
		s.logger.Error("session state inconsistency", "err", err, "path", r.URL.Path)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session state inconsistency"})
	default:
		s.logger.Error("dependency failure", "err", err, "path", r.URL.Path)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream dependency failure"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}
