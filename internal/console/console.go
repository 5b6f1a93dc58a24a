// Package console exposes the agent's local control surface: session
// status, a live MJPEG preview of the camera, and the buttons a
// front panel would offer (manual gesture fallback, registration,
// guest access, restart).
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/new-era-ai/facekiosk/internal/logger"
	"github.com/new-era-ai/facekiosk/internal/session"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

// Agent is the controller surface the console drives.
type Agent interface {
	Snapshot() session.Snapshot
	Preview() []byte
	ManualAffirm() error
	ManualDecline() error
	CompleteRegistration(name, email, password string) (*types.User, error)
	GuestAccess() error
	Back() error
	OpenHeadPose() error
	Restart()
}

// Config holds console settings.
type Config struct {
	StatusInterval time.Duration
	MJPEGInterval  time.Duration
	// Health probes the classifier backend, nil skips the probe.
	Health func(ctx context.Context) error
}

// DefaultConfig returns the console defaults.
func DefaultConfig() Config {
	return Config{
		StatusInterval: time.Second,
		MJPEGInterval:  100 * time.Millisecond,
	}
}

// Server serves the control endpoints.
type Server struct {
	cfg   Config
	agent Agent
}

// NewServer returns a configured console server.
func NewServer(cfg Config, agent Agent) *Server {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}
	if cfg.MJPEGInterval <= 0 {
		cfg.MJPEGInterval = DefaultConfig().MJPEGInterval
	}
	return &Server{cfg: cfg, agent: agent}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/status/stream", s.handleStatusStream).Methods(http.MethodGet)
	r.HandleFunc("/api/gesture/affirm", s.handleAffirm).Methods(http.MethodPost)
	r.HandleFunc("/api/gesture/decline", s.handleDecline).Methods(http.MethodPost)
	r.HandleFunc("/api/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/guest", s.handleGuest).Methods(http.MethodPost)
	r.HandleFunc("/api/back", s.handleBack).Methods(http.MethodPost)
	r.HandleFunc("/api/restart", s.handleRestart).Methods(http.MethodPost)
	r.HandleFunc("/api/headpose", s.handleHeadPose).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusPayload(s.agent.Snapshot()))
}

func (s *Server) handleAffirm(w http.ResponseWriter, r *http.Request) {
	s.action(w, s.agent.ManualAffirm())
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.action(w, s.agent.ManualDecline())
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	s.action(w, s.agent.GuestAccess())
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.action(w, s.agent.Back())
}

func (s *Server) handleHeadPose(w http.ResponseWriter, r *http.Request) {
	s.action(w, s.agent.OpenHeadPose())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.agent.Restart()
	s.action(w, nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid registration data"}, http.StatusBadRequest)
		return
	}

	user, err := s.agent.CompleteRegistration(body.Name, body.Email, body.Password)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{
			"success": false,
			"error":   err.Error(),
		}, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"success": true,
		"user":    user,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"view":      s.agent.Snapshot().View,
		"timestamp": float64(time.Now().Unix()),
	}
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.cfg.Health(ctx); err != nil {
			payload["backend"] = "unreachable"
			logger.Warn("Console", "Backend health probe failed: %v", err)
		} else {
			payload["backend"] = "ok"
		}
	}
	writeJSON(w, payload)
}

func (s *Server) action(w http.ResponseWriter, err error) {
	if err != nil {
		writeJSONWithStatus(w, map[string]any{
			"success": false,
			"error":   err.Error(),
		}, http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{
		"success": true,
		"state":   statusPayload(s.agent.Snapshot()),
	})
}

func statusPayload(snap session.Snapshot) map[string]any {
	payload := map[string]any{
		"view":       snap.View,
		"status":     snap.Status,
		"poll_state": snap.PollState,
		"timestamp":  float64(time.Now().Unix()),
	}
	if snap.Tier != "" {
		payload["tier"] = snap.Tier
	}
	if snap.User != nil {
		payload["user"] = map[string]any{
			"name":        snap.User.Name,
			"email":       snap.User.Email,
			"auth_method": string(snap.User.AuthMethod),
		}
	}
	return payload
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
