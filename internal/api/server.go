// Package api is the thin REST surface over the session core: request
// parsing, envelopes and auth only, with every operation a direct
// pass-through to the lifecycle manager or recovery supervisor.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wagate/backend/internal/engine"
	"github.com/wagate/backend/internal/logging"
	"github.com/wagate/backend/internal/profile"
	"github.com/wagate/backend/internal/session"
)

// Lifecycle is the slice of the manager the API consumes.
type Lifecycle interface {
	Acquire(ctx context.Context, name string) (engine.Client, error)
	SendText(ctx context.Context, name, to, message string) session.SendResult
	ListChats(ctx context.Context, name string, filter engine.ChatFilter) session.ChatsResult
	ConnectionState(ctx context.Context, name string) session.StateResult
	AuthState(name string) session.AuthResult
	WID(ctx context.Context, name string) session.WIDResult
	List() []session.Info
}

// Remover is the slice of the supervisor the API consumes.
type Remover interface {
	DeleteSession(ctx context.Context, name string) (session.DeleteResult, error)
}

// HealthReporter provides the health endpoint payload.
type HealthReporter interface {
	Snapshot() (interface{}, error)
}

type Server struct {
	lifecycle Lifecycle
	remover   Remover
	health    HealthReporter
	wsHandler http.Handler
	authToken string
	log       zerolog.Logger
}

func NewServer(lifecycle Lifecycle, remover Remover, health HealthReporter, wsHandler http.Handler, authToken string) *Server {
	return &Server{
		lifecycle: lifecycle,
		remover:   remover,
		health:    health,
		wsHandler: wsHandler,
		authToken: authToken,
		log:       logging.WithComponent("api"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.auth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{name}", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/messages", s.handleSendText)
			r.Get("/chats", s.handleListChats)
			r.Get("/state", s.handleConnectionState)
			r.Get("/auth", s.handleAuthState)
			r.Get("/wid", s.handleWID)
		})
	})

	if s.wsHandler != nil {
		r.Get("/ws", s.wsHandler.ServeHTTP)
	}

	return r
}

// auth accepts the token via Bearer header, dedicated header, or query
// parameter (the latter for websocket clients that cannot set headers).
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Query().Get("token") == s.authToken ||
			r.Header.Get("X-Wagate-Token") == s.authToken {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

func sessionName(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// handleCreateSession initializes (or reconnects) a session. QR codes and
// status transitions stream to websocket subscribers of the session, not
// through this response.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	name, err := sessionName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := s.lifecycle.Acquire(r.Context(), name)
	if err != nil {
		var opErr *session.OpError
		if errors.As(err, &opErr) {
			writeError(w, http.StatusBadGateway, opErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeData(w, http.StatusOK, map[string]interface{}{
		"session":         name,
		"connected":       client.IsConnected(),
		"isAuthenticated": client.IsAuthenticated(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	name, err := sessionName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.remover.DeleteSession(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, result)
}

type sendTextRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	name, err := sessionName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req sendTextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.To == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "to and message are required")
		return
	}

	result := s.lifecycle.SendText(r.Context(), name, req.To, req.Message)
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	name, err := sessionName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := engine.ChatFilter{
		OnlyGroups: r.URL.Query().Get("only_groups") == "true",
	}
	result := s.lifecycle.ListChats(r.Context(), name, filter)
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleConnectionState(w http.ResponseWriter, r *http.Request) {
	name, err := sessionName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeData(w, http.StatusOK, s.lifecycle.ConnectionState(r.Context(), name))
}

func (s *Server) handleAuthState(w http.ResponseWriter, r *http.Request) {
	name, err := sessionName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeData(w, http.StatusOK, s.lifecycle.AuthState(name))
}

func (s *Server) handleWID(w http.ResponseWriter, r *http.Request) {
	name, err := sessionName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeData(w, http.StatusOK, s.lifecycle.WID(r.Context(), name))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.lifecycle.List())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeError(w, http.StatusServiceUnavailable, "health not available")
		return
	}
	snapshot, err := s.health.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, snapshot)
}
