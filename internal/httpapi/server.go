// ABOUTME: HTTP surface for the conversation core: sessions, sends, feedback, invites
// ABOUTME: Bearer-token auth resolves the identity every operation is scoped to

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/groups"
	"github.com/parley-chat/parley/internal/store"
)

// AgentDirectory defines what the server needs for agent listings and
// per-owner usage aggregates.
type AgentDirectory interface {
	ListAgents(ctx context.Context, owner string) ([]*store.Agent, error)
	CountMessagesByDay(ctx context.Context, owner string, days int) ([]store.UsageBucket, error)
}

// Server wires the conversation manager, group service, and store into
// an http.Handler.
type Server struct {
	manager  *conversation.Manager
	invites  *groups.Service
	agents   AgentDirectory
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// New creates a Server. Pass nil logger for default.
func New(manager *conversation.Manager, invites *groups.Service, agents AgentDirectory, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager:  manager,
		invites:  invites,
		agents:   agents,
		verifier: verifier,
		logger:   logger.With("component", "httpapi"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/agents", s.withIdentity(s.handleListAgents))
	mux.HandleFunc("GET /api/usage", s.withIdentity(s.handleUsage))
	mux.HandleFunc("POST /api/sessions", s.withIdentity(s.handleOpenSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.withIdentity(s.handleCloseSession))
	mux.HandleFunc("POST /api/sessions/{id}/send", s.withIdentity(s.handleSend))
	mux.HandleFunc("GET /api/sessions/{id}/suggest", s.withIdentity(s.handleSuggest))
	mux.HandleFunc("POST /api/sessions/{id}/chain", s.withIdentity(s.handleEnableChain))
	mux.HandleFunc("DELETE /api/sessions/{id}/chain", s.withIdentity(s.handleDisableChain))
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.withIdentity(s.handleTranscript))
	mux.HandleFunc("GET /api/sessions/{id}/transcript.html", s.withIdentity(s.handleTranscriptHTML))
	mux.HandleFunc("GET /api/sessions/{id}/events", s.withIdentity(s.handleEvents))
	mux.HandleFunc("POST /api/feedback", s.withIdentity(s.handleFeedback))
	mux.HandleFunc("GET /api/invites", s.withIdentity(s.handleListInvites))
	mux.HandleFunc("POST /api/invites/{id}/accept", s.withIdentity(s.handleAcceptInvite))
	mux.HandleFunc("POST /api/invites/{id}/decline", s.withIdentity(s.handleDeclineInvite))

	return mux
}

// withIdentity resolves the bearer token into an identity on the request
// context. A missing or invalid token does not reject the request here:
// reads degrade to empty results and mutations fail with ErrNoIdentity,
// per the degrade-to-read-only contract.
func (s *Server) withIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && s.verifier != nil {
			userID, err := s.verifier.Verify(token)
			if err != nil {
				s.logger.Debug("token rejected", "error", err)
			} else {
				ctx := auth.WithIdentity(r.Context(), &auth.Identity{UserID: userID})
				r = r.WithContext(ctx)
			}
		}
		next(w, r)
	}
}

// session resolves the path's session ID to a live session owned by the
// caller, or writes the error response itself and returns nil.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *conversation.Session {
	sess, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil
	}
	userID, err := auth.UserID(r.Context())
	if err != nil || sess.Owner != userID {
		writeError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return sess
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits a user-facing notice, never a raw technical error.
func writeError(w http.ResponseWriter, status int, notice string) {
	writeJSON(w, status, map[string]string{"error": notice})
}
