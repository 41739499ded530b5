// ABOUTME: Request handlers for sessions, sends, suggestions, chain, feedback, invites
// ABOUTME: Validation errors become 4xx notices; pipeline failures live in the transcript

package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/parley-chat/parley/internal/attach"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/feedback"
	"github.com/parley-chat/parley/internal/groups"
	"github.com/parley-chat/parley/internal/store"
)

type agentView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Specialties []string `json:"specialties"`
	IsActive    bool     `json:"is_active"`
	Color       string   `json:"color,omitempty"`
	Icon        string   `json:"icon,omitempty"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		// Degrade to an empty list for anonymous callers
		writeJSON(w, http.StatusOK, []agentView{})
		return
	}
	agents, err := s.agents.ListAgents(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing agents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load agents")
		return
	}
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, agentView{
			ID:          a.ID,
			Name:        a.Name,
			Specialties: a.Specialties,
			IsActive:    a.IsActive,
			Color:       a.Color,
			Icon:        a.Icon,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleUsage returns per-day question counts across the caller's
// agents, for the usage chart. Window defaults to the trailing week.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, []store.UsageBucket{})
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = parsed
	}

	buckets, err := s.agents.CountMessagesByDay(r.Context(), userID, days)
	if err != nil {
		s.logger.Error("usage aggregation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load usage")
		return
	}
	if buckets == nil {
		buckets = []store.UsageBucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

type openSessionRequest struct {
	AgentID string `json:"agent_id"`
}

type openSessionResponse struct {
	SessionID string    `json:"session_id"`
	Agent     agentView `json:"agent"`
	Greeting  string    `json:"greeting"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id required")
		return
	}

	sess, err := s.manager.Open(r.Context(), req.AgentID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNoIdentity):
			writeError(w, http.StatusUnauthorized, "sign in to start a chat")
		case errors.Is(err, conversation.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, "agent not found")
		default:
			s.logger.Error("session open failed", "agent_id", req.AgentID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not open session")
		}
		return
	}

	agent := sess.Agent()
	greeting := ""
	if transcript := sess.Transcript(); len(transcript) > 0 {
		greeting = transcript[0].Message.Text
	}
	writeJSON(w, http.StatusCreated, openSessionResponse{
		SessionID: sess.ID,
		Agent: agentView{
			ID:          agent.ID,
			Name:        agent.Name,
			Specialties: agent.Specialties,
			IsActive:    agent.IsActive,
			Color:       agent.Color,
			Icon:        agent.Icon,
		},
		Greeting: greeting,
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if sess := s.session(w, r); sess != nil {
		s.manager.Close(sess.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

type sendRequest struct {
	Text string `json:"text"`
	File *struct {
		Name     string `json:"name"`
		MimeType string `json:"mime_type"`
		Content  string `json:"content"` // base64
	} `json:"file,omitempty"`
	// Wait makes the handler block until the bot reply resolves and
	// include it in the response. Without it the reply arrives on the
	// events stream.
	Wait bool `json:"wait,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var file *attach.File
	if req.File != nil {
		content, err := base64.StdEncoding.DecodeString(req.File.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid file encoding")
			return
		}
		file = &attach.File{
			Name:     req.File.Name,
			MimeType: req.File.MimeType,
			Size:     int64(len(content)),
			Content:  strings.NewReader(string(content)),
		}
	}

	replies, err := sess.Send(r.Context(), req.Text, file)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrEmptySend):
			writeError(w, http.StatusBadRequest, "nothing to send")
		case errors.Is(err, attach.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large (max 1MB)")
		case errors.Is(err, conversation.ErrSessionClosed):
			writeError(w, http.StatusGone, "session closed")
		default:
			s.logger.Error("send failed", "session_id", sess.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not send message")
		}
		return
	}

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	reply, ok := <-replies
	if !ok {
		// Session closed while the dispatch was in flight
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}
	writeJSON(w, http.StatusOK, entryView(reply))
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	suggestions, err := sess.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error("suggest failed", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not compute suggestions")
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

type chainRequest struct {
	SecondaryAgentID string `json:"secondary_agent_id"`
}

func (s *Server) handleEnableChain(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req chainRequest
	if err := decodeJSON(r, &req); err != nil || req.SecondaryAgentID == "" {
		writeError(w, http.StatusBadRequest, "secondary_agent_id required")
		return
	}
	if err := sess.EnableChain(r.Context(), req.SecondaryAgentID); err != nil {
		if errors.Is(err, conversation.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		s.logger.Error("enable chain failed", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not enable chaining")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisableChain(w http.ResponseWriter, r *http.Request) {
	if sess := s.session(w, r); sess != nil {
		sess.DisableChain()
		w.WriteHeader(http.StatusNoContent)
	}
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Satisfied bool   `json:"satisfied"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil || req.MessageID == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id and message_id required")
		return
	}

	sess, ok := s.manager.Get(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	userID, err := auth.UserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "sign in to rate replies")
		return
	}
	if sess.Owner != userID {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := sess.SubmitFeedback(r.Context(), req.MessageID, req.Satisfied); err != nil {
		switch {
		case errors.Is(err, feedback.ErrAlreadyRated):
			writeError(w, http.StatusConflict, "already rated")
		case errors.Is(err, feedback.ErrNotEligible):
			writeError(w, http.StatusBadRequest, "message cannot be rated")
		default:
			s.logger.Error("feedback failed", "message_id", req.MessageID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not record feedback")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteView struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	Sender  string `json:"sender"`
	Status  string `json:"status"`
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := s.invites.ListPending(r.Context())
	if err != nil {
		s.logger.Error("listing invites failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load invites")
		return
	}
	views := make([]inviteView, 0, len(invites))
	for _, inv := range invites {
		views = append(views, inviteView{
			ID:      inv.ID,
			GroupID: inv.GroupID,
			Sender:  inv.Sender,
			Status:  inv.Status,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	s.handleInviteAction(w, r, s.invites.Accept)
}

func (s *Server) handleDeclineInvite(w http.ResponseWriter, r *http.Request) {
	s.handleInviteAction(w, r, s.invites.Decline)
}

func (s *Server) handleInviteAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id string) error) {
	err := action(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrNoIdentity):
		writeError(w, http.StatusUnauthorized, "sign in to manage invites")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, groups.ErrNotRecipient):
		writeError(w, http.StatusNotFound, "invite not found")
	case errors.Is(err, groups.ErrNotPending):
		writeError(w, http.StatusConflict, "invite already handled")
	default:
		s.logger.Error("invite action failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not update invite")
	}
}
