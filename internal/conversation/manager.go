// ABOUTME: Manager opens, tracks, and tears down chat sessions
// ABOUTME: Wires the store, backend dispatcher, and notifier into each Session

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/backend"
	"github.com/parley-chat/parley/internal/chain"
	"github.com/parley-chat/parley/internal/feedback"
	"github.com/parley-chat/parley/internal/store"
)

// ErrAgentNotFound is fatal to session initialization: the session enters
// a terminal "agent not found" state with no further operations.
var ErrAgentNotFound = errors.New("agent not found")

// ErrSessionClosed is returned for operations on a torn-down session.
var ErrSessionClosed = errors.New("session closed")

// Dispatcher defines what the pipeline needs from the agent-query backend.
type Dispatcher interface {
	Query(ctx context.Context, agentID, userMessage, filePayload string) (*backend.Reply, error)
	QueryChain(ctx context.Context, primaryID, secondaryID, userMessage string) (*backend.Reply, error)
}

// ConversationStore defines what the manager needs from storage.
type ConversationStore interface {
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
	ListAgents(ctx context.Context, owner string) ([]*store.Agent, error)
	TouchAgent(ctx context.Context, id string, usedAt time.Time) error
	SaveMessage(ctx context.Context, msg *store.Message) (string, error)
	SaveFeedback(ctx context.Context, rec *store.FeedbackRecord) error
	HasFeedback(ctx context.Context, messageID string) (bool, error)
}

// Manager composes the conversation core: it opens sessions, holds the
// live session set, and supplies each session's collaborators.
type Manager struct {
	store      ConversationStore
	dispatcher Dispatcher
	notifier   *store.Notifier
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Pass nil logger for default.
func NewManager(cs ConversationStore, dispatcher Dispatcher, notifier *store.Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = store.NewNotifier(logger)
	}
	return &Manager{
		store:      cs,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger.With("component", "conversation"),
		sessions:   make(map[string]*Session),
	}
}

// Notifier exposes the change feed for live transcript subscribers.
func (m *Manager) Notifier() *store.Notifier {
	return m.notifier
}

// Open creates a session against the given agent for the signed-in user.
// It fetches the agent's metadata, touches its LastUsedAt, and seeds the
// transcript with a synthesized greeting (no ID, never persisted, never
// feedback-eligible). An unresolvable agent is fatal: ErrAgentNotFound.
// Without a signed-in identity no session is possible.
func (m *Manager) Open(ctx context.Context, agentID string) (*Session, error) {
	owner, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}

	agent, err := m.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("fetching agent: %w", err)
	}

	now := time.Now()
	if err := m.store.TouchAgent(ctx, agentID, now); err != nil {
		// Best effort: a failed touch does not block the session
		m.logger.Warn("failed to touch agent", "agent_id", agentID, "error", err)
	} else {
		m.notifier.Publish(&store.Change{
			Topic:   "agents",
			Kind:    store.ChangeAgentUpdated,
			AgentID: agentID,
		})
	}

	session := &Session{
		ID:    newSessionID(),
		Owner: owner,
		agent: agent,
		chain: chain.New(),
		rated: feedback.New(m.store, m.logger),
		mgr:   m,
	}

	greeting := fmt.Sprintf("Hi User, I am %s. How can I help you today?", agent.Name)
	session.append(&Entry{
		Message: store.Message{
			AgentID:   agent.ID,
			SessionID: session.ID,
			Sender:    store.SenderBot,
			Text:      greeting,
			CreatedAt: now,
		},
		Persist: PersistLocal,
	})

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("session opened",
		"session_id", session.ID,
		"agent_id", agent.ID,
		"owner", owner)
	return session, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Close tears down a session. In-flight dispatches are not cancelled;
// their completions notice the closed session and drop their results.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		session.markClosed()
		m.logger.Info("session closed", "session_id", sessionID)
	}
}
