// ABOUTME: Session identity, current agent metadata, and the ordered transcript
// ABOUTME: A Session is the sole mutation entry point for send/suggest/chain/feedback

package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/chain"
	"github.com/parley-chat/parley/internal/feedback"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/suggest"
)

// Persistence state of a transcript entry relative to the store.
const (
	PersistPending = "pending"
	PersistSaved   = "saved"
	PersistFailed  = "failed"
	PersistLocal   = "local" // never persisted (greeting, apology)
)

// Entry is one transcript item: the message plus its persistence state.
// The transcript is optimistic: entries appear before their writes
// resolve, and a failed write marks the entry instead of rolling it back.
type Entry struct {
	Message store.Message
	Persist string
}

// FeedbackEligible reports whether the entry can receive a rating:
// bot messages with a store-assigned ID only.
func (e Entry) FeedbackEligible() bool {
	return e.Message.Sender == store.SenderBot && e.Message.ID != ""
}

// Session owns one opened chat: its identity, primary agent, chain state,
// feedback tracker, and append-only transcript.
type Session struct {
	ID    string
	Owner string

	agent *store.Agent
	chain *chain.Coordinator
	rated *feedback.Tracker
	mgr   *Manager

	mu         sync.RWMutex
	transcript []*Entry
	closed     bool
}

// newSessionID derives a unique, monotonically distinguishable session
// identifier. Two reopens of the same agent never collide: the timestamp
// orders them and the uuid suffix breaks same-instant ties.
func newSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixNano(), uuid.New().String()[:8])
}

// Agent returns the session's primary agent metadata.
func (s *Session) Agent() *store.Agent {
	cp := *s.agent
	return &cp
}

// Chain exposes the session's chain coordinator.
func (s *Session) Chain() *chain.Coordinator {
	return s.chain
}

// Feedback exposes the session's feedback tracker.
func (s *Session) Feedback() *feedback.Tracker {
	return s.rated
}

// Transcript returns a snapshot of the transcript in append order. The
// snapshot holds value copies taken under the lock: async persistence
// completions flip the live entries' state, and handing out the live
// pointers would race those writes against the caller's reads.
func (s *Session) Transcript() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.transcript))
	for i, e := range s.transcript {
		out[i] = *e
	}
	return out
}

// Suggest recomputes alternate-agent suggestions for the in-progress
// input. Pure and side-effect free, so callers run it on every keystroke
// and replace the previous list with the result.
func (s *Session) Suggest(ctx context.Context, input string) ([]suggest.Suggestion, error) {
	agents, err := s.mgr.store.ListAgents(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	active := agents[:0]
	for _, a := range agents {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return suggest.Suggest(input, active, s.agent.ID), nil
}

// EnableChain resolves the secondary agent and turns chain mode on.
func (s *Session) EnableChain(ctx context.Context, secondaryAgentID string) error {
	secondary, err := s.mgr.store.GetAgent(ctx, secondaryAgentID)
	if err != nil {
		if err == store.ErrNotFound {
			return ErrAgentNotFound
		}
		return fmt.Errorf("resolving secondary agent: %w", err)
	}
	s.chain.Enable(secondary)
	return nil
}

// DisableChain turns chain mode off and clears the secondary agent.
// In-flight chained dispatches complete normally.
func (s *Session) DisableChain() {
	s.chain.Disable()
}

// SubmitFeedback records a satisfaction rating for a bot message in this
// session. At most one rating per message; messages without a
// store-assigned ID are never eligible.
func (s *Session) SubmitFeedback(ctx context.Context, messageID string, satisfied bool) error {
	return s.rated.Submit(ctx, messageID, s.agent.ID, s.ID, satisfied)
}

// HasFeedback reports whether the message has already been rated.
func (s *Session) HasFeedback(ctx context.Context, messageID string) (bool, error) {
	return s.rated.HasFeedback(ctx, messageID)
}

// append adds an entry to the transcript and publishes the change.
// Returns the stored pointer so async completions can flip its state.
func (s *Session) append(entry *Entry) *Entry {
	s.mu.Lock()
	s.transcript = append(s.transcript, entry)
	s.mu.Unlock()

	msg := entry.Message
	s.mgr.notifier.Publish(&store.Change{
		Topic:   "session:" + s.ID,
		Kind:    store.ChangeMessageAppended,
		Message: &msg,
	})
	return entry
}

// setPersist updates an entry's persistence state under the lock.
func (s *Session) setPersist(entry *Entry, state string, id string) {
	s.mu.Lock()
	entry.Persist = state
	if id != "" {
		entry.Message.ID = id
	}
	s.mu.Unlock()
}

// isClosed reports whether the session was torn down. Async completions
// check this before mutating shared state and drop their results when
// the owning view is gone.
func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// markClosed flags the session; later completions fail silently.
func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
