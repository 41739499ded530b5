// ABOUTME: Per-message satisfaction feedback with at-most-once submission
// ABOUTME: In-process check-and-mark in front of the store existence check

package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-chat/parley/internal/store"
)

// ErrAlreadyRated is returned when a second rating is submitted for a
// message that already has one.
var ErrAlreadyRated = errors.New("message already rated")

// ErrNotEligible is returned for messages that cannot receive feedback
// (no store-assigned ID, e.g. greetings and apology messages).
var ErrNotEligible = errors.New("message not eligible for feedback")

// FeedbackStore defines what the tracker needs from storage.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, rec *store.FeedbackRecord) error
	HasFeedback(ctx context.Context, messageID string) (bool, error)
}

// Tracker enforces at most one satisfaction rating per bot message.
// A session-local rated set makes repeat submissions idempotent from the
// user's perspective without re-querying the store; the store's UNIQUE
// index on message_id is the backstop for two submissions racing from
// different processes.
type Tracker struct {
	mu     sync.Mutex
	rated  map[string]bool
	store  FeedbackStore
	logger *slog.Logger
}

// New creates a Tracker. Pass nil logger for default.
func New(fs FeedbackStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		rated:  make(map[string]bool),
		store:  fs,
		logger: logger.With("component", "feedback"),
	}
}

// HasFeedback reports whether the message has been rated, consulting the
// session-local set before the store.
func (t *Tracker) HasFeedback(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, ErrNotEligible
	}

	t.mu.Lock()
	local := t.rated[messageID]
	t.mu.Unlock()
	if local {
		return true, nil
	}

	return t.store.HasFeedback(ctx, messageID)
}

// Submit records a satisfaction rating for the message. The first call
// wins; any later call returns ErrAlreadyRated. After a successful
// submission the message stays marked rated for the rest of the session.
func (t *Tracker) Submit(ctx context.Context, messageID, agentID, sessionID string, satisfied bool) error {
	if messageID == "" {
		return ErrNotEligible
	}

	// Atomic check-and-mark closes the local TOCTOU window
	t.mu.Lock()
	if t.rated[messageID] {
		t.mu.Unlock()
		return ErrAlreadyRated
	}
	t.rated[messageID] = true
	t.mu.Unlock()

	unmark := func() {
		t.mu.Lock()
		delete(t.rated, messageID)
		t.mu.Unlock()
	}

	exists, err := t.store.HasFeedback(ctx, messageID)
	if err != nil {
		unmark()
		return fmt.Errorf("checking feedback: %w", err)
	}
	if exists {
		// Keep the local mark: the message is rated, just not by us
		return ErrAlreadyRated
	}

	rec := &store.FeedbackRecord{
		MessageID: messageID,
		AgentID:   agentID,
		SessionID: sessionID,
		Satisfied: satisfied,
		CreatedAt: time.Now(),
	}
	if err := t.store.SaveFeedback(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateFeedback) {
			return ErrAlreadyRated
		}
		unmark()
		return fmt.Errorf("saving feedback: %w", err)
	}

	t.logger.Debug("feedback recorded",
		"message_id", messageID,
		"agent_id", agentID,
		"satisfied", satisfied)
	return nil
}
