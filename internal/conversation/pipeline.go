// ABOUTME: The send pipeline: validate, optimistic append, persist, dispatch, reply
// ABOUTME: Failures become a fixed apology message in the transcript, never a crash

package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/attach"
	"github.com/parley-chat/parley/internal/backend"
	"github.com/parley-chat/parley/internal/store"
)

// apologyText is the fixed bot message substituted for any dispatch or
// inbound-persistence failure. It carries no ID and can never receive
// feedback.
const apologyText = "Sorry, something went wrong."

// persistTimeout bounds each store write so persistence continues even
// after the request context ends.
const persistTimeout = 5 * time.Second

// ErrEmptySend is returned when both the text is blank and no file is
// attached. The transcript is unchanged: the send never left Idle.
var ErrEmptySend = errors.New("nothing to send")

// Send runs one message through the pipeline. The user message is
// appended to the transcript immediately, before its persistence write
// resolves, so user messages always appear in send-call order. The
// returned channel yields the resulting bot entry (reply or apology)
// when its own dispatch resolves, then closes; replies from concurrent
// sends may therefore land out of strict correspondence order.
//
// An oversized or unreadable attachment aborts the send before anything
// is appended or written.
func (s *Session) Send(ctx context.Context, text string, file *attach.File) (<-chan Entry, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	if strings.TrimSpace(text) == "" && file == nil {
		return nil, ErrEmptySend
	}

	var attachment *store.Attachment
	if file != nil {
		prepared, err := attach.Prepare(ctx, *file)
		if err != nil {
			return nil, err
		}
		attachment = prepared
	}

	// Optimistic append: the transcript shows the user's message without
	// waiting for write confirmation. A failed write marks the entry, it
	// is never rolled back.
	userEntry := s.append(&Entry{
		Message: store.Message{
			AgentID:   s.agent.ID,
			SessionID: s.ID,
			Sender:    store.SenderUser,
			Text:      text,
			File:      attachment,
			CreatedAt: time.Now(),
		},
		Persist: PersistPending,
	})

	// Snapshot the chain decision now; a Disable after this point only
	// affects subsequent sends.
	chained, secondary := s.chain.Pair()

	done := make(chan Entry, 1)

	// Navigating away must not cancel in-flight persistence or dispatch;
	// completions check the session instead.
	opCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(done)

		s.persistOutbound(opCtx, userEntry)

		var reply *backend.Reply
		var err error
		if chained {
			reply, err = s.mgr.dispatcher.QueryChain(opCtx, s.agent.ID, secondary.ID, text)
		} else {
			payload := ""
			if attachment != nil {
				payload = attachment.Payload
			}
			reply, err = s.mgr.dispatcher.Query(opCtx, s.agent.ID, text, payload)
		}

		var botEntry *Entry
		if err != nil {
			s.mgr.logger.Error("dispatch failed",
				"session_id", s.ID,
				"agent_id", s.agent.ID,
				"chained", chained,
				"error", err)
			botEntry = s.apologyEntry()
		} else {
			botEntry, err = s.persistInbound(opCtx, reply)
			if err != nil {
				s.mgr.logger.Error("failed to persist reply",
					"session_id", s.ID,
					"agent_id", s.agent.ID,
					"error", err)
				botEntry = s.apologyEntry()
			}
		}

		if s.isClosed() {
			// Owning view is gone; drop the result silently
			s.mgr.logger.Debug("dropping reply for closed session", "session_id", s.ID)
			return
		}

		s.append(botEntry)
		done <- *botEntry
	}()

	return done, nil
}

// persistOutbound writes the user message with its own timeout and flips
// the entry's persistence state. Failure is logged, not rolled back: the
// transcript keeps the optimistic entry flagged PersistFailed.
func (s *Session) persistOutbound(ctx context.Context, entry *Entry) {
	saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	msg := entry.Message
	id, err := s.mgr.store.SaveMessage(saveCtx, &msg)
	if err != nil {
		s.mgr.logger.Error("failed to persist user message",
			"session_id", s.ID,
			"error", err)
		s.setPersist(entry, PersistFailed, "")
		return
	}
	s.setPersist(entry, PersistSaved, id)
}

// persistInbound writes the bot reply and builds its transcript entry
// tagged with the store-assigned ID, which feedback lookups need later.
func (s *Session) persistInbound(ctx context.Context, reply *backend.Reply) (*Entry, error) {
	saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	msg := store.Message{
		AgentID:   s.agent.ID,
		SessionID: s.ID,
		Sender:    store.SenderBot,
		Text:      reply.Text,
		ChainMeta: reply.ChainMeta,
		CreatedAt: time.Now(),
	}
	id, err := s.mgr.store.SaveMessage(saveCtx, &msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return &Entry{Message: msg, Persist: PersistSaved}, nil
}

// apologyEntry synthesizes the local failure message: no ID, never
// persisted, never feedback-eligible.
func (s *Session) apologyEntry() *Entry {
	return &Entry{
		Message: store.Message{
			AgentID:   s.agent.ID,
			SessionID: s.ID,
			Sender:    store.SenderBot,
			Text:      apologyText,
			CreatedAt: time.Now(),
		},
		Persist: PersistLocal,
	}
}
