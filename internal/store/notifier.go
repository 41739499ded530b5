// ABOUTME: In-memory fan-out change notifier for store documents
// ABOUTME: Publishes agent/invite/transcript changes to all subscribers of a topic

package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Change kinds published by the services.
const (
	ChangeAgentUpdated     = "agent_updated"
	ChangeInviteUpdated    = "invite_updated"
	ChangeMessageAppended  = "message_appended"
	ChangeFeedbackRecorded = "feedback_recorded"
)

// Change is one published store mutation.
type Change struct {
	Topic   string
	Kind    string
	Message *Message     // set for ChangeMessageAppended
	Invite  *GroupInvite // set for ChangeInviteUpdated
	AgentID string       // set for ChangeAgentUpdated
}

// Notifier provides in-memory pub/sub for store changes. Subscribers
// register for a topic (for example "session:<id>" or "invites:<user>")
// and receive changes as they are published. This stands in for the
// document store's real-time subscription; it must be unsubscribed when
// the owning view goes away, which Subscribe ties to context cancellation.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscription // topic -> subID
	logger      *slog.Logger
}

// subscription pairs a subscriber's channel with a done signal so the
// context watcher exits on explicit Unsubscribe too, not only on
// context cancellation.
type subscription struct {
	ch   chan *Change
	done chan struct{}
}

// NewNotifier creates a notifier. Pass nil logger for default.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subscribers: make(map[string]map[string]*subscription),
		logger:      logger.With("component", "notifier"),
	}
}

// Subscribe registers a subscriber for changes on the given topic.
// Returns a channel that receives changes and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (n *Notifier) Subscribe(ctx context.Context, topic string) (<-chan *Change, string) {
	subID := uuid.New().String()
	sub := &subscription{
		ch:   make(chan *Change, subscriberBufferSize),
		done: make(chan struct{}),
	}

	n.mu.Lock()
	if _, ok := n.subscribers[topic]; !ok {
		n.subscribers[topic] = make(map[string]*subscription)
	}
	n.subscribers[topic][subID] = sub
	n.mu.Unlock()

	n.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			n.Unsubscribe(topic, subID)
		case <-sub.done:
		}
	}()

	return sub.ch, subID
}

// Unsubscribe removes a subscriber, closes its channel, and releases its
// context watcher. Safe to call multiple times.
func (n *Notifier) Unsubscribe(topic, subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs, ok := n.subscribers[topic]
	if !ok {
		return
	}
	sub, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(n.subscribers, topic)
	}
	close(sub.done)
	close(sub.ch)

	n.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Publish sends a change to all subscribers of its topic. A slow
// subscriber with a full buffer drops the change rather than blocking
// the publisher.
func (n *Notifier) Publish(change *Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for subID, sub := range n.subscribers[change.Topic] {
		select {
		case sub.ch <- change:
		default:
			n.logger.Warn("subscriber buffer full, dropping change",
				"topic", change.Topic,
				"sub_id", subID,
				"kind", change.Kind)
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (n *Notifier) SubscriberCount(topic string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers[topic])
}
