// ABOUTME: Tests for the in-memory change notifier
// ABOUTME: Validates topic isolation, context cleanup, and drop-on-full behavior

package store

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PublishToSubscriber(t *testing.T) {
	n := NewNotifier(nil)
	ctx := context.Background()

	ch, subID := n.Subscribe(ctx, "session:s1")
	defer n.Unsubscribe("session:s1", subID)

	n.Publish(&Change{
		Topic:   "session:s1",
		Kind:    ChangeMessageAppended,
		Message: &Message{Text: "hello"},
	})

	select {
	case change := <-ch:
		assert.Equal(t, ChangeMessageAppended, change.Kind)
		assert.Equal(t, "hello", change.Message.Text)
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}
}

func TestNotifier_TopicIsolation(t *testing.T) {
	n := NewNotifier(nil)
	ctx := context.Background()

	ch1, id1 := n.Subscribe(ctx, "session:s1")
	_, id2 := n.Subscribe(ctx, "session:s2")
	defer n.Unsubscribe("session:s1", id1)
	defer n.Unsubscribe("session:s2", id2)

	n.Publish(&Change{Topic: "session:s2", Kind: ChangeMessageAppended})

	select {
	case <-ch1:
		t.Fatal("change leaked across topics")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier(nil)

	ch, subID := n.Subscribe(context.Background(), "agents")
	require.Equal(t, 1, n.SubscriberCount("agents"))

	n.Unsubscribe("agents", subID)
	assert.Equal(t, 0, n.SubscriberCount("agents"))

	// Channel is closed
	_, open := <-ch
	assert.False(t, open)

	// Safe to call again
	n.Unsubscribe("agents", subID)
}

func TestNotifier_ContextCancelCleansUp(t *testing.T) {
	n := NewNotifier(nil)
	ctx, cancel := context.WithCancel(context.Background())

	n.Subscribe(ctx, "invites:user-1")
	require.Equal(t, 1, n.SubscriberCount("invites:user-1"))

	cancel()

	require.Eventually(t, func() bool {
		return n.SubscriberCount("invites:user-1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_UnsubscribeReleasesWatcher(t *testing.T) {
	n := NewNotifier(nil)

	// Background contexts never cancel; explicit Unsubscribe must still
	// release each subscription's watcher goroutine
	before := runtime.NumGoroutine()

	var subIDs []string
	for i := 0; i < 50; i++ {
		_, subID := n.Subscribe(context.Background(), "agents")
		subIDs = append(subIDs, subID)
	}
	for _, subID := range subIDs {
		n.Unsubscribe("agents", subID)
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+5
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_SlowSubscriberDoesNotBlock(t *testing.T) {
	n := NewNotifier(nil)

	_, subID := n.Subscribe(context.Background(), "session:s1")
	defer n.Unsubscribe("session:s1", subID)

	done := make(chan struct{})
	go func() {
		// Overflow the buffer without reading
		for i := 0; i < subscriberBufferSize+10; i++ {
			n.Publish(&Change{Topic: "session:s1", Kind: ChangeMessageAppended})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
