// ABOUTME: Tests for session open, lookup, and teardown
// ABOUTME: Covers greeting seeding, agent touch, and identity requirements

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/backend"
	"github.com/parley-chat/parley/internal/store"
)

// fakeDispatcher scripts backend replies for pipeline tests.
type fakeDispatcher struct {
	mu         sync.Mutex
	reply      *backend.Reply
	chainReply *backend.Reply
	err        error
	queries    []string
	chained    int
	block      chan struct{} // when set, Query waits until closed
}

func (f *fakeDispatcher) Query(ctx context.Context, agentID, userMessage, filePayload string) (*backend.Reply, error) {
	f.mu.Lock()
	f.queries = append(f.queries, userMessage)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &backend.Reply{Text: "echo: " + userMessage}, nil
}

func (f *fakeDispatcher) QueryChain(ctx context.Context, primaryID, secondaryID, userMessage string) (*backend.Reply, error) {
	f.mu.Lock()
	f.chained++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.chainReply != nil {
		return f.chainReply, nil
	}
	return &backend.Reply{
		Text:      "combined: " + userMessage,
		ChainMeta: &store.ChainMeta{Primary: primaryID, Secondary: secondaryID},
	}, nil
}

func setupManager(t *testing.T) (*Manager, *store.MockStore, *fakeDispatcher) {
	t.Helper()
	ms := store.NewMockStore()
	ms.AddAgent(&store.Agent{
		ID: "finance", Name: "Finance", Specialties: []string{"tax", "invoice"},
		IsActive: true, Owner: "user-1",
	})
	ms.AddAgent(&store.Agent{
		ID: "legal", Name: "Legal", Specialties: []string{"contract"},
		IsActive: true, Owner: "user-1",
	})
	dispatcher := &fakeDispatcher{}
	return NewManager(ms, dispatcher, nil, nil), ms, dispatcher
}

func userCtx(userID string) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{UserID: userID})
}

func TestManager_Open(t *testing.T) {
	mgr, ms, _ := setupManager(t)

	sess, err := mgr.Open(userCtx("user-1"), "finance")
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "user-1", sess.Owner)
	assert.Equal(t, "Finance", sess.Agent().Name)

	// Opening touches the agent's last-used timestamp
	agent, err := ms.GetAgent(context.Background(), "finance")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), agent.LastUsedAt, time.Second)
}

func TestManager_Open_SeedsGreeting(t *testing.T) {
	mgr, _, _ := setupManager(t)

	sess, err := mgr.Open(userCtx("user-1"), "finance")
	require.NoError(t, err)

	transcript := sess.Transcript()
	require.Len(t, transcript, 1)

	greeting := transcript[0]
	assert.Equal(t, "Hi User, I am Finance. How can I help you today?", greeting.Message.Text)
	assert.Equal(t, store.SenderBot, greeting.Message.Sender)
	assert.Equal(t, PersistLocal, greeting.Persist)
	assert.Empty(t, greeting.Message.ID)
	assert.False(t, greeting.FeedbackEligible())
}

func TestManager_Open_AgentNotFound(t *testing.T) {
	mgr, _, _ := setupManager(t)

	_, err := mgr.Open(userCtx("user-1"), "missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestManager_Open_RequiresIdentity(t *testing.T) {
	mgr, _, _ := setupManager(t)

	_, err := mgr.Open(context.Background(), "finance")
	assert.ErrorIs(t, err, auth.ErrNoIdentity)
}

func TestManager_Open_UniqueSessionIDs(t *testing.T) {
	mgr, _, _ := setupManager(t)

	s1, err := mgr.Open(userCtx("user-1"), "finance")
	require.NoError(t, err)
	s2, err := mgr.Open(userCtx("user-1"), "finance")
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestManager_GetAndClose(t *testing.T) {
	mgr, _, _ := setupManager(t)

	sess, err := mgr.Open(userCtx("user-1"), "finance")
	require.NoError(t, err)

	got, ok := mgr.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess, got)

	mgr.Close(sess.ID)

	_, ok = mgr.Get(sess.ID)
	assert.False(t, ok)

	// Further sends fail
	_, err = sess.Send(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_Suggest(t *testing.T) {
	mgr, ms, _ := setupManager(t)
	ms.AddAgent(&store.Agent{
		ID: "dormant", Name: "Dormant", Specialties: []string{"tax"},
		IsActive: false, Owner: "user-1",
	})

	sess, err := mgr.Open(userCtx("user-1"), "finance")
	require.NoError(t, err)

	// "tax" matches Finance (excluded as current) and Dormant (inactive)
	suggestions, err := sess.Suggest(context.Background(), "tax and contract advice")
	require.NoError(t, err)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "legal", suggestions[0].AgentID)
	assert.Equal(t, "Matches: contract", suggestions[0].Reason)
}

func TestSession_EnableChain_UnknownAgent(t *testing.T) {
	mgr, _, _ := setupManager(t)

	sess, err := mgr.Open(userCtx("user-1"), "finance")
	require.NoError(t, err)

	err = sess.EnableChain(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.False(t, sess.Chain().ShouldChain())
}
