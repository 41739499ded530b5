// ABOUTME: Tests for group invite accept/decline and inbox listing
// ABOUTME: Covers authorization, non-pending invites, and anonymous callers

package groups

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/store"
)

func setupService(t *testing.T) (*Service, *store.MockStore, *store.Notifier) {
	t.Helper()
	ms := store.NewMockStore()
	notifier := store.NewNotifier(nil)
	return New(ms, notifier, nil), ms, notifier
}

func userCtx(userID string) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{UserID: userID})
}

func TestService_ListPending(t *testing.T) {
	svc, ms, _ := setupService(t)
	ms.AddInvite(&store.GroupInvite{ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2"})
	ms.AddInvite(&store.GroupInvite{ID: "inv-2", GroupID: "g2", Recipient: "user-9", Sender: "user-2"})

	invites, err := svc.ListPending(userCtx("user-1"))
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, "inv-1", invites[0].ID)
}

func TestService_ListPending_Anonymous(t *testing.T) {
	svc, ms, _ := setupService(t)
	ms.AddInvite(&store.GroupInvite{ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2"})

	invites, err := svc.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, invites)
}

func TestService_Accept(t *testing.T) {
	svc, ms, _ := setupService(t)
	ms.AddGroupChat(&store.GroupChat{ID: "g1", Name: "Planning", Owner: "user-2", Members: []string{"user-2"}})
	ms.AddInvite(&store.GroupInvite{ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2"})

	require.NoError(t, svc.Accept(userCtx("user-1"), "inv-1"))

	gc, err := ms.GetGroupChat(context.Background(), "g1")
	require.NoError(t, err)
	assert.Contains(t, gc.Members, "user-1")

	inv, err := ms.GetInvite(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, store.InviteStatusAccepted, inv.Status)
}

func TestService_Decline(t *testing.T) {
	svc, ms, _ := setupService(t)
	ms.AddGroupChat(&store.GroupChat{ID: "g1", Name: "Planning", Owner: "user-2", Members: []string{"user-2"}})
	ms.AddInvite(&store.GroupInvite{ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2"})

	require.NoError(t, svc.Decline(userCtx("user-1"), "inv-1"))

	inv, err := ms.GetInvite(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, store.InviteStatusDeclined, inv.Status)

	// Declining never touches membership
	gc, err := ms.GetGroupChat(context.Background(), "g1")
	require.NoError(t, err)
	assert.NotContains(t, gc.Members, "user-1")
}

func TestService_Accept_WrongRecipient(t *testing.T) {
	svc, ms, _ := setupService(t)
	ms.AddInvite(&store.GroupInvite{ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2"})

	err := svc.Accept(userCtx("user-9"), "inv-1")
	assert.ErrorIs(t, err, ErrNotRecipient)
}

func TestService_Accept_NotPending(t *testing.T) {
	svc, ms, _ := setupService(t)
	ms.AddInvite(&store.GroupInvite{
		ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2",
		Status: store.InviteStatusDeclined,
	})

	err := svc.Accept(userCtx("user-1"), "inv-1")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestService_Accept_Anonymous(t *testing.T) {
	svc, ms, _ := setupService(t)
	ms.AddInvite(&store.GroupInvite{ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2"})

	err := svc.Accept(context.Background(), "inv-1")
	assert.ErrorIs(t, err, auth.ErrNoIdentity)
}

func TestService_Accept_MissingInvite(t *testing.T) {
	svc, _, _ := setupService(t)

	err := svc.Accept(userCtx("user-1"), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_Accept_PublishesChange(t *testing.T) {
	svc, ms, notifier := setupService(t)
	ms.AddGroupChat(&store.GroupChat{ID: "g1", Name: "Planning", Owner: "user-2"})
	ms.AddInvite(&store.GroupInvite{ID: "inv-1", GroupID: "g1", Recipient: "user-1", Sender: "user-2"})

	ch, subID := notifier.Subscribe(context.Background(), "invites:user-1")
	defer notifier.Unsubscribe("invites:user-1", subID)

	require.NoError(t, svc.Accept(userCtx("user-1"), "inv-1"))

	select {
	case change := <-ch:
		assert.Equal(t, store.ChangeInviteUpdated, change.Kind)
		require.NotNil(t, change.Invite)
		assert.Equal(t, store.InviteStatusAccepted, change.Invite.Status)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
}
