// ABOUTME: Group chat invitations: list pending, accept, decline
// ABOUTME: Acceptance is two sequential writes (membership then status), not atomic

package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/store"
)

// ErrNotRecipient is returned when a user acts on an invite addressed to
// someone else.
var ErrNotRecipient = errors.New("invite addressed to another user")

// ErrNotPending is returned when an invite was already accepted or declined.
var ErrNotPending = errors.New("invite is not pending")

// InviteStore defines what the service needs from storage.
type InviteStore interface {
	ListPendingInvites(ctx context.Context, recipient string) ([]*store.GroupInvite, error)
	GetInvite(ctx context.Context, id string) (*store.GroupInvite, error)
	UpdateInviteStatus(ctx context.Context, id, status string, updatedAt time.Time) error
	AddGroupMember(ctx context.Context, groupID, member string) error
}

// Service handles group invite operations for the signed-in user.
type Service struct {
	store    InviteStore
	notifier *store.Notifier
	logger   *slog.Logger
}

// New creates a Service. Pass nil logger for default.
func New(is InviteStore, notifier *store.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    is,
		notifier: notifier,
		logger:   logger.With("component", "groups"),
	}
}

// ListPending returns the signed-in user's pending invites. Without an
// identity the inbox is empty, not an error.
func (s *Service) ListPending(ctx context.Context) ([]*store.GroupInvite, error) {
	recipient, err := auth.UserID(ctx)
	if err != nil {
		return nil, nil
	}
	return s.store.ListPendingInvites(ctx, recipient)
}

// Accept joins the group then marks the invite accepted. The two writes
// are sequential, not atomic: a crash between them leaves a member with
// a still-pending invite, which a retried Accept resolves.
func (s *Service) Accept(ctx context.Context, inviteID string) error {
	invite, err := s.authorize(ctx, inviteID)
	if err != nil {
		return err
	}

	if err := s.store.AddGroupMember(ctx, invite.GroupID, invite.Recipient); err != nil {
		return fmt.Errorf("joining group: %w", err)
	}
	if err := s.store.UpdateInviteStatus(ctx, inviteID, store.InviteStatusAccepted, time.Now()); err != nil {
		return fmt.Errorf("marking invite accepted: %w", err)
	}

	s.publish(invite, store.InviteStatusAccepted)
	s.logger.Info("invite accepted", "invite_id", inviteID, "group_id", invite.GroupID)
	return nil
}

// Decline marks the invite declined without touching group membership.
func (s *Service) Decline(ctx context.Context, inviteID string) error {
	invite, err := s.authorize(ctx, inviteID)
	if err != nil {
		return err
	}

	if err := s.store.UpdateInviteStatus(ctx, inviteID, store.InviteStatusDeclined, time.Now()); err != nil {
		return fmt.Errorf("marking invite declined: %w", err)
	}

	s.publish(invite, store.InviteStatusDeclined)
	s.logger.Info("invite declined", "invite_id", inviteID)
	return nil
}

// authorize loads the invite and checks the caller may act on it.
func (s *Service) authorize(ctx context.Context, inviteID string) (*store.GroupInvite, error) {
	recipient, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Recipient != recipient {
		return nil, ErrNotRecipient
	}
	if invite.Status != store.InviteStatusPending {
		return nil, ErrNotPending
	}
	return invite, nil
}

func (s *Service) publish(invite *store.GroupInvite, status string) {
	if s.notifier == nil {
		return
	}
	updated := *invite
	updated.Status = status
	s.notifier.Publish(&store.Change{
		Topic:  "invites:" + invite.Recipient,
		Kind:   store.ChangeInviteUpdated,
		Invite: &updated,
	})
}
