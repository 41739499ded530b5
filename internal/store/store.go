// ABOUTME: Store interface and data types for parley persistence
// ABOUTME: Defines Agent, Message, FeedbackRecord and the document collections contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateFeedback is returned when a second feedback record is written
// for a message that already has one
var ErrDuplicateFeedback = errors.New("feedback already exists for message")

// Sender constants for message authorship
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Agent is a configured conversational responder. Agents are created
// externally; this core only reads them and touches LastUsedAt when a
// session opens.
type Agent struct {
	ID          string
	Name        string
	Specialties []string
	IsActive    bool
	Color       string
	Icon        string
	Owner       string
	LastUsedAt  time.Time
}

// Attachment is a self-contained file payload carried on a message.
// Payload is base64-encoded content, never a reference to external storage.
type Attachment struct {
	Name        string `json:"name"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Payload     string `json:"payload"`
	PreviewKind string `json:"preview_kind"` // "image" or "file"
}

// ChainMeta names the two agents that contributed to a chained reply.
type ChainMeta struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Message is one transcript entry. ID is assigned by the store on write;
// purely local entries (greeting, apology) have an empty ID.
type Message struct {
	ID        string
	AgentID   string
	SessionID string
	Sender    string // "user" or "bot"
	Text      string
	File      *Attachment
	ChainMeta *ChainMeta
	CreatedAt time.Time
}

// UsageBucket is one day's question count across an owner's agents.
// Day is a UTC calendar date in YYYY-MM-DD form.
type UsageBucket struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// FeedbackRecord is a user's binary satisfaction rating for one bot reply.
// At most one record exists per MessageID.
type FeedbackRecord struct {
	ID        string
	MessageID string
	AgentID   string
	SessionID string
	Satisfied bool
	CreatedAt time.Time
}

// Invite status constants
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
)

// GroupInvite asks a recipient to join a group chat.
type GroupInvite struct {
	ID        string
	GroupID   string
	Recipient string
	Sender    string
	Status    string // pending, accepted, declined
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupChat is a named chat with a member list.
type GroupChat struct {
	ID        string
	Name      string
	Owner     string
	Members   []string
	CreatedAt time.Time
}

// Store defines the document-store contract for all parley collections.
type Store interface {
	// Agents
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context, owner string) ([]*Agent, error)
	TouchAgent(ctx context.Context, id string, usedAt time.Time) error

	// Messages (append-only)
	SaveMessage(ctx context.Context, msg *Message) (string, error)
	GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)
	CountMessagesByDay(ctx context.Context, owner string, days int) ([]UsageBucket, error)

	// Feedback (append-only, at most one per message)
	SaveFeedback(ctx context.Context, rec *FeedbackRecord) error
	HasFeedback(ctx context.Context, messageID string) (bool, error)

	// Group invites and chats
	ListPendingInvites(ctx context.Context, recipient string) ([]*GroupInvite, error)
	GetInvite(ctx context.Context, id string) (*GroupInvite, error)
	UpdateInviteStatus(ctx context.Context, id, status string, updatedAt time.Time) error
	GetGroupChat(ctx context.Context, id string) (*GroupChat, error)
	AddGroupMember(ctx context.Context, groupID, member string) error

	// Close releases any resources held by the store
	Close() error
}
