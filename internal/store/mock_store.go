// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
// Error fields let tests force failures on specific operations.
type MockStore struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	messages map[string]*Message        // keyed by message ID
	feedback map[string]*FeedbackRecord // keyed by message ID
	invites  map[string]*GroupInvite
	groups   map[string]*GroupChat

	SaveMessageErr  error
	SaveFeedbackErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		agents:   make(map[string]*Agent),
		messages: make(map[string]*Message),
		feedback: make(map[string]*FeedbackRecord),
		invites:  make(map[string]*GroupInvite),
		groups:   make(map[string]*GroupChat),
	}
}

// AddAgent seeds an agent.
func (m *MockStore) AddAgent(agent *Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := *agent
	m.agents[a.ID] = &a
}

// AddInvite seeds a group invite.
func (m *MockStore) AddInvite(inv *GroupInvite) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := *inv
	if i.Status == "" {
		i.Status = InviteStatusPending
	}
	m.invites[i.ID] = &i
}

// AddGroupChat seeds a group chat.
func (m *MockStore) AddGroupChat(gc *GroupChat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := *gc
	m.groups[g.ID] = &g
}

// GetAgent retrieves an agent by ID.
func (m *MockStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	a := *agent
	return &a, nil
}

// ListAgents returns agents, optionally filtered by owner, sorted by name.
func (m *MockStore) ListAgents(ctx context.Context, owner string) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var agents []*Agent
	for _, agent := range m.agents {
		if owner != "" && agent.Owner != owner {
			continue
		}
		a := *agent
		agents = append(agents, &a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// TouchAgent updates last_used_at.
func (m *MockStore) TouchAgent(ctx context.Context, id string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	agent.LastUsedAt = usedAt
	return nil
}

// SaveMessage appends a message and returns its ID.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveMessageErr != nil {
		return "", m.SaveMessageErr
	}
	saved := *msg
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}
	m.messages[saved.ID] = &saved
	return saved.ID, nil
}

// GetSessionMessages returns session messages in creation order.
func (m *MockStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var messages []*Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			cp := *msg
			messages = append(messages, &cp)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// CountMessagesByDay aggregates per-day question counts for the owner.
func (m *MockStore) CountMessagesByDay(ctx context.Context, owner string, days int) ([]UsageBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	counts := make(map[string]int)
	for _, msg := range m.messages {
		if msg.Sender != SenderUser {
			continue
		}
		agent, ok := m.agents[msg.AgentID]
		if !ok || agent.Owner != owner {
			continue
		}
		day := msg.CreatedAt.UTC().Format("2006-01-02")
		if day < since {
			continue
		}
		counts[day]++
	}

	ordered := make([]string, 0, len(counts))
	for day := range counts {
		ordered = append(ordered, day)
	}
	sort.Strings(ordered)

	buckets := make([]UsageBucket, 0, len(ordered))
	for _, day := range ordered {
		buckets = append(buckets, UsageBucket{Day: day, Count: counts[day]})
	}
	return buckets, nil
}

// SaveFeedback appends a feedback record, rejecting duplicates per message.
func (m *MockStore) SaveFeedback(ctx context.Context, rec *FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveFeedbackErr != nil {
		return m.SaveFeedbackErr
	}
	if _, ok := m.feedback[rec.MessageID]; ok {
		return ErrDuplicateFeedback
	}
	saved := *rec
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}
	m.feedback[saved.MessageID] = &saved
	return nil
}

// HasFeedback reports whether feedback exists for the message.
func (m *MockStore) HasFeedback(ctx context.Context, messageID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.feedback[messageID]
	return ok, nil
}

// ListPendingInvites returns pending invites for the recipient.
func (m *MockStore) ListPendingInvites(ctx context.Context, recipient string) ([]*GroupInvite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var invites []*GroupInvite
	for _, inv := range m.invites {
		if inv.Recipient == recipient && inv.Status == InviteStatusPending {
			cp := *inv
			invites = append(invites, &cp)
		}
	}
	sort.Slice(invites, func(i, j int) bool {
		return invites[i].CreatedAt.After(invites[j].CreatedAt)
	})
	return invites, nil
}

// GetInvite retrieves an invite by ID.
func (m *MockStore) GetInvite(ctx context.Context, id string) (*GroupInvite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

// UpdateInviteStatus changes an invite's status.
func (m *MockStore) UpdateInviteStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	inv.UpdatedAt = updatedAt
	return nil
}

// GetGroupChat retrieves a group chat by ID.
func (m *MockStore) GetGroupChat(ctx context.Context, id string) (*GroupChat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gc, ok := m.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *gc
	cp.Members = append([]string(nil), gc.Members...)
	return &cp, nil
}

// AddGroupMember appends a member to a group chat.
func (m *MockStore) AddGroupMember(ctx context.Context, groupID, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gc, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range gc.Members {
		if existing == member {
			return nil
		}
	}
	gc.Members = append(gc.Members, member)
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
