// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides agent/message/feedback/invite persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			specialties  TEXT NOT NULL DEFAULT '[]',
			is_active    INTEGER NOT NULL DEFAULT 1,
			color        TEXT,
			icon         TEXT,
			owner        TEXT,
			last_used_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL,
			session_id TEXT NOT NULL,
			sender     TEXT NOT NULL,
			text       TEXT,
			file       TEXT,
			chain_meta TEXT,
			created_at TEXT NOT NULL,

			CHECK (sender IN ('user', 'bot'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
			ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS feedback (
			id         TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			agent_id   TEXT NOT NULL,
			session_id TEXT NOT NULL,
			satisfied  INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_message
			ON feedback(message_id);

		CREATE TABLE IF NOT EXISTS group_invites (
			id         TEXT PRIMARY KEY,
			group_id   TEXT NOT NULL,
			recipient  TEXT NOT NULL,
			sender     TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (status IN ('pending', 'accepted', 'declined'))
		);

		CREATE INDEX IF NOT EXISTS idx_invites_recipient
			ON group_invites(recipient, status);

		CREATE TABLE IF NOT EXISTS group_chats (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			owner      TEXT NOT NULL,
			members    TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetAgent retrieves an agent by ID
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, specialties, is_active, color, icon, owner, last_used_at
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// ListAgents returns agents owned by the given identity. An empty owner
// returns all agents (used to build the suggestion pool).
func (s *SQLiteStore) ListAgents(ctx context.Context, owner string) ([]*Agent, error) {
	query := `
		SELECT id, name, specialties, is_active, color, icon, owner, last_used_at
		FROM agents`
	args := []any{}
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// TouchAgent updates an agent's last_used_at timestamp
func (s *SQLiteStore) TouchAgent(ctx context.Context, id string, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_used_at = ? WHERE id = ?`,
		usedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("touching agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMessage appends a message and returns the store-assigned ID.
// CreatedAt is assigned by the store if unset (server time).
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) (string, error) {
	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var fileJSON, chainJSON sql.NullString
	if msg.File != nil {
		b, err := json.Marshal(msg.File)
		if err != nil {
			return "", fmt.Errorf("encoding attachment: %w", err)
		}
		fileJSON = sql.NullString{String: string(b), Valid: true}
	}
	if msg.ChainMeta != nil {
		b, err := json.Marshal(msg.ChainMeta)
		if err != nil {
			return "", fmt.Errorf("encoding chain meta: %w", err)
		}
		chainJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, agent_id, session_id, sender, text, file, chain_meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, msg.AgentID, msg.SessionID, msg.Sender, msg.Text,
		fileJSON, chainJSON, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("saving message: %w", err)
	}
	return id, nil
}

// GetSessionMessages returns messages for a session in creation order
func (s *SQLiteStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, session_id, sender, text, file, chain_meta, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var text, fileJSON, chainJSON sql.NullString
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.AgentID, &msg.SessionID, &msg.Sender,
			&text, &fileJSON, &chainJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Text = text.String
		if fileJSON.Valid {
			var att Attachment
			if err := json.Unmarshal([]byte(fileJSON.String), &att); err != nil {
				return nil, fmt.Errorf("decoding attachment: %w", err)
			}
			msg.File = &att
		}
		if chainJSON.Valid {
			var cm ChainMeta
			if err := json.Unmarshal([]byte(chainJSON.String), &cm); err != nil {
				return nil, fmt.Errorf("decoding chain meta: %w", err)
			}
			msg.ChainMeta = &cm
		}
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CountMessagesByDay aggregates how many questions the owner's agents
// received per UTC day over the trailing window. Days without traffic
// are omitted.
func (s *SQLiteStore) CountMessagesByDay(ctx context.Context, owner string, days int) ([]UsageBucket, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(m.created_at, 1, 10) AS day, COUNT(*)
		FROM messages m
		JOIN agents a ON a.id = m.agent_id
		WHERE m.sender = ? AND a.owner = ? AND m.created_at >= ?
		GROUP BY day
		ORDER BY day`, SenderUser, owner, since)
	if err != nil {
		return nil, fmt.Errorf("counting usage: %w", err)
	}
	defer rows.Close()

	var buckets []UsageBucket
	for rows.Next() {
		var b UsageBucket
		if err := rows.Scan(&b.Day, &b.Count); err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// SaveFeedback appends a feedback record. The UNIQUE index on message_id
// rejects a second record for the same message with ErrDuplicateFeedback.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, rec *FeedbackRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	satisfied := 0
	if rec.Satisfied {
		satisfied = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, message_id, agent_id, session_id, satisfied, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, rec.MessageID, rec.AgentID, rec.SessionID, satisfied,
		createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateFeedback
		}
		return fmt.Errorf("saving feedback: %w", err)
	}
	return nil
}

// HasFeedback reports whether a feedback record exists for the message
func (s *SQLiteStore) HasFeedback(ctx context.Context, messageID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM feedback WHERE message_id = ? LIMIT 1`, messageID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking feedback: %w", err)
	}
	return true, nil
}

// ListPendingInvites returns pending invites addressed to the recipient
func (s *SQLiteStore) ListPendingInvites(ctx context.Context, recipient string) ([]*GroupInvite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, recipient, sender, status, created_at, updated_at
		FROM group_invites
		WHERE recipient = ? AND status = ?
		ORDER BY created_at DESC`, recipient, InviteStatusPending)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	defer rows.Close()

	var invites []*GroupInvite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// GetInvite retrieves an invite by ID
func (s *SQLiteStore) GetInvite(ctx context.Context, id string) (*GroupInvite, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, recipient, sender, status, created_at, updated_at
		FROM group_invites WHERE id = ?`, id)
	return scanInvite(row)
}

// UpdateInviteStatus changes an invite's status
func (s *SQLiteStore) UpdateInviteStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE group_invites SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("updating invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetGroupChat retrieves a group chat by ID
func (s *SQLiteStore) GetGroupChat(ctx context.Context, id string) (*GroupChat, error) {
	var gc GroupChat
	var membersJSON, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner, members, created_at
		FROM group_chats WHERE id = ?`, id).
		Scan(&gc.ID, &gc.Name, &gc.Owner, &membersJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting group chat: %w", err)
	}
	if err := json.Unmarshal([]byte(membersJSON), &gc.Members); err != nil {
		return nil, fmt.Errorf("decoding members: %w", err)
	}
	gc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &gc, nil
}

// AddGroupMember appends a member to a group chat's member list.
// Adding an existing member is a no-op.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, member string) error {
	gc, err := s.GetGroupChat(ctx, groupID)
	if err != nil {
		return err
	}
	for _, m := range gc.Members {
		if m == member {
			return nil
		}
	}
	members := append(gc.Members, member)
	b, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE group_chats SET members = ? WHERE id = ?`, string(b), groupID)
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// CreateAgent inserts an agent. Agents are normally created externally;
// this exists for seeding and tests.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	specialties, err := json.Marshal(agent.Specialties)
	if err != nil {
		return fmt.Errorf("encoding specialties: %w", err)
	}
	isActive := 0
	if agent.IsActive {
		isActive = 1
	}
	var lastUsed sql.NullString
	if !agent.LastUsedAt.IsZero() {
		lastUsed = sql.NullString{String: agent.LastUsedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, specialties, is_active, color, icon, owner, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, string(specialties), isActive,
		agent.Color, agent.Icon, agent.Owner, lastUsed)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	return nil
}

// CreateInvite inserts a group invite. Used for seeding and tests.
func (s *SQLiteStore) CreateInvite(ctx context.Context, inv *GroupInvite) error {
	id := inv.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	status := inv.Status
	if status == "" {
		status = InviteStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_invites (id, group_id, recipient, sender, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, inv.GroupID, inv.Recipient, inv.Sender, status,
		createdAt.UTC().Format(time.RFC3339Nano),
		createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("creating invite: %w", err)
	}
	return nil
}

// CreateGroupChat inserts a group chat. Used for seeding and tests.
func (s *SQLiteStore) CreateGroupChat(ctx context.Context, gc *GroupChat) error {
	members := gc.Members
	if members == nil {
		members = []string{}
	}
	b, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}
	createdAt := gc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_chats (id, name, owner, members, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		gc.ID, gc.Name, gc.Owner, string(b),
		createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("creating group chat: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var specialties string
	var isActive int
	var color, icon, owner, lastUsed sql.NullString
	err := row.Scan(&agent.ID, &agent.Name, &specialties, &isActive,
		&color, &icon, &owner, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	if err := json.Unmarshal([]byte(specialties), &agent.Specialties); err != nil {
		return nil, fmt.Errorf("decoding specialties: %w", err)
	}
	agent.IsActive = isActive != 0
	agent.Color = color.String
	agent.Icon = icon.String
	agent.Owner = owner.String
	if lastUsed.Valid {
		agent.LastUsedAt, _ = time.Parse(time.RFC3339Nano, lastUsed.String)
	}
	return &agent, nil
}

func scanInvite(row rowScanner) (*GroupInvite, error) {
	var inv GroupInvite
	var createdAt, updatedAt string
	err := row.Scan(&inv.ID, &inv.GroupID, &inv.Recipient, &inv.Sender,
		&inv.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning invite: %w", err)
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	inv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &inv, nil
}
