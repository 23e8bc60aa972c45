package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ijarahub/ijara-messaging/internal/store"
	"github.com/ijarahub/ijara-messaging/internal/utils"
)

// Schema creates every table the relay needs. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	profile_image TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id                   TEXT PRIMARY KEY,
	user_a               TEXT NOT NULL,
	user_b               TEXT NOT NULL,
	direct_key           TEXT NOT NULL UNIQUE,
	last_message_content TEXT,
	last_message_at      DATETIME,
	created_at           DATETIME NOT NULL,
	FOREIGN KEY (user_a) REFERENCES users(id),
	FOREIGN KEY (user_b) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS conversation_unread (
	conversation_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	count           INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (conversation_id, user_id),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	receiver_id     TEXT NOT NULL,
	content         TEXT NOT NULL,
	message_type    TEXT NOT NULL DEFAULT 'text',
	is_delivered    BOOLEAN NOT NULL DEFAULT 0,
	is_read         BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a);
CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b);
`

// ApplySchema runs Schema against db.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema against ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:"
	// databases alive across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user store.NewUser) (*store.User, error) {
	id := utils.NewID()
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, user.Email, user.PasswordHash, user.FirstName, user.LastName, s.now()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

const userColumns = `id, email, password_hash, first_name, last_name, profile_image, created_at`

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg any) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.ProfileImage,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== ConversationStore implementation ====

const conversationColumns = `id, user_a, user_b, direct_key, last_message_content, last_message_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var (
		conv    store.Conversation
		content sql.NullString
		lastAt  sql.NullTime
	)
	if err := row.Scan(&conv.ID, &conv.UserA, &conv.UserB, &conv.DirectKey, &content, &lastAt, &conv.CreatedAt); err != nil {
		return nil, err
	}
	if content.Valid {
		conv.LastMessageContent = &content.String
	}
	if lastAt.Valid {
		t := lastAt.Time
		conv.LastMessageAt = &t
	}
	conv.Unread = make(map[string]int)
	return &conv, nil
}

// FindOrCreateDirect returns the direct conversation between two users.
func (s *SQLiteStore) FindOrCreateDirect(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	if userA == userB {
		return nil, fmt.Errorf("direct conversation needs two distinct users")
	}
	if userB < userA {
		userA, userB = userB, userA
	}
	key := store.DirectKey(userA, userB)

	insert := `
		INSERT OR IGNORE INTO conversations (id, user_a, user_b, direct_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, insert, utils.NewID(), userA, userB, key, s.now()); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	conv, err := scanConversation(s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE direct_key = ?`, key))
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	if err := s.loadUnread(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	if err := s.loadUnread(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *SQLiteStore) loadUnread(ctx context.Context, conv *store.Conversation) error {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, count FROM conversation_unread WHERE conversation_id = ?`, conv.ID)
	if err != nil {
		return fmt.Errorf("query unread: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			count  int
		)
		if err := rows.Scan(&userID, &count); err != nil {
			return fmt.Errorf("scan unread: %w", err)
		}
		conv.Unread[userID] = count
	}
	return rows.Err()
}

// ListConversationsForUser lists a user's conversations, most recent first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string) ([]store.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_a = ? OR user_b = ?
		ORDER BY COALESCE(last_message_at, created_at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	var (
		convs []store.Conversation
		index = make(map[string]int)
	)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		index[conv.ID] = len(convs)
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	rows.Close()

	unreadQuery := `
		SELECT cu.conversation_id, cu.user_id, cu.count
		FROM conversation_unread cu
		JOIN conversations c ON c.id = cu.conversation_id
		WHERE c.user_a = ? OR c.user_b = ?
	`
	unreadRows, err := s.db.QueryContext(ctx, unreadQuery, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	defer unreadRows.Close()

	for unreadRows.Next() {
		var (
			convID, uid string
			count       int
		)
		if err := unreadRows.Scan(&convID, &uid, &count); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		if i, ok := index[convID]; ok {
			convs[i].Unread[uid] = count
		}
	}
	return convs, unreadRows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage stores a message and updates the conversation in one transaction.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg store.NewMessage) (*store.Message, error) {
	now := s.now()
	saved := store.Message{
		ID:             utils.NewID(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		IsDelivered:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if saved.MessageType == "" {
		saved.MessageType = "text"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, message_type, is_delivered, is_read, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insert,
		saved.ID, saved.ConversationID, saved.SenderID, saved.ReceiverID,
		saved.Content, saved.MessageType, saved.IsDelivered, saved.CreatedAt, saved.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_content = ?, last_message_at = ? WHERE id = ?`,
		saved.Content, saved.CreatedAt, saved.ConversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("conversation %s: %w", saved.ConversationID, store.ErrNotFound)
	}

	upsert := `
		INSERT INTO conversation_unread (conversation_id, user_id, count)
		VALUES (?, ?, 1)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET count = count + 1
	`
	if _, err := tx.ExecContext(ctx, upsert, saved.ConversationID, saved.ReceiverID); err != nil {
		return nil, fmt.Errorf("increment unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &saved, nil
}

// ListMessages returns a conversation's messages, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, content, message_type, is_delivered, is_read, created_at, updated_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content,
			&m.MessageType, &m.IsDelivered, &m.IsRead, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead marks a user's received messages as read and zeroes the counter.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, is_delivered = 1, updated_at = ?
		WHERE conversation_id = ? AND receiver_id = ? AND is_read = 0
	`, s.now(), conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	changed, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_unread (conversation_id, user_id, count)
		VALUES (?, ?, 0)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET count = 0
	`, conversationID, userID); err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return changed, nil
}
