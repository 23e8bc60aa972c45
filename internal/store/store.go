package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents an account on the dev relay.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	ProfileImage string
	CreatedAt    time.Time
}

// NewUser holds the fields required to create a user.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// Conversation is a direct thread between two users.
type Conversation struct {
	ID                 string
	UserA              string
	UserB              string
	DirectKey          string // "dm:{minUserId}:{maxUserId}"
	LastMessageContent *string
	LastMessageAt      *time.Time
	CreatedAt          time.Time
	Unread             map[string]int
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	MessageType    string
	IsDelivered    bool
	IsRead         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewMessage holds the fields required to persist a message.
type NewMessage struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	MessageType    string
}

// DirectKey returns the unique key of the direct conversation between a and b.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, user NewUser) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// FindOrCreateDirect returns the direct conversation between two users,
	// creating it on first use.
	FindOrCreateDirect(ctx context.Context, userA, userB string) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversationsForUser lists a user's conversations, most recent
	// activity first.
	ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage stores a message, updates the conversation preview and
	// increments the receiver's unread counter in one transaction.
	SaveMessage(ctx context.Context, msg NewMessage) (*Message, error)

	// ListMessages returns a conversation's messages, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	// MarkRead marks every message received by userID in the conversation as
	// read and resets the user's unread counter. Returns the number of
	// messages that changed.
	MarkRead(ctx context.Context, conversationID, userID string) (int64, error)
}

// Store combines all persistence interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	Close() error
}
