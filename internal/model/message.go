package model

import "time"

// MessageTypeText is the only message type the composer produces.
const MessageTypeText = "text"

// Message is a single chat message.
type Message struct {
	ID             string    `json:"_id"`
	ConversationID string    `json:"conversationId"`
	Sender         User      `json:"sender"`
	Receiver       User      `json:"receiver"`
	Content        string    `json:"content"`
	MessageType    string    `json:"messageType"`
	IsDelivered    bool      `json:"isDelivered"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MergeDelivery copies delivery flags from other without ever clearing one:
// delivered and read only move forward.
func (m *Message) MergeDelivery(other Message) {
	m.IsDelivered = m.IsDelivered || other.IsDelivered || other.IsRead
	m.IsRead = m.IsRead || other.IsRead
	if m.IsRead {
		m.IsDelivered = true
	}
}

// RefStatus tells whether a message identity is client-local or server-issued.
type RefStatus int

const (
	// RefPending marks an optimistic message still waiting for the server.
	RefPending RefStatus = iota
	// RefConfirmed marks a message the server has stored.
	RefConfirmed
)

func (s RefStatus) String() string {
	if s == RefPending {
		return "pending"
	}
	return "confirmed"
}

// Ref identifies a message in a local list: a temporary id while pending,
// the server id once confirmed.
type Ref struct {
	Status RefStatus
	ID     string
}

// PendingRef wraps a client-generated temporary id.
func PendingRef(tempID string) Ref { return Ref{Status: RefPending, ID: tempID} }

// ConfirmedRef wraps a server-issued id.
func ConfirmedRef(id string) Ref { return Ref{Status: RefConfirmed, ID: id} }

// Pending reports whether the ref is still optimistic.
func (r Ref) Pending() bool { return r.Status == RefPending }
