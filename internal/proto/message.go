package proto

import (
	"encoding/json"

	"github.com/ijarahub/ijara-messaging/internal/model"
)

// Socket event names. They are part of the wire contract with the messaging
// server and must match exactly.
const (
	EventConversationJoin = "conversation:join"
	EventMessageSend      = "message:send"
	EventMessageRead      = "message:read"
	EventMessageNew       = "message:new"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
)

// Frame is the envelope of every websocket text frame in both directions.
// An event frame carries Event and Data; Ack > 0 on an event frame asks the
// peer for an acknowledgement. An ack frame carries only Ack and Data.
type Frame struct {
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
}

// IsAck reports whether the frame answers an earlier emit.
func (f Frame) IsAck() bool {
	return f.Event == "" && f.Ack != 0
}

// SendData is the payload of message:send.
type SendData struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
}

// SendAck answers message:send.
type SendAck struct {
	Success bool           `json:"success"`
	Message *model.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ReadData is the payload of message:read.
type ReadData struct {
	ConversationID string `json:"conversationId"`
}

// ReadAck answers message:read.
type ReadAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TypingData is the inbound payload of typing:start and typing:stop.
// Outbound typing events carry the bare conversation id string instead.
type TypingData struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`
}
