package messaging

import (
	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/realtime"
)

// EventKind tells a UI what changed.
type EventKind int

const (
	// EventConversationsUpdated: the conversation list was replaced.
	EventConversationsUpdated EventKind = iota
	// EventActiveChanged: a different conversation became active.
	EventActiveChanged
	// EventMessagesUpdated: the active message list changed.
	EventMessagesUpdated
	// EventTypingChanged: the remote typing set changed.
	EventTypingChanged
	// EventConnectionChanged: the realtime channel changed state.
	EventConnectionChanged
	// EventSendConfirmed: an optimistic message was confirmed by the server.
	EventSendConfirmed
	// EventSendFailed: an optimistic message was rolled back.
	EventSendFailed
	// EventNotice carries a user-facing error (toast/banner).
	EventNotice
)

func (k EventKind) String() string {
	switch k {
	case EventConversationsUpdated:
		return "conversations_updated"
	case EventActiveChanged:
		return "active_changed"
	case EventMessagesUpdated:
		return "messages_updated"
	case EventTypingChanged:
		return "typing_changed"
	case EventConnectionChanged:
		return "connection_changed"
	case EventSendConfirmed:
		return "send_confirmed"
	case EventSendFailed:
		return "send_failed"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Event is published on Client.Events for the UI layer.
type Event struct {
	Kind           EventKind
	ConversationID string
	State          realtime.ConnState
	Message        *model.Message // confirmed message for EventSendConfirmed
	Text           string         // restored composer text for EventSendFailed
	Err            error
}
