package messaging

import (
	"errors"

	"github.com/ijarahub/ijara-messaging/internal/api"
	"github.com/ijarahub/ijara-messaging/internal/realtime"
	"github.com/ijarahub/ijara-messaging/internal/session"
)

// Error taxonomy. Concrete errors from the collaborators wrap these, so
// callers classify with errors.Is.
var (
	// ErrAuth: no valid session; the caller sends the user to login.
	ErrAuth = session.ErrAuth
	// ErrNetwork: a REST fetch failed; previous data stays visible.
	ErrNetwork = api.ErrNetwork
	// ErrChannelUnavailable: the realtime channel is not connected.
	ErrChannelUnavailable = realtime.ErrUnavailable
	// ErrSendFailed: the server rejected or never acknowledged a send.
	ErrSendFailed = errors.New("send failed")
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrNoRecipient          = errors.New("conversation has no other participant")
	ErrSendInFlight         = errors.New("previous message still sending")
)
