package messaging

import "github.com/ijarahub/ijara-messaging/internal/model"

// ConversationStore holds the current user's conversation list in server
// order (most recent activity first). It is replaced wholesale on every
// refresh; there is no incremental patching.
type ConversationStore struct {
	list []model.Conversation
}

// Replace swaps in a freshly fetched list.
func (s *ConversationStore) Replace(list []model.Conversation) {
	s.list = append([]model.Conversation(nil), list...)
}

// List returns a copy of the list.
func (s *ConversationStore) List() []model.Conversation {
	return append([]model.Conversation(nil), s.list...)
}

// Find looks a conversation up by id.
func (s *ConversationStore) Find(id string) (model.Conversation, bool) {
	for _, c := range s.list {
		if c.ID == id {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// TotalUnread sums the unread counters of userID across all conversations.
func (s *ConversationStore) TotalUnread(userID string) int {
	total := 0
	for _, c := range s.list {
		total += UnreadFor(c, userID)
	}
	return total
}

// UnreadFor returns how many messages in conv userID has not read.
func UnreadFor(conv model.Conversation, userID string) int {
	return conv.UnreadCount.For(userID)
}
