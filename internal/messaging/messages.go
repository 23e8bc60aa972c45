package messaging

import (
	"sort"

	"github.com/ijarahub/ijara-messaging/internal/model"
)

// Entry is one row of the message list.
type Entry struct {
	Ref     model.Ref
	Message model.Message
}

// MessageStore holds the message history of the active conversation.
//
// Confirmed ids are unique. Entries are kept in CreatedAt order, except that
// a pending entry keeps its slot: later arrivals are never placed above it.
type MessageStore struct {
	conversationID string
	entries        []Entry
}

// ConversationID returns the conversation the list belongs to.
func (s *MessageStore) ConversationID() string {
	return s.conversationID
}

// Len returns the number of entries.
func (s *MessageStore) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the list.
func (s *MessageStore) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Reset replaces the list with a fetched history. Pending entries survive a
// reload of the same conversation and are discarded when it changes.
func (s *MessageStore) Reset(conversationID string, history []model.Message) {
	var pending []Entry
	if conversationID == s.conversationID {
		for _, e := range s.entries {
			if e.Ref.Pending() {
				pending = append(pending, e)
			}
		}
	}

	sorted := append([]model.Message(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	s.conversationID = conversationID
	s.entries = make([]Entry, 0, len(sorted)+len(pending))
	seen := make(map[string]struct{}, len(sorted))
	for _, m := range sorted {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		s.entries = append(s.entries, Entry{Ref: model.ConfirmedRef(m.ID), Message: m})
	}
	for _, e := range pending {
		if _, dup := seen[e.Message.ID]; !dup {
			s.entries = append(s.entries, e)
		}
	}
}

// AppendIncoming adds a server message. It reports false when a message with
// the same id is already listed; delivery flags are merged forward then.
func (s *MessageStore) AppendIncoming(msg model.Message) bool {
	if i := s.index(model.ConfirmedRef(msg.ID)); i >= 0 {
		s.entries[i].Message.MergeDelivery(msg)
		return false
	}

	pos := len(s.entries)
	for pos > 0 {
		prev := s.entries[pos-1]
		if prev.Ref.Pending() || !prev.Message.CreatedAt.After(msg.CreatedAt) {
			break
		}
		pos--
	}
	s.insert(pos, Entry{Ref: model.ConfirmedRef(msg.ID), Message: msg})
	return true
}

// AppendPending adds an optimistic message at the end of the list.
func (s *MessageStore) AppendPending(tempID string, msg model.Message) {
	s.entries = append(s.entries, Entry{Ref: model.PendingRef(tempID), Message: msg})
}

// Confirm swaps the pending entry tempID for the server copy, in place. If
// the server copy already arrived through AppendIncoming, the pending entry
// is dropped instead. Reports false when tempID is not listed.
func (s *MessageStore) Confirm(tempID string, msg model.Message) bool {
	i := s.index(model.PendingRef(tempID))
	if i < 0 {
		return false
	}
	if j := s.index(model.ConfirmedRef(msg.ID)); j >= 0 {
		s.entries[j].Message.MergeDelivery(msg)
		s.removeAt(i)
		return true
	}
	s.entries[i] = Entry{Ref: model.ConfirmedRef(msg.ID), Message: msg}
	return true
}

// Remove deletes the entry identified by ref.
func (s *MessageStore) Remove(ref model.Ref) bool {
	i := s.index(ref)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	return true
}

// PendingCount returns the number of optimistic entries.
func (s *MessageStore) PendingCount() int {
	n := 0
	for _, e := range s.entries {
		if e.Ref.Pending() {
			n++
		}
	}
	return n
}

func (s *MessageStore) index(ref model.Ref) int {
	for i, e := range s.entries {
		if e.Ref == ref {
			return i
		}
	}
	return -1
}

func (s *MessageStore) insert(pos int, e Entry) {
	s.entries = append(s.entries, Entry{})
	copy(s.entries[pos+1:], s.entries[pos:])
	s.entries[pos] = e
}

func (s *MessageStore) removeAt(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}
