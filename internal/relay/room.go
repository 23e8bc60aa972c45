package relay

import "github.com/ijarahub/ijara-messaging/internal/proto"

// Room groups the sessions that joined one conversation.
type Room struct {
	ConversationID string
	sessions       map[*Session]struct{}
}

// NewRoom constructs a room with no sessions.
func NewRoom(conversationID string) *Room {
	return &Room{
		ConversationID: conversationID,
		sessions:       make(map[*Session]struct{}),
	}
}

// Add inserts a session into the room. Returns true if newly added.
func (r *Room) Add(s *Session) bool {
	if _, exists := r.sessions[s]; exists {
		return false
	}
	r.sessions[s] = struct{}{}
	return true
}

// Remove deletes a session from the room. Returns true if removed.
func (r *Room) Remove(s *Session) bool {
	if _, exists := r.sessions[s]; !exists {
		return false
	}
	delete(r.sessions, s)
	return true
}

// Broadcast sends a frame to every session in the room whose user is not
// exceptUser.
func (r *Room) Broadcast(f proto.Frame, exceptUser string) {
	for s := range r.sessions {
		if exceptUser != "" && s.UserID == exceptUser {
			continue
		}
		s.push(f)
	}
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.sessions) == 0
}
