package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// LastMessage is the denormalized preview shown in the conversation list.
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a direct thread between exactly two participants.
type Conversation struct {
	ID            string       `json:"_id"`
	Participants  []User       `json:"participants"`
	LastMessage   *LastMessage `json:"lastMessage,omitempty"`
	LastMessageAt time.Time    `json:"lastMessageAt"`
	UnreadCount   UnreadCounts `json:"unreadCount"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) (User, bool) {
	for _, p := range c.Participants {
		if p.ID != "" && p.ID != userID {
			return p, true
		}
	}
	return User{}, false
}

// UnreadCounts maps user ids to the number of unread messages for that user.
//
// The server sends it either as a plain object ({"u1": 3}) or as a serialized
// keyed map: an array of [key, value] pairs or of {"key","value"} entries.
// Both decode to the same map.
type UnreadCounts map[string]int

// For returns the unread count for userID, never negative.
func (u UnreadCounts) For(userID string) int {
	if n := u[userID]; n > 0 {
		return n
	}
	return 0
}

// UnmarshalJSON normalizes every supported wire shape into the map.
func (u *UnreadCounts) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = nil
		return nil
	}

	out := make(UnreadCounts)
	switch data[0] {
	case '{':
		var obj map[string]json.Number
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("unread counts object: %w", err)
		}
		for k, v := range obj {
			n, err := v.Int64()
			if err != nil {
				return fmt.Errorf("unread count for %q: %w", k, err)
			}
			out[k] = int(n)
		}
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("unread counts entries: %w", err)
		}
		for _, raw := range entries {
			k, n, err := decodeUnreadEntry(raw)
			if err != nil {
				return err
			}
			out[k] = n
		}
	default:
		return fmt.Errorf("unread counts: unsupported shape %q", data[:1])
	}

	*u = out
	return nil
}

func decodeUnreadEntry(raw json.RawMessage) (string, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return "", 0, fmt.Errorf("unread entry: expected [key, value] pair")
		}
		var key string
		var n json.Number
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return "", 0, fmt.Errorf("unread entry key: %w", err)
		}
		if err := json.Unmarshal(pair[1], &n); err != nil {
			return "", 0, fmt.Errorf("unread entry value: %w", err)
		}
		v, err := n.Int64()
		if err != nil {
			return "", 0, fmt.Errorf("unread entry value: %w", err)
		}
		return key, int(v), nil
	}

	var entry struct {
		Key   string      `json:"key"`
		Value json.Number `json:"value"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", 0, fmt.Errorf("unread entry: %w", err)
	}
	v, err := entry.Value.Int64()
	if err != nil {
		return "", 0, fmt.Errorf("unread entry value: %w", err)
	}
	return entry.Key, int(v), nil
}
