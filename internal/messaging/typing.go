package messaging

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
)

// TypingTracker is the set of remote users typing in the active conversation.
//
// With a clock and a ttl set, every entry expires ttl after its latest
// start unless a stop removes it first; onExpire is then called with the
// user id and the entry generation, which Expire checks. The zero value
// keeps entries until they are removed.
type TypingTracker struct {
	clock    clock.Clock
	ttl      time.Duration
	onExpire func(userID string, gen uint64)

	gen   uint64
	users map[string]typingEntry
}

type typingEntry struct {
	gen   uint64
	timer *clock.Timer
}

// NewTypingTracker builds a tracker whose entries expire after ttl.
func NewTypingTracker(clk clock.Clock, ttl time.Duration, onExpire func(userID string, gen uint64)) TypingTracker {
	return TypingTracker{clock: clk, ttl: ttl, onExpire: onExpire}
}

// Add marks userID as typing and re-arms its expiry. Reports whether the
// set changed.
func (t *TypingTracker) Add(userID string) bool {
	if t.users == nil {
		t.users = make(map[string]typingEntry)
	}
	prev, existed := t.users[userID]
	if existed && prev.timer != nil {
		prev.timer.Stop()
	}

	t.gen++
	entry := typingEntry{gen: t.gen}
	if t.clock != nil && t.ttl > 0 && t.onExpire != nil {
		gen, expire := t.gen, t.onExpire
		entry.timer = t.clock.AfterFunc(t.ttl, func() { expire(userID, gen) })
	}
	t.users[userID] = entry
	return !existed
}

// Remove clears userID. Reports whether the set changed.
func (t *TypingTracker) Remove(userID string) bool {
	entry, ok := t.users[userID]
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(t.users, userID)
	return true
}

// Expire drops userID if its entry is still the one armed with gen.
// A start that arrived after the timer fired keeps the entry.
func (t *TypingTracker) Expire(userID string, gen uint64) bool {
	entry, ok := t.users[userID]
	if !ok || entry.gen != gen {
		return false
	}
	delete(t.users, userID)
	return true
}

// Clear empties the set and stops every expiry. Reports whether it was
// non-empty.
func (t *TypingTracker) Clear() bool {
	if len(t.users) == 0 {
		return false
	}
	for _, entry := range t.users {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	t.users = nil
	return true
}

// Has reports whether userID is typing.
func (t *TypingTracker) Has(userID string) bool {
	_, ok := t.users[userID]
	return ok
}

// Users returns the typing user ids, sorted.
func (t *TypingTracker) Users() []string {
	out := make([]string, 0, len(t.users))
	for id := range t.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
