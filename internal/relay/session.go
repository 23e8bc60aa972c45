package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ijarahub/ijara-messaging/internal/proto"
	"github.com/ijarahub/ijara-messaging/internal/utils"
)

const (
	sessionBuffer = 32
	replyRetry    = 5 * time.Millisecond
)

// ErrSessionClosed is returned by Reply after the session was unregistered.
var ErrSessionClosed = errors.New("session closed")

// Session is one websocket connection of an authenticated user.
type Session struct {
	ID     string
	UserID string
	Events chan proto.Frame

	rooms   map[string]struct{}
	limiter *rateLimiter
	mu      sync.Mutex
	closed  bool
}

// NewSession constructs a session with initialized channels.
func NewSession(userID string, sendsPerMinute int) *Session {
	return &Session{
		ID:      utils.NewID(),
		UserID:  userID,
		Events:  make(chan proto.Frame, sessionBuffer),
		rooms:   make(map[string]struct{}),
		limiter: newRateLimiter(sendsPerMinute),
	}
}

// push queues a broadcast frame, dropping it for a slow consumer.
func (s *Session) push(f proto.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.Events <- f:
		return true
	default:
		return false
	}
}

// Reply queues an ack frame. Unlike broadcasts it waits for buffer space.
func (s *Session) Reply(ctx context.Context, f proto.Frame) error {
	for {
		if s.push(f) {
			return nil
		}
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return ErrSessionClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(replyRetry):
		}
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Events)
	}
}
