package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/proto"
	"github.com/ijarahub/ijara-messaging/internal/realtime"
)

type emitted struct {
	event   string
	payload any
}

type heldAck struct {
	event   string
	payload any
	fn      realtime.AckFunc
}

// ackResponder decides how the fake server answers an emit. hold=true keeps
// the callback pending until the test resolves it.
type ackResponder func(event string, payload any) (data any, err error, hold bool)

// fakeChannel is an in-memory realtime.Channel. Handlers and ack callbacks
// run synchronously on the caller's goroutine, never under the fake's lock.
type fakeChannel struct {
	mu        sync.Mutex
	state     realtime.ConnState
	handlers  map[string]map[int]realtime.Handler
	listeners map[int]func(realtime.ConnState)
	nextID    int
	emits     []emitted
	held      []heldAck
	respond   ackResponder
	closed    bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers:  make(map[string]map[int]realtime.Handler),
		listeners: make(map[int]func(realtime.ConnState)),
	}
}

func (f *fakeChannel) Connect(context.Context) error {
	f.setState(realtime.StateConnected)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) State() realtime.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) OnState(fn func(realtime.ConnState)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeChannel) On(event string, h realtime.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]realtime.Handler)
	}
	f.handlers[event][id] = h
	return func() {
		f.mu.Lock()
		delete(f.handlers[event], id)
		f.mu.Unlock()
	}
}

func (f *fakeChannel) Emit(_ context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != realtime.StateConnected {
		return realtime.ErrUnavailable
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) EmitWithAck(_ context.Context, event string, payload any, fn realtime.AckFunc) error {
	f.mu.Lock()
	if f.state != realtime.StateConnected {
		f.mu.Unlock()
		return realtime.ErrUnavailable
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		f.hold(event, payload, fn)
		return nil
	}
	data, err, hold := respond(event, payload)
	if hold {
		f.hold(event, payload, fn)
		return nil
	}
	fn(mustJSON(data), err)
	return nil
}

func (f *fakeChannel) hold(event string, payload any, fn realtime.AckFunc) {
	f.mu.Lock()
	f.held = append(f.held, heldAck{event: event, payload: payload, fn: fn})
	f.mu.Unlock()
}

// releaseAck answers the oldest held ack for event.
func (f *fakeChannel) releaseAck(t *testing.T, event string, data any, err error) {
	t.Helper()
	f.mu.Lock()
	idx := -1
	for i, h := range f.held {
		if h.event == event {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.mu.Unlock()
		t.Fatalf("no held ack for %s", event)
	}
	h := f.held[idx]
	f.held = append(f.held[:idx], f.held[idx+1:]...)
	f.mu.Unlock()

	h.fn(mustJSON(data), err)
}

func (f *fakeChannel) setResponder(r ackResponder) {
	f.mu.Lock()
	f.respond = r
	f.mu.Unlock()
}

func (f *fakeChannel) setState(s realtime.ConnState) {
	f.mu.Lock()
	f.state = s
	var fns []func(realtime.ConnState)
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// deliver simulates an inbound server event.
func (f *fakeChannel) deliver(event string, payload any) {
	f.mu.Lock()
	var hs []realtime.Handler
	for _, h := range f.handlers[event] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	data := mustJSON(payload)
	for _, h := range hs {
		h(data)
	}
}

func (f *fakeChannel) emitted(event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeChannel) resetEmits() {
	f.mu.Lock()
	f.emits = nil
	f.mu.Unlock()
}

type fakeSession struct {
	user model.User
	err  error
}

func (s fakeSession) CurrentUser(context.Context) (model.User, error) {
	return s.user, s.err
}

// fakeBackend serves conversations and histories from memory. A gate
// registered for a conversation blocks its history fetch until closed.
type fakeBackend struct {
	mu            sync.Mutex
	conversations []model.Conversation
	messages      map[string][]model.Message
	convErr       error
	convCalls     int
	gates         map[string]chan struct{}
	fetching      chan string
}

func newFakeBackend(convs ...model.Conversation) *fakeBackend {
	return &fakeBackend{
		conversations: convs,
		messages:      make(map[string][]model.Message),
		gates:         make(map[string]chan struct{}),
		fetching:      make(chan string, 16),
	}
}

func (b *fakeBackend) Conversations(context.Context) ([]model.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.convCalls++
	if b.convErr != nil {
		return nil, b.convErr
	}
	out := make([]model.Conversation, len(b.conversations))
	for i, c := range b.conversations {
		c.UnreadCount = copyUnread(c.UnreadCount)
		out[i] = c
	}
	return out, nil
}

func (b *fakeBackend) Messages(ctx context.Context, id string) ([]model.Message, error) {
	select {
	case b.fetching <- id:
	default:
	}
	b.mu.Lock()
	gate := b.gates[id]
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Message(nil), b.messages[id]...), nil
}

func (b *fakeBackend) markRead(conversationID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.conversations {
		if b.conversations[i].ID == conversationID {
			if b.conversations[i].UnreadCount == nil {
				b.conversations[i].UnreadCount = model.UnreadCounts{}
			}
			b.conversations[i].UnreadCount[userID] = 0
		}
	}
}

func (b *fakeBackend) setConvErr(err error) {
	b.mu.Lock()
	b.convErr = err
	b.mu.Unlock()
}

func (b *fakeBackend) conversationCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.convCalls
}

func copyUnread(in model.UnreadCounts) model.UnreadCounts {
	if in == nil {
		return nil
	}
	out := make(model.UnreadCounts, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

var errBoom = errors.New("boom")

var (
	alice = model.User{ID: "u-alice", FirstName: "Alice"}
	bob   = model.User{ID: "u-bob", FirstName: "Bob"}
	carol = model.User{ID: "u-carol", FirstName: "Carol"}
)

func directConversation(id string, other model.User, unreadForAlice int) model.Conversation {
	return model.Conversation{
		ID:           id,
		Participants: []model.User{alice, other},
		UnreadCount:  model.UnreadCounts{alice.ID: unreadForAlice, other.ID: 0},
	}
}

func textMessage(id, conversationID string, from, to model.User, at time.Time, content string) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         from,
		Receiver:       to,
		Content:        content,
		MessageType:    model.MessageTypeText,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// serverResponder acks sends with a server copy and read receipts with
// success, updating the backend like the real server does.
func serverResponder(b *fakeBackend, next func() string) ackResponder {
	return func(event string, payload any) (any, error, bool) {
		switch event {
		case proto.EventMessageSend:
			p := payload.(proto.SendData)
			now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
			msg := textMessage(next(), p.ConversationID, alice, model.User{ID: p.ReceiverID}, now, p.Content)
			msg.IsDelivered = true
			return proto.SendAck{Success: true, Message: &msg}, nil, false
		case proto.EventMessageRead:
			p := payload.(proto.ReadData)
			b.markRead(p.ConversationID, alice.ID)
			return proto.ReadAck{Success: true}, nil, false
		}
		return nil, nil, false
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func drainEvents(c *Client) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, kind EventKind) bool {
	for _, ev := range events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}
