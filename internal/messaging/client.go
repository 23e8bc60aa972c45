// Package messaging is the client-side messaging core: conversation list,
// active message history, optimistic sends, typing presence and unread
// counters, kept consistent across REST fetches and realtime events.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/metrics"
	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/proto"
	"github.com/ijarahub/ijara-messaging/internal/realtime"
)

const (
	defaultTypingStopDelay = time.Second
	defaultRemoteTypingTTL = 5 * time.Second
	defaultEventBuffer     = 64
)

// Backend is the REST surface the client reads from.
type Backend interface {
	Conversations(ctx context.Context) ([]model.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// Session resolves the signed-in user.
type Session interface {
	CurrentUser(ctx context.Context) (model.User, error)
}

// Options configures a Client.
type Options struct {
	Backend Backend
	Session Session
	Channel realtime.Channel

	// InitialConversationID is a deep-linked conversation selected once after
	// the first conversation load.
	InitialConversationID string
	// TypingStopDelay is the quiet period after the last keystroke before
	// typing:stop is emitted.
	TypingStopDelay time.Duration
	// RemoteTypingTimeout drops a remote typing entry when no typing:stop
	// arrives within it after the latest typing:start.
	RemoteTypingTimeout time.Duration
	EventBuffer         int
	Clock               clock.Clock
	Logger              *zerolog.Logger
}

type pendingSend struct {
	tempID         string
	conversationID string
	text           string
}

type typingBurst struct {
	conversationID string
	gen            int
	timer          *clock.Timer
}

// Client owns the messaging state of one signed-in user.
//
// The mutex guards state only; it is never held while calling the channel
// or the backend, since channel callbacks re-enter the client.
type Client struct {
	backend     Backend
	session     Session
	channel     realtime.Channel
	clock       clock.Clock
	log         *zerolog.Logger
	typingDelay time.Duration

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	me            model.User
	conversations ConversationStore
	messages      MessageStore
	typing        TypingTracker
	active        string
	composer      string
	inFlight      *pendingSend
	localTyping   *typingBurst
	deepLink      string
	unsubscribe   []func()
	events        chan Event
	closed        bool
}

// New builds a client. Start must be called before use.
func New(opts Options) *Client {
	if opts.TypingStopDelay <= 0 {
		opts.TypingStopDelay = defaultTypingStopDelay
	}
	if opts.RemoteTypingTimeout <= 0 {
		opts.RemoteTypingTimeout = defaultRemoteTypingTTL
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		backend:     opts.Backend,
		session:     opts.Session,
		channel:     opts.Channel,
		clock:       opts.Clock,
		log:         opts.Logger,
		typingDelay: opts.TypingStopDelay,
		ctx:         ctx,
		cancel:      cancel,
		deepLink:    opts.InitialConversationID,
		events:      make(chan Event, opts.EventBuffer),
	}
	c.typing = NewTypingTracker(opts.Clock, opts.RemoteTypingTimeout, c.expireTyping)
	return c
}

// Start resolves the current user, subscribes to realtime events, connects
// the channel and loads the conversation list. An auth failure is returned
// as is (errors.Is(err, ErrAuth)); a failed first load is only a notice.
func (c *Client) Start(ctx context.Context) error {
	me, err := c.session.CurrentUser(ctx)
	if err != nil {
		c.notice(err)
		return err
	}

	c.mu.Lock()
	c.me = me
	c.unsubscribe = append(c.unsubscribe,
		c.channel.On(proto.EventMessageNew, c.handleMessageNew),
		c.channel.On(proto.EventTypingStart, c.handleTyping(true)),
		c.channel.On(proto.EventTypingStop, c.handleTyping(false)),
		c.channel.OnState(c.handleState),
	)
	c.mu.Unlock()

	c.log.Info().Str("user_id", me.ID).Msg("session established")

	if err := c.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime channel: %w", err)
	}

	_ = c.LoadConversations(ctx)

	c.mu.Lock()
	target := c.deepLink
	c.deepLink = ""
	c.mu.Unlock()

	if target != "" {
		if _, err := c.SelectConversation(ctx, target); err != nil {
			c.log.Warn().Err(err).Str("conversation_id", target).Msg("deep link not applied")
			c.notice(fmt.Errorf("open conversation %s: %w", target, err))
		}
	}
	return nil
}

// Close stops the client and the realtime channel. Events is closed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	if c.localTyping != nil {
		c.localTyping.timer.Stop()
		c.localTyping = nil
	}
	c.typing.Clear()
	close(c.events)
	c.mu.Unlock()

	c.cancel()
	for _, fn := range unsubscribe {
		fn()
	}
	return c.channel.Close()
}

// Events delivers state-change notifications. Slow readers miss events
// rather than stall the client; the accessors always hold the latest state.
func (c *Client) Events() <-chan Event {
	return c.events
}

// LoadConversations fetches the conversation list and replaces the store.
// On failure the previous list stays and a notice is published.
func (c *Client) LoadConversations(ctx context.Context) error {
	list, err := c.backend.Conversations(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("load conversations failed")
		c.notice(fmt.Errorf("load conversations: %w", err))
		return err
	}

	c.mu.Lock()
	c.conversations.Replace(list)
	c.publishLocked(Event{Kind: EventConversationsUpdated})
	c.mu.Unlock()
	return nil
}

// SelectConversation makes id the active conversation: joins its realtime
// room, loads its history and marks it read. Selecting the active
// conversation again rejoins and reloads.
func (c *Client) SelectConversation(ctx context.Context, id string) (model.Conversation, error) {
	c.mu.Lock()
	conv, ok := c.conversations.Find(id)
	if !ok {
		c.mu.Unlock()
		return model.Conversation{}, ErrConversationNotFound
	}
	var flush *typingBurst
	if c.active != id {
		c.active = id
		c.messages.Reset(id, nil)
		flush = c.takeLocalTypingLocked()
		c.publishLocked(Event{Kind: EventActiveChanged, ConversationID: id})
		if c.typing.Clear() {
			c.publishLocked(Event{Kind: EventTypingChanged, ConversationID: id})
		}
		c.publishLocked(Event{Kind: EventMessagesUpdated, ConversationID: id})
	}
	c.mu.Unlock()

	if flush != nil {
		c.emitTyping(ctx, proto.EventTypingStop, flush.conversationID)
	}
	c.join(ctx, id)

	if err := c.loadMessages(ctx, id); err != nil {
		return conv, err
	}
	return conv, nil
}

func (c *Client) loadMessages(ctx context.Context, id string) error {
	history, err := c.backend.Messages(ctx, id)
	if err != nil {
		c.log.Warn().Err(err).Str("conversation_id", id).Msg("load messages failed")
		c.notice(fmt.Errorf("load messages: %w", err))
		return err
	}

	c.mu.Lock()
	if c.active != id {
		c.mu.Unlock()
		c.log.Debug().Str("conversation_id", id).Msg("discarding stale message load")
		return nil
	}
	c.messages.Reset(id, history)
	c.publishLocked(Event{Kind: EventMessagesUpdated, ConversationID: id})
	c.mu.Unlock()

	c.markRead(ctx, id)
	return nil
}

func (c *Client) join(ctx context.Context, id string) {
	err := c.channel.Emit(ctx, proto.EventConversationJoin, id)
	if err != nil {
		// Rejoined from handleState once connected.
		c.log.Debug().Err(err).Str("conversation_id", id).Msg("join deferred")
	}
}

func (c *Client) markRead(ctx context.Context, id string) {
	if c.channel.State() != realtime.StateConnected {
		return
	}
	err := c.channel.EmitWithAck(ctx, proto.EventMessageRead, proto.ReadData{ConversationID: id}, func(data json.RawMessage, err error) {
		if err != nil {
			c.log.Debug().Err(err).Str("conversation_id", id).Msg("read receipt not acknowledged")
			return
		}
		var ack proto.ReadAck
		if err := json.Unmarshal(data, &ack); err != nil || !ack.Success {
			c.log.Debug().Str("conversation_id", id).Str("error", ack.Error).Msg("read receipt rejected")
			return
		}
		_ = c.LoadConversations(c.ctx)
	})
	if err != nil {
		c.log.Debug().Err(err).Str("conversation_id", id).Msg("read receipt not sent")
	}
}

func (c *Client) handleMessageNew(data json.RawMessage) {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.ID == "" {
		c.log.Warn().Err(err).Msg("dropping malformed message:new")
		return
	}
	metrics.InboundMessagesTotal.Inc()

	c.mu.Lock()
	if msg.ConversationID == c.active && c.messages.AppendIncoming(msg) {
		c.publishLocked(Event{Kind: EventMessagesUpdated, ConversationID: c.active})
	}
	c.mu.Unlock()

	_ = c.LoadConversations(c.ctx)
}

func (c *Client) handleTyping(start bool) realtime.Handler {
	return func(data json.RawMessage) {
		var td proto.TypingData
		if err := json.Unmarshal(data, &td); err != nil || td.UserID == "" {
			c.log.Debug().Err(err).Msg("dropping malformed typing event")
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || td.UserID == c.me.ID || c.active == "" {
			return
		}
		if td.ConversationID != "" && td.ConversationID != c.active {
			return
		}
		changed := false
		if start {
			changed = c.typing.Add(td.UserID)
		} else {
			changed = c.typing.Remove(td.UserID)
		}
		if changed {
			c.publishLocked(Event{Kind: EventTypingChanged, ConversationID: c.active})
		}
	}
}

func (c *Client) expireTyping(userID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.typing.Expire(userID, gen) {
		c.log.Debug().Str("user_id", userID).Msg("remote typing expired without stop")
		c.publishLocked(Event{Kind: EventTypingChanged, ConversationID: c.active})
	}
}

func (c *Client) handleState(s realtime.ConnState) {
	c.mu.Lock()
	active := c.active
	c.publishLocked(Event{Kind: EventConnectionChanged, State: s})
	// Stops sent while the socket was down are never replayed.
	if s == realtime.StateDisconnected && c.typing.Clear() {
		c.publishLocked(Event{Kind: EventTypingChanged, ConversationID: active})
	}
	c.mu.Unlock()

	if s == realtime.StateConnected && active != "" {
		c.join(c.ctx, active)
	}
}

// OnLocalTyping is called on every composer keystroke. The first call of a
// burst emits typing:start; typing:stop follows once no call arrived for
// TypingStopDelay.
func (c *Client) OnLocalTyping(ctx context.Context) {
	if c.channel.State() != realtime.StateConnected {
		return
	}

	c.mu.Lock()
	if c.closed || c.active == "" {
		c.mu.Unlock()
		return
	}
	conv := c.active
	start := false
	burst := c.localTyping
	if burst == nil || burst.conversationID != conv {
		burst = &typingBurst{conversationID: conv}
		c.localTyping = burst
		start = true
	} else {
		burst.timer.Stop()
	}
	burst.gen++
	gen := burst.gen
	burst.timer = c.clock.AfterFunc(c.typingDelay, func() { c.finishTyping(burst, gen) })
	c.mu.Unlock()

	if start {
		c.emitTyping(ctx, proto.EventTypingStart, conv)
	}
}

func (c *Client) finishTyping(burst *typingBurst, gen int) {
	c.mu.Lock()
	if c.localTyping != burst || burst.gen != gen {
		c.mu.Unlock()
		return
	}
	c.localTyping = nil
	c.mu.Unlock()

	c.emitTyping(c.ctx, proto.EventTypingStop, burst.conversationID)
}

// takeLocalTypingLocked ends the current burst without emitting.
func (c *Client) takeLocalTypingLocked() *typingBurst {
	burst := c.localTyping
	if burst == nil {
		return nil
	}
	burst.timer.Stop()
	c.localTyping = nil
	return burst
}

func (c *Client) emitTyping(ctx context.Context, event, conversationID string) {
	err := c.channel.Emit(ctx, event, conversationID)
	if err != nil {
		c.log.Debug().Err(err).Str("event", event).Msg("typing event not sent")
	}
}

func (c *Client) notice(err error) {
	c.mu.Lock()
	c.publishLocked(Event{Kind: EventNotice, Err: err})
	c.mu.Unlock()
}

// publishLocked drops the event when the buffer is full.
func (c *Client) publishLocked(ev Event) {
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Debug().Stringer("kind", ev.Kind).Msg("event buffer full, dropping")
	}
}

// Me returns the signed-in user.
func (c *Client) Me() model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.me
}

// ActiveConversationID returns the selected conversation, or "".
func (c *Client) ActiveConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Conversations returns the conversation list.
func (c *Client) Conversations() []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversations.List()
}

// Conversation looks up one conversation.
func (c *Client) Conversation(id string) (model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversations.Find(id)
}

// Unread returns the current user's unread counter for a conversation.
func (c *Client) Unread(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations.Find(conversationID)
	if !ok {
		return 0
	}
	return UnreadFor(conv, c.me.ID)
}

// TotalUnread sums the current user's unread counters.
func (c *Client) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversations.TotalUnread(c.me.ID)
}

// Messages returns the active conversation's entries.
func (c *Client) Messages() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.Entries()
}

// TypingUsers returns the remote users typing in the active conversation.
func (c *Client) TypingUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing.Users()
}

// ConnectionState reports the realtime channel state.
func (c *Client) ConnectionState() realtime.ConnState {
	return c.channel.State()
}
