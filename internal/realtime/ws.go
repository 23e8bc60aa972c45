package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/metrics"
	"github.com/ijarahub/ijara-messaging/internal/proto"
)

const (
	defaultAckTimeout   = 10 * time.Second
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second
	readLimit           = 1 << 20
	dispatchBuffer      = 64
)

// Options configures a WSChannel.
type Options struct {
	URL          string
	Token        string
	AckTimeout   time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Clock        clock.Clock
	Logger       *zerolog.Logger
}

type pendingAck struct {
	fn    AckFunc
	timer *clock.Timer
}

type stateListener struct {
	id uint64
	fn func(ConnState)
}

type eventHandler struct {
	id uint64
	fn Handler
}

// WSChannel is a Channel over a JSON-framed websocket. It redials with
// exponential backoff after every drop until Close.
type WSChannel struct {
	opts  Options
	clock clock.Clock
	log   *zerolog.Logger
	write func(ctx context.Context, conn *websocket.Conn, v any) error

	mu        sync.Mutex
	conn      *websocket.Conn
	state     ConnState
	started   bool
	closed    bool
	nextID    uint64
	nextAck   uint64
	listeners []stateListener
	handlers  map[string][]eventHandler
	acks      map[uint64]*pendingAck

	dispatch     chan func()
	stopDispatch chan struct{}
	cancel       context.CancelFunc
	done         chan struct{}
}

var _ Channel = (*WSChannel)(nil)

// NewWSChannel builds a channel; nothing is dialed until Connect.
func NewWSChannel(opts Options) *WSChannel {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = defaultReconnectMax
		if opts.ReconnectMax < opts.ReconnectMin {
			opts.ReconnectMax = opts.ReconnectMin
		}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &WSChannel{
		opts:         opts,
		clock:        opts.Clock,
		log:          logger,
		write:        wsjson.Write,
		state:        StateDisconnected,
		handlers:     make(map[string][]eventHandler),
		acks:         make(map[uint64]*pendingAck),
		dispatch:     make(chan func(), dispatchBuffer),
		stopDispatch: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Connect starts the dispatcher and the dial loop.
func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.dispatchLoop()
	go c.run(runCtx)
	return nil
}

// Close stops reconnection, closes the socket and fails pending acks.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	cancel := c.cancel
	c.mu.Unlock()

	if !started {
		return nil
	}

	cancel()
	<-c.done
	close(c.stopDispatch)
	return nil
}

// State returns the current connection state.
func (c *WSChannel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnState registers a state listener.
func (c *WSChannel) OnState(fn func(ConnState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, stateListener{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// On registers an inbound event handler.
func (c *WSChannel) On(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], eventHandler{id: id, fn: h})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.handlers[event]
		for i, eh := range list {
			if eh.id == id {
				c.handlers[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit sends an event without waiting for an answer.
func (c *WSChannel) Emit(ctx context.Context, event string, payload any) error {
	conn := c.connectedConn()
	if conn == nil {
		return ErrUnavailable
	}

	frame, err := newFrame(event, payload, 0)
	if err != nil {
		return err
	}
	if err := c.write(ctx, conn, frame); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// EmitWithAck sends an event and registers fn for its acknowledgement.
// The ack timeout starts once the frame is written; the write itself is
// bounded by the same timeout.
func (c *WSChannel) EmitWithAck(ctx context.Context, event string, payload any, fn AckFunc) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrUnavailable
	}
	conn := c.conn
	c.nextAck++
	id := c.nextAck
	frame, err := newFrame(event, payload, id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	pending := &pendingAck{fn: fn}
	c.acks[id] = pending
	c.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, c.opts.AckTimeout)
	err = c.write(writeCtx, conn, frame)
	cancel()
	if err != nil {
		if c.takeAck(id) == nil {
			// A drop during the write already resolved the ack with an
			// error; fn reports the outcome.
			c.log.Debug().Err(err).Str("event", event).Msg("write failed after ack was resolved")
			return nil
		}
		return fmt.Errorf("write %s: %w", event, err)
	}

	c.mu.Lock()
	if _, ok := c.acks[id]; ok {
		pending.timer = c.clock.AfterFunc(c.opts.AckTimeout, func() {
			c.resolveAck(id, nil, ErrAckTimeout)
		})
	}
	c.mu.Unlock()
	return nil
}

func newFrame(event string, payload any, ack uint64) (proto.Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return proto.Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return proto.Frame{Event: event, Data: data, Ack: ack}, nil
}

func (c *WSChannel) connectedConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil
	}
	return c.conn
}

func (c *WSChannel) run(ctx context.Context) {
	defer close(c.done)

	header := stdhttp.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	delay := c.opts.ReconnectMin
	for {
		c.setState(StateConnecting)

		conn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: header})
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Str("url", c.opts.URL).Dur("retry_in", delay).Msg("realtime dial failed")
			if !c.sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, c.opts.ReconnectMax)
			continue
		}
		conn.SetReadLimit(readLimit)
		delay = c.opts.ReconnectMin

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		c.log.Info().Str("url", c.opts.URL).Msg("realtime connected")

		err = c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.CloseNow()
		c.failPendingAcks(ErrDisconnected)
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("realtime connection lost")
		if !c.sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, c.opts.ReconnectMax)
	}
}

func (c *WSChannel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return err
			}
			c.log.Debug().Err(err).Msg("realtime read")
			return err
		}

		if frame.IsAck() {
			c.resolveAck(frame.Ack, frame.Data, nil)
			continue
		}
		if frame.Event == "" {
			continue
		}

		c.mu.Lock()
		list := append([]eventHandler(nil), c.handlers[frame.Event]...)
		c.mu.Unlock()
		if len(list) == 0 {
			c.log.Debug().Str("event", frame.Event).Msg("no handler for inbound event")
			continue
		}
		data := frame.Data
		c.enqueue(func() {
			for _, eh := range list {
				eh.fn(data)
			}
		})
	}
}

func (c *WSChannel) resolveAck(id uint64, data json.RawMessage, err error) {
	pending := c.takeAck(id)
	if pending == nil {
		return
	}
	c.enqueue(func() { pending.fn(data, err) })
}

func (c *WSChannel) takeAck(id uint64) *pendingAck {
	c.mu.Lock()
	pending, ok := c.acks[id]
	var timer *clock.Timer
	if ok {
		delete(c.acks, id)
		timer = pending.timer
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if timer != nil {
		timer.Stop()
	}
	return pending
}

func (c *WSChannel) failPendingAcks(err error) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.acks))
	for id := range c.acks {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.resolveAck(id, nil, err)
	}
}

func (c *WSChannel) setState(s ConnState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := append([]stateListener(nil), c.listeners...)
	c.mu.Unlock()

	metrics.ConnectionStateChanges.WithLabelValues(s.String()).Inc()
	c.enqueue(func() {
		for _, l := range listeners {
			l.fn(s)
		}
	})
}

func (c *WSChannel) enqueue(fn func()) {
	select {
	case c.dispatch <- fn:
	case <-c.stopDispatch:
	}
}

func (c *WSChannel) dispatchLoop() {
	for {
		select {
		case fn := <-c.dispatch:
			fn()
		case <-c.stopDispatch:
			// Drain what the run loop queued before stopping.
			for {
				select {
				case fn := <-c.dispatch:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (c *WSChannel) sleep(ctx context.Context, d time.Duration) bool {
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextDelay(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}
