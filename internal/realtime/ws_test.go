package realtime

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ijarahub/ijara-messaging/internal/proto"
)

// echoServer answers every frame that asks for an ack except "silent" ones,
// and greets each connection with a "hello" event.
type echoServer struct {
	connections atomic.Int32
	dropFirst   bool
	authHeader  atomic.Value
}

func (s *echoServer) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	s.authHeader.Store(r.Header.Get("Authorization"))
	n := s.connections.Add(1)
	ctx := r.Context()

	hello, _ := json.Marshal(map[string]int32{"connection": n})
	if err := wsjson.Write(ctx, conn, proto.Frame{Event: "hello", Data: hello}); err != nil {
		return
	}
	if s.dropFirst && n == 1 {
		conn.Close(websocket.StatusGoingAway, "restart")
		return
	}

	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}
		if frame.Ack == 0 || frame.Event == "silent" {
			continue
		}
		if err := wsjson.Write(ctx, conn, proto.Frame{Ack: frame.Ack, Data: frame.Data}); err != nil {
			return
		}
	}
}

func startEchoServer(t *testing.T, srv *echoServer) string {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return strings.Replace(ts.URL, "http", "ws", 1)
}

func connectChannel(t *testing.T, opts Options) *WSChannel {
	t.Helper()
	ch := NewWSChannel(opts)
	t.Cleanup(func() { _ = ch.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := WaitForState(ctx, ch, StateConnected); err != nil {
		t.Fatalf("wait connected: %v", err)
	}
	return ch
}

func TestEmitBeforeConnectIsUnavailable(t *testing.T) {
	ch := NewWSChannel(Options{URL: "ws://127.0.0.1:1"})

	if err := ch.Emit(context.Background(), proto.EventTypingStart, "c1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	called := false
	err := ch.EmitWithAck(context.Background(), proto.EventMessageRead, proto.ReadData{ConversationID: "c1"}, func(json.RawMessage, error) {
		called = true
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if called {
		t.Fatalf("ack callback must not run when emit fails")
	}
	if ch.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", ch.State())
	}
}

func TestInboundEventAndAckRoundTrip(t *testing.T) {
	srv := &echoServer{}
	url := startEchoServer(t, srv)

	ch := NewWSChannel(Options{URL: url, Token: "secret-token"})
	t.Cleanup(func() { _ = ch.Close() })

	hello := make(chan json.RawMessage, 1)
	ch.On("hello", func(data json.RawMessage) { hello <- data })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case data := <-hello:
		if !strings.Contains(string(data), `"connection":1`) {
			t.Fatalf("unexpected hello payload: %s", data)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("hello event not received")
	}

	if got := srv.authHeader.Load(); got != "Bearer secret-token" {
		t.Fatalf("unexpected auth header: %v", got)
	}

	acked := make(chan proto.ReadData, 1)
	err := ch.EmitWithAck(context.Background(), proto.EventMessageRead, proto.ReadData{ConversationID: "c9"}, func(data json.RawMessage, err error) {
		if err != nil {
			t.Errorf("unexpected ack error: %v", err)
			return
		}
		var payload proto.ReadData
		_ = json.Unmarshal(data, &payload)
		acked <- payload
	})
	if err != nil {
		t.Fatalf("emit with ack: %v", err)
	}

	select {
	case payload := <-acked:
		if payload.ConversationID != "c9" {
			t.Fatalf("unexpected ack payload: %+v", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("ack not received")
	}
}

func TestUnsubscribedHandlerIsNotCalled(t *testing.T) {
	srv := &echoServer{}
	url := startEchoServer(t, srv)

	ch := NewWSChannel(Options{URL: url})
	t.Cleanup(func() { _ = ch.Close() })

	var calls atomic.Int32
	unsubscribe := ch.On("hello", func(json.RawMessage) { calls.Add(1) })
	unsubscribe()

	seen := make(chan struct{}, 1)
	ch.On("hello", func(json.RawMessage) { seen <- struct{}{} })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	select {
	case <-seen:
	case <-time.After(3 * time.Second):
		t.Fatalf("hello event not received")
	}
	if calls.Load() != 0 {
		t.Fatalf("unsubscribed handler was called %d times", calls.Load())
	}
}

func TestAckTimeout(t *testing.T) {
	srv := &echoServer{}
	url := startEchoServer(t, srv)
	mock := clock.NewMock()

	ch := connectChannel(t, Options{URL: url, AckTimeout: time.Second, Clock: mock})

	result := make(chan error, 1)
	err := ch.EmitWithAck(context.Background(), "silent", map[string]string{"x": "y"}, func(_ json.RawMessage, err error) {
		result <- err
	})
	if err != nil {
		t.Fatalf("emit with ack: %v", err)
	}

	mock.Add(time.Second)

	select {
	case err := <-result:
		if !errors.Is(err, ErrAckTimeout) {
			t.Fatalf("expected ErrAckTimeout, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("ack timeout not reported")
	}
}

// stallWrites makes every write on ch block until release is closed, then
// fail with writeErr. started receives once per blocked write.
func stallWrites(ch *WSChannel, writeErr error) (started <-chan struct{}, release func()) {
	begun := make(chan struct{}, 4)
	gate := make(chan struct{})
	ch.write = func(context.Context, *websocket.Conn, any) error {
		begun <- struct{}{}
		<-gate
		return writeErr
	}
	return begun, func() { close(gate) }
}

func TestStalledWriteFailureDoesNotFireAck(t *testing.T) {
	srv := &echoServer{}
	url := startEchoServer(t, srv)
	mock := clock.NewMock()
	ch := connectChannel(t, Options{URL: url, AckTimeout: time.Second, Clock: mock})

	writeErr := errors.New("broken pipe")
	started, release := stallWrites(ch, writeErr)

	var calls atomic.Int32
	emitErr := make(chan error, 1)
	go func() {
		emitErr <- ch.EmitWithAck(context.Background(), proto.EventMessageSend, proto.SendData{ConversationID: "c1"}, func(json.RawMessage, error) {
			calls.Add(1)
		})
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("write never started")
	}
	mock.Add(5 * time.Second)
	release()

	select {
	case err := <-emitErr:
		if !errors.Is(err, writeErr) {
			t.Fatalf("expected write error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("emit did not return")
	}

	mock.Add(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("ack callback ran %d times after EmitWithAck returned an error", n)
	}
}

func TestDropDuringStalledWriteResolvesAckOnce(t *testing.T) {
	srv := &echoServer{}
	url := startEchoServer(t, srv)
	mock := clock.NewMock()
	ch := connectChannel(t, Options{URL: url, AckTimeout: time.Second, Clock: mock})

	started, release := stallWrites(ch, errors.New("connection reset"))

	results := make(chan error, 2)
	emitErr := make(chan error, 1)
	go func() {
		emitErr <- ch.EmitWithAck(context.Background(), proto.EventMessageSend, proto.SendData{ConversationID: "c1"}, func(_ json.RawMessage, err error) {
			results <- err
		})
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("write never started")
	}
	ch.failPendingAcks(ErrDisconnected)
	release()

	select {
	case err := <-emitErr:
		if err != nil {
			t.Fatalf("emit should defer to the resolved ack, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("emit did not return")
	}
	select {
	case err := <-results:
		if !errors.Is(err, ErrDisconnected) {
			t.Fatalf("expected ErrDisconnected, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ack callback not called")
	}

	mock.Add(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if n := len(results); n != 0 {
		t.Fatalf("ack callback ran again, %d extra results", n)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := &echoServer{dropFirst: true}
	url := startEchoServer(t, srv)

	ch := NewWSChannel(Options{URL: url, ReconnectMin: 10 * time.Millisecond, ReconnectMax: 50 * time.Millisecond})
	t.Cleanup(func() { _ = ch.Close() })

	states := make(chan ConnState, 16)
	ch.OnState(func(s ConnState) { states <- s })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	want := []ConnState{StateConnecting, StateConnected, StateDisconnected, StateConnecting, StateConnected}
	for i, w := range want {
		select {
		case s := <-states:
			if s != w {
				t.Fatalf("transition %d: expected %s, got %s", i, w, s)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("transition %d (%s) not observed", i, w)
		}
	}

	if srv.connections.Load() < 2 {
		t.Fatalf("expected a second connection, got %d", srv.connections.Load())
	}
}

func TestCloseStopsChannel(t *testing.T) {
	srv := &echoServer{}
	url := startEchoServer(t, srv)

	ch := connectChannel(t, Options{URL: url})
	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ch.State() != StateDisconnected {
		t.Fatalf("expected disconnected after close, got %s", ch.State())
	}
	if err := ch.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
