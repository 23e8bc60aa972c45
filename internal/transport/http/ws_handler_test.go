package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/proto"
)

func dialSocket(ctx context.Context, t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, event string, ack uint64, payload any) {
	t.Helper()
	data, _ := json.Marshal(payload)
	if err := wsjson.Write(ctx, conn, proto.Frame{Event: event, Data: data, Ack: ack}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil reads frames until match returns true.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(proto.Frame) bool) proto.Frame {
	t.Helper()
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(frame) {
			return frame
		}
	}
}

func isAck(id uint64) func(proto.Frame) bool {
	return func(f proto.Frame) bool { return f.IsAck() && f.Ack == id }
}

func isEvent(name string) func(proto.Frame) bool {
	return func(f proto.Frame) bool { return f.Event == name }
}

func TestSocketRejectsMissingToken(t *testing.T) {
	r := startTestRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, r.socketURL(), nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestSocketAcceptsQueryToken(t *testing.T) {
	r := startTestRelay(t)
	_, token := r.register(t, "renter@ijara.ae", "Rana")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, r.socketURL()+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestSocketSendAckAndBroadcast(t *testing.T) {
	r := startTestRelay(t)
	renterID, renterToken := r.register(t, "renter@ijara.ae", "Rana")
	ownerID, ownerToken := r.register(t, "owner@ijara.ae", "Omar")
	convID := r.conversation(t, renterID, ownerID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	renter := dialSocket(ctx, t, r.socketURL(), renterToken)
	owner := dialSocket(ctx, t, r.socketURL(), ownerToken)

	writeFrame(ctx, t, renter, proto.EventConversationJoin, 1, convID)
	readUntil(ctx, t, renter, isAck(1))
	writeFrame(ctx, t, owner, proto.EventConversationJoin, 1, convID)
	readUntil(ctx, t, owner, isAck(1))

	writeFrame(ctx, t, renter, proto.EventMessageSend, 2, proto.SendData{
		ConversationID: convID,
		ReceiverID:     ownerID,
		Content:        "Is the car available on Friday?",
		MessageType:    model.MessageTypeText,
	})

	ackFrame := readUntil(ctx, t, renter, isAck(2))
	var ack proto.SendAck
	if err := json.Unmarshal(ackFrame.Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Success || ack.Message == nil || ack.Message.ID == "" {
		t.Fatalf("unexpected ack: %s", ackFrame.Data)
	}

	frame := readUntil(ctx, t, owner, isEvent(proto.EventMessageNew))
	var msg model.Message
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.ID != ack.Message.ID || msg.Sender.ID != renterID || msg.Sender.FirstName != "Rana" {
		t.Fatalf("unexpected broadcast: %+v", msg)
	}

	writeFrame(ctx, t, owner, proto.EventTypingStart, 0, convID)
	typing := readUntil(ctx, t, renter, isEvent(proto.EventTypingStart))
	var td proto.TypingData
	if err := json.Unmarshal(typing.Data, &td); err != nil || td.UserID != ownerID {
		t.Fatalf("unexpected typing payload %s: %v", typing.Data, err)
	}

	writeFrame(ctx, t, owner, proto.EventMessageRead, 3, proto.ReadData{ConversationID: convID})
	readAck := readUntil(ctx, t, owner, isAck(3))
	var read proto.ReadAck
	if err := json.Unmarshal(readAck.Data, &read); err != nil || !read.Success {
		t.Fatalf("unexpected read ack %s: %v", readAck.Data, err)
	}
}

func TestSocketNegativeAcks(t *testing.T) {
	r := startTestRelay(t)
	renterID, renterToken := r.register(t, "renter@ijara.ae", "Rana")
	ownerID, _ := r.register(t, "owner@ijara.ae", "Omar")
	_, outsiderToken := r.register(t, "other@ijara.ae", "Zaid")
	convID := r.conversation(t, renterID, ownerID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outsider := dialSocket(ctx, t, r.socketURL(), outsiderToken)
	renter := dialSocket(ctx, t, r.socketURL(), renterToken)

	writeFrame(ctx, t, outsider, proto.EventMessageSend, 1, proto.SendData{ConversationID: convID, Content: "hi"})
	frame := readUntil(ctx, t, outsider, isAck(1))
	var ack proto.SendAck
	if err := json.Unmarshal(frame.Data, &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Success || ack.Error == "" {
		t.Fatalf("expected rejection, got %s", frame.Data)
	}

	writeFrame(ctx, t, renter, "car:book", 7, map[string]string{"carId": "c1"})
	frame = readUntil(ctx, t, renter, isAck(7))
	var unknown proto.ReadAck
	if err := json.Unmarshal(frame.Data, &unknown); err != nil || unknown.Success {
		t.Fatalf("expected negative ack for unknown event, got %s", frame.Data)
	}
}
