package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/ijarahub/ijara-messaging/internal/proto"
	"github.com/ijarahub/ijara-messaging/internal/relay"
)

type failureAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// dispatch runs one inbound event and returns the ack payload, or nil when
// the event has nothing to acknowledge.
func (h *WSHandler) dispatch(ctx context.Context, s *relay.Session, frame proto.Frame) any {
	switch frame.Event {
	case proto.EventConversationJoin:
		id, err := conversationIDFrom(frame.Data)
		if err == nil {
			err = h.hub.Join(ctx, s, id)
		}
		if err != nil {
			return h.failure(frame.Event, err)
		}
		return proto.ReadAck{Success: true}

	case proto.EventMessageSend:
		var in proto.SendData
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			return h.failure(frame.Event, badPayload(err))
		}
		msg, err := h.hub.Send(ctx, s, in)
		if err != nil {
			return h.failure(frame.Event, err)
		}
		return proto.SendAck{Success: true, Message: &msg}

	case proto.EventMessageRead:
		id, err := conversationIDFrom(frame.Data)
		if err == nil {
			err = h.hub.MarkRead(ctx, s, id)
		}
		if err != nil {
			return h.failure(frame.Event, err)
		}
		return proto.ReadAck{Success: true}

	case proto.EventTypingStart, proto.EventTypingStop:
		id, err := conversationIDFrom(frame.Data)
		if err == nil {
			err = h.hub.Typing(ctx, s, id, frame.Event == proto.EventTypingStart)
		}
		if err != nil {
			h.log.Debug().Err(err).Str("event", frame.Event).Msg("typing dropped")
		}
		return nil

	default:
		h.log.Debug().Str("event", frame.Event).Msg("unknown socket event")
		return failureAck{Error: "unknown event", Code: relay.ErrCodeBadRequest}
	}
}

func (h *WSHandler) failure(event string, err error) failureAck {
	code := relay.Code(err)
	if code == relay.ErrCodeInternal {
		h.log.Error().Err(err).Str("event", event).Msg("socket event failed")
		return failureAck{Error: "internal server error", Code: code}
	}
	h.log.Debug().Err(err).Str("event", event).Msg("socket event rejected")
	return failureAck{Error: err.Error(), Code: code}
}

func ackFrame(id uint64, payload any) (proto.Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return proto.Frame{}, err
	}
	return proto.Frame{Ack: id, Data: data}, nil
}

// conversationIDFrom accepts a bare id string or {"conversationId": "..."}.
func conversationIDFrom(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return "", badPayload(err)
		}
		return id, nil
	}
	var obj proto.ReadData
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", badPayload(err)
	}
	return obj.ConversationID, nil
}

func badPayload(err error) error {
	return &relay.RelayError{Code: relay.ErrCodeBadRequest, Message: "malformed payload", Err: errors.Join(relay.ErrBadRequest, err)}
}

// metricEventLabel bounds label cardinality to the known event names.
func metricEventLabel(event string) string {
	switch event {
	case proto.EventConversationJoin, proto.EventMessageSend, proto.EventMessageRead,
		proto.EventTypingStart, proto.EventTypingStop:
		return event
	}
	return "unknown"
}
