// Package relay is the in-process realtime hub of the development server.
// It routes socket events between the sessions of conversation
// participants and persists messages through the store.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/metrics"
	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/proto"
	"github.com/ijarahub/ijara-messaging/internal/store"
)

// Hub tracks sessions by user and by joined conversation.
type Hub struct {
	store store.Store
	dir   *Directory
	log   *zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
	users map[string]map[*Session]struct{}
}

// NewHub creates a hub over st.
func NewHub(st store.Store, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store: st,
		dir:   NewDirectory(st),
		log:   logger,
		rooms: make(map[string]*Room),
		users: make(map[string]map[*Session]struct{}),
	}
}

// Directory exposes the hub's record-to-wire converter.
func (h *Hub) Directory() *Directory {
	return h.dir
}

// Register makes s reachable for messages addressed to its user.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		h.users[s.UserID] = set
	}
	set[s] = struct{}{}
	metrics.RelayConnections.Inc()
	h.log.Debug().Str("session_id", s.ID).Str("user_id", s.UserID).Msg("session registered")
}

// Unregister removes s from every room and closes its event channel.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range s.rooms {
		if room, ok := h.rooms[id]; ok {
			room.Remove(s)
			if room.Empty() {
				delete(h.rooms, id)
			}
		}
	}
	s.rooms = make(map[string]struct{})
	if set, ok := h.users[s.UserID]; ok {
		if _, member := set[s]; member {
			delete(set, s)
			metrics.RelayConnections.Dec()
		}
		if len(set) == 0 {
			delete(h.users, s.UserID)
		}
	}
	s.close()
	h.log.Debug().Str("session_id", s.ID).Str("user_id", s.UserID).Msg("session unregistered")
}

// Online reports whether userID has at least one session.
func (h *Hub) Online(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[userID]) > 0
}

// Join subscribes s to the conversation's room.
func (h *Hub) Join(ctx context.Context, s *Session, conversationID string) error {
	if _, err := h.participantConversation(ctx, s, conversationID); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = NewRoom(conversationID)
		h.rooms[conversationID] = room
	}
	if room.Add(s) {
		s.rooms[conversationID] = struct{}{}
		h.log.Debug().Str("user_id", s.UserID).Str("conversation_id", conversationID).Msg("joined conversation")
	}
	return nil
}

// Send persists a message from s and fans message:new out to the room, the
// receiver's sessions and the sender's other sessions.
func (h *Hub) Send(ctx context.Context, s *Session, in proto.SendData) (model.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return model.Message{}, relayError(ErrCodeBadRequest, "content is required", ErrBadRequest)
	}
	if !s.limiter.allow() {
		return model.Message{}, relayError(ErrCodeRateLimited, "too many messages", ErrRateLimited)
	}
	conv, err := h.participantConversation(ctx, s, in.ConversationID)
	if err != nil {
		return model.Message{}, err
	}
	receiver := conv.Other(s.UserID)
	if in.ReceiverID != "" && in.ReceiverID != receiver {
		return model.Message{}, relayError(ErrCodeBadRequest, "receiver is not in the conversation", ErrBadRequest)
	}
	messageType := in.MessageType
	if messageType == "" {
		messageType = model.MessageTypeText
	}

	saved, err := h.store.SaveMessage(ctx, store.NewMessage{
		ConversationID: conv.ID,
		SenderID:       s.UserID,
		ReceiverID:     receiver,
		Content:        content,
		MessageType:    messageType,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("save message: %w", err)
	}
	msg := h.dir.Message(ctx, *saved)

	data, err := json.Marshal(msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("encode message: %w", err)
	}
	frame := proto.Frame{Event: proto.EventMessageNew, Data: data}

	h.mu.Lock()
	targets := make(map[*Session]struct{})
	if room, ok := h.rooms[conv.ID]; ok {
		for member := range room.sessions {
			targets[member] = struct{}{}
		}
	}
	for _, userID := range []string{receiver, s.UserID} {
		for member := range h.users[userID] {
			targets[member] = struct{}{}
		}
	}
	for target := range targets {
		if !target.push(frame) {
			h.log.Warn().Str("session_id", target.ID).Msg("dropping message:new for slow session")
		}
	}
	h.mu.Unlock()

	h.log.Debug().
		Str("message_id", msg.ID).
		Str("conversation_id", conv.ID).
		Int("recipients", len(targets)).
		Msg("message relayed")
	return msg, nil
}

// MarkRead marks the conversation read for the user of s.
func (h *Hub) MarkRead(ctx context.Context, s *Session, conversationID string) error {
	if _, err := h.participantConversation(ctx, s, conversationID); err != nil {
		return err
	}
	n, err := h.store.MarkRead(ctx, conversationID, s.UserID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	h.log.Debug().Str("conversation_id", conversationID).Int64("updated", n).Msg("conversation read")
	return nil
}

// Typing relays a typing signal to the other participants in the room.
func (h *Hub) Typing(ctx context.Context, s *Session, conversationID string, start bool) error {
	if _, err := h.participantConversation(ctx, s, conversationID); err != nil {
		return err
	}
	event := proto.EventTypingStop
	if start {
		event = proto.EventTypingStart
	}
	data, err := json.Marshal(proto.TypingData{UserID: s.UserID, ConversationID: conversationID})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[conversationID]; ok {
		room.Broadcast(proto.Frame{Event: event, Data: data}, s.UserID)
	}
	return nil
}

func (h *Hub) participantConversation(ctx context.Context, s *Session, conversationID string) (*store.Conversation, error) {
	if conversationID == "" {
		return nil, relayError(ErrCodeBadRequest, "conversationId is required", ErrBadRequest)
	}
	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, relayError(ErrCodeNotFound, "conversation not found", ErrNotFound)
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(s.UserID) {
		return nil, relayError(ErrCodeNotParticipant, "not a participant of this conversation", ErrNotParticipant)
	}
	return conv, nil
}
