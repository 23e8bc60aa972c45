package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ijarahub/ijara-messaging/internal/metrics"
	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/proto"
	"github.com/ijarahub/ijara-messaging/internal/realtime"
	"github.com/ijarahub/ijara-messaging/internal/utils"
)

// SetComposer replaces the composer text.
func (c *Client) SetComposer(text string) {
	c.mu.Lock()
	c.composer = text
	c.mu.Unlock()
}

// Composer returns the composer text.
func (c *Client) Composer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composer
}

// Submit sends the composer text to the active conversation.
//
// The message is shown immediately as a pending entry and the composer is
// cleared. A positive ack swaps in the server copy; a negative ack, an ack
// timeout or a dropped connection removes it and restores the composer text
// if the composer is still empty. Only one send may be in flight.
//
// Precondition failures return ErrEmptyMessage, ErrNoActiveConversation,
// ErrNoRecipient, ErrChannelUnavailable or ErrSendInFlight and change
// nothing.
func (c *Client) Submit(ctx context.Context) error {
	c.mu.Lock()
	content := strings.TrimSpace(c.composer)
	if content == "" {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	if c.active == "" {
		c.mu.Unlock()
		return ErrNoActiveConversation
	}
	conv, _ := c.conversations.Find(c.active)
	receiver, ok := conv.Other(c.me.ID)
	if !ok {
		c.mu.Unlock()
		return ErrNoRecipient
	}
	if c.channel.State() != realtime.StateConnected {
		c.mu.Unlock()
		return ErrChannelUnavailable
	}
	if c.inFlight != nil {
		c.mu.Unlock()
		return ErrSendInFlight
	}

	now := c.clock.Now()
	send := &pendingSend{
		tempID:         utils.NewID(),
		conversationID: c.active,
		text:           c.composer,
	}
	c.messages.AppendPending(send.tempID, model.Message{
		ID:             send.tempID,
		ConversationID: send.conversationID,
		Sender:         c.me,
		Receiver:       receiver,
		Content:        content,
		MessageType:    model.MessageTypeText,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	c.composer = ""
	c.inFlight = send
	c.publishLocked(Event{Kind: EventMessagesUpdated, ConversationID: send.conversationID})
	c.mu.Unlock()

	payload := proto.SendData{
		ConversationID: send.conversationID,
		ReceiverID:     receiver.ID,
		Content:        content,
		MessageType:    model.MessageTypeText,
	}
	err := c.channel.EmitWithAck(ctx, proto.EventMessageSend, payload, func(data json.RawMessage, err error) {
		c.resolveSend(send, data, err)
	})
	if err != nil {
		c.rollback(send, err)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

func (c *Client) resolveSend(send *pendingSend, data json.RawMessage, ackErr error) {
	if ackErr != nil {
		c.rollback(send, ackErr)
		return
	}
	var ack proto.SendAck
	if err := json.Unmarshal(data, &ack); err != nil {
		c.rollback(send, fmt.Errorf("decode ack: %w", err))
		return
	}
	if !ack.Success || ack.Message == nil || ack.Message.ID == "" {
		reason := ack.Error
		if reason == "" {
			reason = "rejected by server"
		}
		c.rollback(send, errors.New(reason))
		return
	}

	msg := *ack.Message
	c.mu.Lock()
	if c.inFlight == send {
		c.inFlight = nil
	}
	if c.active == send.conversationID && c.messages.Confirm(send.tempID, msg) {
		c.publishLocked(Event{Kind: EventMessagesUpdated, ConversationID: send.conversationID})
	}
	c.publishLocked(Event{Kind: EventSendConfirmed, ConversationID: send.conversationID, Message: &msg})
	c.mu.Unlock()

	metrics.SendsTotal.WithLabelValues("confirmed").Inc()
	c.log.Debug().Str("temp_id", send.tempID).Str("message_id", msg.ID).Msg("send confirmed")
}

func (c *Client) rollback(send *pendingSend, cause error) {
	err := fmt.Errorf("%w: %w", ErrSendFailed, cause)

	c.mu.Lock()
	if c.inFlight == send {
		c.inFlight = nil
	}
	if c.messages.Remove(model.PendingRef(send.tempID)) {
		c.publishLocked(Event{Kind: EventMessagesUpdated, ConversationID: send.conversationID})
	}
	if c.active == send.conversationID && strings.TrimSpace(c.composer) == "" {
		c.composer = send.text
	}
	c.publishLocked(Event{Kind: EventSendFailed, ConversationID: send.conversationID, Text: send.text, Err: err})
	c.mu.Unlock()

	metrics.SendsTotal.WithLabelValues("failed").Inc()
	c.log.Warn().Err(cause).Str("temp_id", send.tempID).Msg("send rolled back")
}
