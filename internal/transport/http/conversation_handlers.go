package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/relay"
	"github.com/ijarahub/ijara-messaging/internal/store"
)

// ConversationHandlers serves the conversation and message endpoints.
type ConversationHandlers struct {
	store store.Store
	dir   *relay.Directory
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, dir *relay.Directory, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store: st,
		dir:   dir,
		log:   logger,
	}
}

// StartConversationRequest names the other participant by id or email.
type StartConversationRequest struct {
	ParticipantID    string `json:"participantId"`
	ParticipantEmail string `json:"participantEmail"`
}

// ListConversations lists the caller's conversations, most recent first.
// GET /conversations
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	convs, err := h.store.ListConversationsForUser(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]model.Conversation, 0, len(convs))
	for _, conv := range convs {
		response = append(response, h.dir.Conversation(ctx, conv))
	}

	h.log.Debug().Str("user_id", uid).Int("conversation_count", len(convs)).Msg("conversations listed")
	c.JSON(http.StatusOK, Envelope{Data: gin.H{"conversations": response}})
}

// StartConversation finds or creates the direct conversation with another user.
// POST /conversations
func (h *ConversationHandlers) StartConversation(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	var (
		other *store.User
		err   error
	)
	switch {
	case req.ParticipantID != "":
		other, err = h.store.GetUserByID(ctx, req.ParticipantID)
	case req.ParticipantEmail != "":
		other, err = h.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.ParticipantEmail)))
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "participantId is required"})
		return
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "participant not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to look up participant")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if other.ID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start a conversation with yourself"})
		return
	}

	conv, err := h.store.FindOrCreateDirect(ctx, uid, other.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to start conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("conversation_id", conv.ID).Str("user_id", uid).Msg("conversation ready")
	c.JSON(http.StatusOK, Envelope{Data: gin.H{"conversation": h.dir.Conversation(ctx, *conv)}})
}

// ListMessages returns a conversation's history, oldest first.
// GET /messages/:conversationId
func (h *ConversationHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	conversationID := c.Param("conversationId")
	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return
		}
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !conv.HasParticipant(uid) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant of this conversation"})
		return
	}

	msgs, err := h.store.ListMessages(ctx, conversationID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, h.dir.Message(ctx, m))
	}
	c.JSON(http.StatusOK, Envelope{Data: gin.H{"messages": response}})
}
