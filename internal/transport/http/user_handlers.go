package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/relay"
	"github.com/ijarahub/ijara-messaging/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// Profile returns the authenticated user.
// GET /profile
func (h *UserHandlers) Profile(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), uid)
	if err != nil {
		// A valid token for a deleted account.
		h.log.Debug().Err(err).Str("user_id", uid).Msg("profile lookup failed")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unknown user"})
		return
	}

	c.JSON(http.StatusOK, Envelope{Data: gin.H{"user": relay.UserView(user)}})
}
