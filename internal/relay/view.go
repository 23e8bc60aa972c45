package relay

import (
	"context"

	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/store"
)

// Directory turns stored records into the wire model with participants
// populated.
type Directory struct {
	users store.UserStore
}

// NewDirectory builds a directory over a user store.
func NewDirectory(users store.UserStore) *Directory {
	return &Directory{users: users}
}

// User resolves id. Unknown users are returned with the id only.
func (d *Directory) User(ctx context.Context, id string) model.User {
	u, err := d.users.GetUserByID(ctx, id)
	if err != nil {
		return model.User{ID: id}
	}
	return UserView(u)
}

// UserView converts a stored user.
func UserView(u *store.User) model.User {
	return model.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfileImage: u.ProfileImage,
	}
}

// Conversation converts a stored conversation.
func (d *Directory) Conversation(ctx context.Context, c store.Conversation) model.Conversation {
	out := model.Conversation{
		ID:           c.ID,
		Participants: []model.User{d.User(ctx, c.UserA), d.User(ctx, c.UserB)},
		UnreadCount:  model.UnreadCounts{c.UserA: 0, c.UserB: 0},
	}
	for id, n := range c.Unread {
		out.UnreadCount[id] = n
	}
	if c.LastMessageAt != nil {
		out.LastMessageAt = *c.LastMessageAt
		if c.LastMessageContent != nil {
			out.LastMessage = &model.LastMessage{Content: *c.LastMessageContent, CreatedAt: *c.LastMessageAt}
		}
	} else {
		out.LastMessageAt = c.CreatedAt
	}
	return out
}

// Message converts a stored message.
func (d *Directory) Message(ctx context.Context, m store.Message) model.Message {
	return model.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         d.User(ctx, m.SenderID),
		Receiver:       d.User(ctx, m.ReceiverID),
		Content:        m.Content,
		MessageType:    m.MessageType,
		IsDelivered:    m.IsDelivered,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
