package messaging

import (
	"fmt"
	"net/url"
)

// DeepLinkParam is the query parameter that pre-selects a conversation.
const DeepLinkParam = "conversationId"

// ParseDeepLink extracts the deep-linked conversation id from raw and
// returns the link with the parameter removed, so it is applied only once.
func ParseDeepLink(raw string) (conversationID, stripped string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse deep link: %w", err)
	}
	q := u.Query()
	conversationID = q.Get(DeepLinkParam)
	q.Del(DeepLinkParam)
	u.RawQuery = q.Encode()
	return conversationID, u.String(), nil
}
