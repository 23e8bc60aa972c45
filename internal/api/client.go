// Package api is the REST client for the messaging service endpoints the
// module consumes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/model"
)

var (
	// ErrNetwork marks failed REST calls: transport errors and non-2xx answers.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized marks 401/403 answers.
	ErrUnauthorized = errors.New("unauthorized")
)

// HTTPError is a non-2xx answer from the service.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Is matches ErrNetwork for every status and ErrUnauthorized for 401/403.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return true
	case ErrUnauthorized:
		return e.Status == stdhttp.StatusUnauthorized || e.Status == stdhttp.StatusForbidden
	}
	return false
}

// Client talks to the REST side of the messaging service.
type Client struct {
	baseURL string
	token   string
	http    *stdhttp.Client
	log     *zerolog.Logger
}

// New builds a client. token may be empty for unauthenticated calls.
func New(baseURL, token string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &stdhttp.Client{Timeout: timeout},
		log:     logger,
	}
}

// Token returns the bearer token the client sends.
func (c *Client) Token() string {
	return c.token
}

// Conversations fetches GET /conversations.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var body struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, stdhttp.MethodGet, "/conversations", nil, &body); err != nil {
		return nil, err
	}
	return body.Conversations, nil
}

// Messages fetches GET /messages/:conversationId.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var body struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.do(ctx, stdhttp.MethodGet, "/messages/"+url.PathEscape(conversationID), nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// Profile fetches GET /profile.
func (c *Client) Profile(ctx context.Context) (model.User, error) {
	var body struct {
		User model.User `json:"user"`
	}
	if err := c.do(ctx, stdhttp.MethodGet, "/profile", nil, &body); err != nil {
		return model.User{}, err
	}
	return body.User, nil
}

// StartConversation asks the service for the direct conversation with
// participantID, creating it when missing.
func (c *Client) StartConversation(ctx context.Context, participantID string) (model.Conversation, error) {
	req := map[string]string{"participantId": participantID}
	var body struct {
		Conversation model.Conversation `json:"conversation"`
	}
	if err := c.do(ctx, stdhttp.MethodPost, "/conversations", req, &body); err != nil {
		return model.Conversation{}, err
	}
	return body.Conversation, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	req := map[string]string{"email": email, "password": password}
	var body struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, stdhttp.MethodPost, "/auth/login", req, &body); err != nil {
		return "", err
	}
	return body.Token, nil
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := stdhttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrNetwork, method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api request")

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrNetwork, method, path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode %s %s data: %v", ErrNetwork, method, path, err)
	}
	return nil
}
