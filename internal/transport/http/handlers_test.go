package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ijarahub/ijara-messaging/internal/model"
)

func doJSON(t *testing.T, r *testRelay, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.server.Config.Handler.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v (%s)", err, resp.Body.String())
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("failed to unmarshal data: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := startTestRelay(t)

	resp, err := r.server.Client().Get(r.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := startTestRelay(t)

	resp := doJSON(t, r, http.MethodGet, "/metrics", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("ijara_relay_connections")) {
		t.Fatalf("relay gauge missing from /metrics")
	}
}

func TestRegisterLoginProfile(t *testing.T) {
	r := startTestRelay(t)

	resp := doJSON(t, r, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email: "Renter@Ijara.ae", Password: "password123", FirstName: "Rana",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, r, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email: "renter@ijara.ae", Password: "password123",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "renter@ijara.ae", Password: "wrong-password"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "renter@ijara.ae", Password: "password123"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var login AuthResponse
	decodeData(t, resp, &login)
	if login.Token == "" {
		t.Fatalf("empty token")
	}

	resp = doJSON(t, r, http.MethodGet, "/profile", login.Token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var profile struct {
		User model.User `json:"user"`
	}
	decodeData(t, resp, &profile)
	if profile.User.FirstName != "Rana" || profile.User.ID == "" {
		t.Fatalf("unexpected profile: %+v", profile.User)
	}

	resp = doJSON(t, r, http.MethodGet, "/profile", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
	resp = doJSON(t, r, http.MethodGet, "/profile", "not-a-token", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.Code)
	}
}

func TestConversationEndpoints(t *testing.T) {
	r := startTestRelay(t)
	renterID, renterToken := r.register(t, "renter@ijara.ae", "Rana")
	ownerID, ownerToken := r.register(t, "owner@ijara.ae", "Omar")
	_, outsiderToken := r.register(t, "other@ijara.ae", "Zaid")

	resp := doJSON(t, r, http.MethodPost, "/conversations", renterToken, StartConversationRequest{ParticipantEmail: "OWNER@ijara.ae"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var started struct {
		Conversation model.Conversation `json:"conversation"`
	}
	decodeData(t, resp, &started)
	if _, ok := started.Conversation.Other(renterID); !ok || len(started.Conversation.Participants) != 2 {
		t.Fatalf("unexpected conversation: %+v", started.Conversation)
	}

	// Find-or-create is symmetric.
	resp = doJSON(t, r, http.MethodPost, "/conversations", ownerToken, StartConversationRequest{ParticipantID: renterID})
	var again struct {
		Conversation model.Conversation `json:"conversation"`
	}
	decodeData(t, resp, &again)
	if again.Conversation.ID != started.Conversation.ID {
		t.Fatalf("expected the same conversation, got %s and %s", started.Conversation.ID, again.Conversation.ID)
	}

	resp = doJSON(t, r, http.MethodPost, "/conversations", renterToken, StartConversationRequest{ParticipantID: renterID})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self conversation, got %d", resp.Code)
	}
	resp = doJSON(t, r, http.MethodPost, "/conversations", renterToken, StartConversationRequest{ParticipantID: "ghost"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown participant, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodGet, "/conversations", ownerToken, nil)
	var list struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	decodeData(t, resp, &list)
	if len(list.Conversations) != 1 || list.Conversations[0].UnreadCount.For(ownerID) != 0 {
		t.Fatalf("unexpected list: %+v", list.Conversations)
	}

	path := "/messages/" + started.Conversation.ID
	resp = doJSON(t, r, http.MethodGet, path, renterToken, nil)
	var history struct {
		Messages []model.Message `json:"messages"`
	}
	decodeData(t, resp, &history)
	if history.Messages == nil || len(history.Messages) != 0 {
		t.Fatalf("expected an empty history array, got %s", resp.Body.String())
	}

	resp = doJSON(t, r, http.MethodGet, path, outsiderToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", resp.Code)
	}
	resp = doJSON(t, r, http.MethodGet, "/messages/missing", renterToken, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
