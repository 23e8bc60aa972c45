package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/auth"
	"github.com/ijarahub/ijara-messaging/internal/config"
	"github.com/ijarahub/ijara-messaging/internal/relay"
	"github.com/ijarahub/ijara-messaging/internal/store"
	"github.com/ijarahub/ijara-messaging/internal/store/sqlite"
)

// testRelay is a dev relay served by httptest with an in-memory store.
type testRelay struct {
	server *httptest.Server
	store  store.Store
	auth   *auth.Service
	hub    *relay.Hub
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

func startTestRelay(t *testing.T) *testRelay {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret")
	disabledLogger := zerolog.Nop()
	hub := relay.NewHub(st, &disabledLogger)

	cfg := config.Default().Server
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second

	server := NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testRelay{server: ts, store: st, auth: authService, hub: hub}
}

func (r *testRelay) socketURL() string {
	return strings.Replace(r.server.URL, "http", "ws", 1) + "/socket"
}

// register creates a user and returns its id and token.
func (r *testRelay) register(t *testing.T, email, firstName string) (string, string) {
	t.Helper()
	user, token, err := r.auth.Register(context.Background(), auth.Registration{
		Email:     email,
		Password:  "password123",
		FirstName: firstName,
	})
	if err != nil {
		t.Fatalf("failed to register %s: %v", email, err)
	}
	return user.ID, token
}

func (r *testRelay) conversation(t *testing.T, a, b string) string {
	t.Helper()
	conv, err := r.store.FindOrCreateDirect(context.Background(), a, b)
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	return conv.ID
}
