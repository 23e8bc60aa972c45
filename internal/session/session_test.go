package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ijarahub/ijara-messaging/internal/api"
	"github.com/ijarahub/ijara-messaging/internal/auth"
	"github.com/ijarahub/ijara-messaging/internal/model"
)

type stubProfiles struct {
	user  model.User
	err   error
	calls int
}

func (s *stubProfiles) Profile(context.Context) (model.User, error) {
	s.calls++
	return s.user, s.err
}

func token(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte("s"), TTL: ttl}, userID, "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func TestCurrentUserResolvesProfile(t *testing.T) {
	profiles := &stubProfiles{user: model.User{ID: "u1", FirstName: "Layla"}}
	b := NewBootstrapper(profiles, token(t, "u1", time.Hour), nil)

	user, err := b.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.ID != "u1" || user.FirstName != "Layla" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestCurrentUserAuthFailures(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Now())

	tests := []struct {
		name      string
		token     string
		profiles  *stubProfiles
		wantFetch bool
	}{
		{name: "missing token", token: "", profiles: &stubProfiles{}},
		{name: "expired token", token: token(t, "u1", -time.Minute), profiles: &stubProfiles{}},
		{name: "malformed jwt", token: "a.b.c", profiles: &stubProfiles{}},
		{
			name:      "rejected by service",
			token:     "opaque-cookie-value",
			profiles:  &stubProfiles{err: &api.HTTPError{Status: 401}},
			wantFetch: true,
		},
		{
			name:      "token for another user",
			token:     token(t, "u1", time.Hour),
			profiles:  &stubProfiles{user: model.User{ID: "u2"}},
			wantFetch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBootstrapper(tt.profiles, tt.token, mock)
			_, err := b.CurrentUser(context.Background())
			if !errors.Is(err, ErrAuth) {
				t.Fatalf("expected ErrAuth, got %v", err)
			}
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthError, got %T", err)
			}
			if fetched := tt.profiles.calls > 0; fetched != tt.wantFetch {
				t.Fatalf("profile fetched=%v, want %v", fetched, tt.wantFetch)
			}
		})
	}
}

func TestCurrentUserNetworkErrorIsNotAuth(t *testing.T) {
	profiles := &stubProfiles{err: &api.HTTPError{Status: 502}}
	b := NewBootstrapper(profiles, "opaque", nil)

	_, err := b.CurrentUser(context.Background())
	if err == nil || errors.Is(err, ErrAuth) {
		t.Fatalf("expected non-auth error, got %v", err)
	}
	if !errors.Is(err, api.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}
