// Package session resolves the authenticated user the messaging module runs
// as.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ijarahub/ijara-messaging/internal/api"
	"github.com/ijarahub/ijara-messaging/internal/auth"
	"github.com/ijarahub/ijara-messaging/internal/model"
)

// ErrAuth marks every failure to establish a valid session.
var ErrAuth = errors.New("authentication required")

// AuthError explains why no session could be established. It is not retried;
// the caller sends the user back to login.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

func (e *AuthError) Unwrap() error { return e.Err }

// ProfileFetcher is the slice of the REST client bootstrap needs.
type ProfileFetcher interface {
	Profile(ctx context.Context) (model.User, error)
}

// Bootstrapper resolves the current user once at module start.
type Bootstrapper struct {
	profiles ProfileFetcher
	token    string
	clock    clock.Clock
}

// NewBootstrapper builds a bootstrapper for the given bearer token.
func NewBootstrapper(profiles ProfileFetcher, token string, clk clock.Clock) *Bootstrapper {
	if clk == nil {
		clk = clock.New()
	}
	return &Bootstrapper{profiles: profiles, token: token, clock: clk}
}

// CurrentUser returns the signed-in user.
//
// A token that looks like a JWT is checked for expiry locally so an expired
// session fails fast; opaque tokens are left to the service.
func (b *Bootstrapper) CurrentUser(ctx context.Context) (model.User, error) {
	if strings.TrimSpace(b.token) == "" {
		return model.User{}, &AuthError{Reason: "no session token"}
	}

	var claimedID string
	if strings.Count(b.token, ".") == 2 {
		claims, err := auth.InspectToken(b.token)
		if err != nil {
			return model.User{}, &AuthError{Reason: "malformed session token", Err: err}
		}
		if claims.ExpiresAt != nil && !b.clock.Now().Before(claims.ExpiresAt.Time) {
			return model.User{}, &AuthError{Reason: "session expired at " + claims.ExpiresAt.Time.Format(time.RFC3339)}
		}
		claimedID = claims.UserID
	}

	user, err := b.profiles.Profile(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return model.User{}, &AuthError{Reason: "session rejected", Err: err}
		}
		return model.User{}, fmt.Errorf("fetch profile: %w", err)
	}
	if user.ID == "" {
		return model.User{}, &AuthError{Reason: "profile has no user id"}
	}
	if claimedID != "" && claimedID != user.ID {
		return model.User{}, &AuthError{Reason: "profile does not match session token"}
	}

	return user, nil
}
