// Package auth signs users in through the backend's identity service and keeps
// their profile in the user repository.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/face-scan/internal/backend"
)

// ProviderGoogle is the identity provider whose ID tokens clients send.
const ProviderGoogle = "google"

// ErrInvalidCredentials is returned when the identity service rejects a token.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is an account as reported by the identity service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Identity is the outcome of a successful sign in.
type Identity struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type idTokenRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// IdentityClient calls the identity REST API of the backend.
type IdentityClient struct {
	client *backend.Client
	now    func() time.Time
}

func NewIdentityClient(client *backend.Client) *IdentityClient {
	return &IdentityClient{client: client, now: time.Now}
}

// SignInWithIDToken exchanges an ID token issued by provider for a backend session.
func (c *IdentityClient) SignInWithIDToken(ctx context.Context, provider, idToken string) (*Identity, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty id token", ErrInvalidCredentials)
	}

	resp, err := backend.PostJSON[tokenResponse](ctx, c.client, "auth/v1/token?grant_type=id_token", "",
		idTokenRequest{Provider: provider, IDToken: idToken})
	if err != nil {
		if isRejected(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, errors.New("sign in failed: incomplete token response")
	}

	identity := &Identity{
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		identity.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return identity, nil
}

// CurrentUser returns the account the access token belongs to.
func (c *IdentityClient) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	user, err := backend.GetJSON[User](ctx, c.client, "auth/v1/user", accessToken)
	if err != nil {
		if isRejected(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("could not get current user: %w", err)
	}
	return user, nil
}

// isRejected reports whether the identity service refused the credentials
// rather than failing.
func isRejected(err error) bool {
	var statusErr *backend.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code == http.StatusBadRequest || backend.IsUnauthorizedError(err)
}
