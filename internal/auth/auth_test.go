package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-scan/internal/backend"
	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/database/mock"
)

func newTestIdentityClient(t *testing.T, handler http.HandlerFunc) *IdentityClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := backend.New(srv.URL, "project-key")
	require.NoError(t, err)
	ic := NewIdentityClient(client)
	ic.now = func() time.Time { return time.Unix(1000, 0) }
	return ic
}

func TestSignInWithIDToken(t *testing.T) {
	ic := newTestIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "id_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "project-key", r.Header.Get("apikey"))

		var body idTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, idTokenRequest{Provider: "google", IDToken: "google-token"}, body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at","token_type":"bearer","expires_in":3600,"refresh_token":"rt","user":{"id":"u1","email":"a@example.com"}}`)
	})

	identity, err := ic.SignInWithIDToken(context.Background(), ProviderGoogle, "google-token")
	require.NoError(t, err)
	assert.Equal(t, &Identity{
		UserID:       "u1",
		Email:        "a@example.com",
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Unix(1000+3600, 0),
	}, identity)
}

func TestSignInWithIDToken_Rejected(t *testing.T) {
	ic := newTestIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	})

	_, err := ic.SignInWithIDToken(context.Background(), ProviderGoogle, "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignInWithIDToken_ServerError(t *testing.T) {
	ic := newTestIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	_, err := ic.SignInWithIDToken(context.Background(), ProviderGoogle, "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignInWithIDToken_Empty(t *testing.T) {
	ic := newTestIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := ic.SignInWithIDToken(context.Background(), ProviderGoogle, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCurrentUser(t *testing.T) {
	ic := newTestIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"u1","email":"a@example.com"}`)
	})

	user, err := ic.CurrentUser(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "u1", Email: "a@example.com"}, user)

	_, err = ic.CurrentUser(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

type fakeIdentity struct {
	identity *Identity
	err      error
}

func (f *fakeIdentity) SignInWithIDToken(ctx context.Context, provider, idToken string) (*Identity, error) {
	return f.identity, f.err
}

func (f *fakeIdentity) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &User{ID: f.identity.UserID, Email: f.identity.Email}, nil
}

func TestService_SignInCreatesProfile(t *testing.T) {
	users := mock.NewMockUserRepository()
	svc := NewService(&fakeIdentity{identity: &Identity{UserID: "u1", Email: "a@example.com", AccessToken: "at"}}, users, logr.Discard())

	identity, profile, err := svc.SignIn(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "at", identity.AccessToken)
	assert.Equal(t, &database.UserLogin{UserID: "u1", Email: "a@example.com"}, profile)
	assert.False(t, profile.Subscription.IsSubscribed)

	stored, err := users.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, profile, stored)
}

func TestService_RetrieveExistingProfile(t *testing.T) {
	users := mock.NewMockUserRepository()
	existing := database.UserLogin{
		UserID: "u1",
		Email:  "old@example.com",
		Subscription: database.Subscription{
			IsSubscribed:     true,
			SubscriptionCode: "yearly",
			StartSubscribed:  "2026-01-01",
			EndSubscribed:    "2027-01-01",
		},
	}
	require.NoError(t, users.UpsertUser(context.Background(), existing))

	svc := NewService(&fakeIdentity{}, users, logr.Discard())
	profile, err := svc.RetrieveOrUpsertUser(context.Background(), database.UserLogin{UserID: "u1", Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, &existing, profile, "stored profile wins")
}

func TestService_SignInErrors(t *testing.T) {
	rejected := fmt.Errorf("%w: nope", ErrInvalidCredentials)
	svc := NewService(&fakeIdentity{err: rejected}, mock.NewMockUserRepository(), logr.Discard())
	_, _, err := svc.SignIn(context.Background(), "token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users := mock.NewMockUserRepository()
	users.UpsertUserError = errors.New("db down")
	svc = NewService(&fakeIdentity{identity: &Identity{UserID: "u1"}}, users, logr.Discard())
	_, _, err = svc.SignIn(context.Background(), "token")
	assert.ErrorContains(t, err, "db down")
}

func TestService_WithoutRepository(t *testing.T) {
	svc := NewService(&fakeIdentity{}, nil, logr.Discard())
	profile, err := svc.RetrieveOrUpsertUser(context.Background(), database.UserLogin{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", profile.UserID)

	_, err = svc.RetrieveOrUpsertUser(context.Background(), database.UserLogin{})
	assert.Error(t, err)
}
