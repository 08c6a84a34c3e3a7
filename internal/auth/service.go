package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/database"
)

// IdentityProvider signs users in. IdentityClient is the production implementation.
type IdentityProvider interface {
	SignInWithIDToken(ctx context.Context, provider, idToken string) (*Identity, error)
	CurrentUser(ctx context.Context, accessToken string) (*User, error)
}

// Service signs users in and makes sure every signed in user has a stored profile.
type Service struct {
	identity IdentityProvider
	users    database.UserRepository
	log      logr.Logger
}

func NewService(identity IdentityProvider, users database.UserRepository, log logr.Logger) *Service {
	return &Service{identity: identity, users: users, log: log}
}

// SignIn exchanges a Google ID token for a session and loads (or creates) the
// user's profile.
func (s *Service) SignIn(ctx context.Context, idToken string) (*Identity, *database.UserLogin, error) {
	identity, err := s.identity.SignInWithIDToken(ctx, ProviderGoogle, idToken)
	if err != nil {
		return nil, nil, err
	}

	profile, err := s.RetrieveOrUpsertUser(ctx, database.UserLogin{
		UserID: identity.UserID,
		Email:  identity.Email,
	})
	if err != nil {
		return nil, nil, err
	}
	return identity, profile, nil
}

// CurrentUser returns the account behind an access token.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	return s.identity.CurrentUser(ctx, accessToken)
}

// RetrieveOrUpsertUser returns the stored profile of user.UserID when there is
// one. Otherwise it stores user with an inactive subscription and returns it.
func (s *Service) RetrieveOrUpsertUser(ctx context.Context, user database.UserLogin) (*database.UserLogin, error) {
	if user.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if s.users == nil {
		s.log.V(1).Info("no user repository configured, profile not stored", "user", user.UserID)
		return &user, nil
	}

	existing, err := s.users.GetUser(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("could not load user profile: %w", err)
	}
	if existing != nil {
		s.log.V(1).Info("existing account", "user", existing.UserID)
		return existing, nil
	}

	user.Subscription = database.Subscription{IsSubscribed: false}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("could not store user profile: %w", err)
	}
	s.log.Info("created user profile", "user", user.UserID)
	return &user, nil
}
