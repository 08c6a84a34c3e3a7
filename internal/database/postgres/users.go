package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-scan/internal/database"
)

// UserRepository provides PostgreSQL-backed user profile storage
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetUser retrieves a profile by user ID, returns nil if not found
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*database.UserLogin, error) {
	query := `
		SELECT user_id, email, is_subscribed, subscription_code, start_subscribed, end_subscribed
		FROM user_logins
		WHERE user_id = $1
	`

	var u database.UserLogin
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&u.UserID,
		&u.Email,
		&u.Subscription.IsSubscribed,
		&u.Subscription.SubscriptionCode,
		&u.Subscription.StartSubscribed,
		&u.Subscription.EndSubscribed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UpsertUser inserts a profile or replaces the stored one
func (r *UserRepository) UpsertUser(ctx context.Context, u database.UserLogin) error {
	query := `
		INSERT INTO user_logins (user_id, email, is_subscribed, subscription_code, start_subscribed, end_subscribed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			is_subscribed = EXCLUDED.is_subscribed,
			subscription_code = EXCLUDED.subscription_code,
			start_subscribed = EXCLUDED.start_subscribed,
			end_subscribed = EXCLUDED.end_subscribed,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		u.UserID,
		u.Email,
		u.Subscription.IsSubscribed,
		u.Subscription.SubscriptionCode,
		u.Subscription.StartSubscribed,
		u.Subscription.EndSubscribed,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
