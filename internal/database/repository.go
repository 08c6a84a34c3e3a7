package database

import (
	"context"
)

// ScanResultReader provides read-only access to stored scan results
type ScanResultReader interface {
	// ListRecent returns results ordered by timestamp, newest first.
	// An empty userID lists the results of every user.
	ListRecent(ctx context.Context, userID string) ([]ScanResult, error)
	// Get retrieves a result by ID, returns nil if not found
	Get(ctx context.Context, id string) (*ScanResult, error)
}

// ScanResultWriter provides write access to scan results
type ScanResultWriter interface {
	ScanResultReader

	// Insert stores a new result. Results are immutable, so inserting an existing ID fails.
	Insert(ctx context.Context, result ScanResult) error
}

// UserRepository stores user profiles keyed by the identity provider's user ID
type UserRepository interface {
	// GetUser returns nil if the user has no stored profile
	GetUser(ctx context.Context, userID string) (*UserLogin, error)
	// UpsertUser inserts the profile or replaces the stored one
	UpsertUser(ctx context.Context, user UserLogin) error
}

// SessionRepository persists web sessions
type SessionRepository interface {
	Save(ctx context.Context, session StoredSession) error
	// Get returns nil if the session is not found or expired
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired removes all expired sessions and returns the count deleted
	DeleteExpired(ctx context.Context) (int64, error)
}
