package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-scan/internal/database"
)

const sessionColumns = "id, user_id, email, access_token, created_at, expires_at"

// SessionRepository keeps web sessions in the sessions table so signed in
// users survive a restart. Expiry is judged against the repository clock.
type SessionRepository struct {
	pool *Pool
	now  func() time.Time
}

func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool, now: time.Now}
}

// Save inserts the session or overwrites the stored copy.
func (r *SessionRepository) Save(ctx context.Context, s database.StoredSession) error {
	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			expires_at = EXCLUDED.expires_at`

	if _, err := r.pool.Exec(ctx, query, s.ID, s.UserID, s.Email, s.AccessToken, s.CreatedAt.UTC(), s.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("save session %s: %w", s.UserID, err)
	}
	return nil
}

// Get returns nil for unknown and expired sessions.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND expires_at > $2`,
		sessionID, r.now().UTC())

	s, err := scanSession(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func scanSession(row *sql.Row) (*database.StoredSession, error) {
	var s database.StoredSession
	if err := row.Scan(&s.ID, &s.UserID, &s.Email, &s.AccessToken, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired is run by the cleanup schedule.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
