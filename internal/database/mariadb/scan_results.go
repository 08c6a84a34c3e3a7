package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-scan/internal/database"
)

const createScanResults = `
	CREATE TABLE IF NOT EXISTS scan_results (
		id             VARCHAR(64) NOT NULL PRIMARY KEY,
		user_id        VARCHAR(255) NOT NULL,
		front_face_url TEXT NOT NULL,
		side_face_url  TEXT NOT NULL,
		landmarks      LONGTEXT NOT NULL,
		timestamp_ms   BIGINT NOT NULL,
		INDEX idx_scan_results_user_timestamp (user_id, timestamp_ms)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`

// EnsureSchema creates the scan_results table if it does not exist yet
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createScanResults); err != nil {
		return fmt.Errorf("create scan_results table: %w", err)
	}
	return nil
}

// ScanResultRepository stores scan results in MariaDB
type ScanResultRepository struct {
	pool  *Pool
	limit int
}

// NewScanResultRepository creates a new MariaDB scan result repository
func NewScanResultRepository(pool *Pool) *ScanResultRepository {
	return &ScanResultRepository{pool: pool, limit: database.DefaultListLimit}
}

// Insert stores a new scan result
func (r *ScanResultRepository) Insert(ctx context.Context, result database.ScanResult) error {
	landmarks, err := json.Marshal(result.Landmarks)
	if err != nil {
		return fmt.Errorf("marshal landmarks: %w", err)
	}

	query := `INSERT INTO scan_results (id, user_id, front_face_url, side_face_url, landmarks, timestamp_ms) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.pool.db.ExecContext(ctx, query,
		result.ID, result.UserID, result.FrontFaceURL, result.SideFaceURL, string(landmarks), result.Timestamp,
	); err != nil {
		return fmt.Errorf("insert scan result: %w", err)
	}
	return nil
}

// Get retrieves a scan result by ID, returns nil if not found
func (r *ScanResultRepository) Get(ctx context.Context, id string) (*database.ScanResult, error) {
	query := `SELECT id, user_id, front_face_url, side_face_url, landmarks, timestamp_ms FROM scan_results WHERE id = ?`

	result, err := scanRow(r.pool.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan result: %w", err)
	}
	return result, nil
}

// ListRecent returns scan results ordered by timestamp descending.
// An empty userID lists results of all users.
func (r *ScanResultRepository) ListRecent(ctx context.Context, userID string) ([]database.ScanResult, error) {
	query := `SELECT id, user_id, front_face_url, side_face_url, landmarks, timestamp_ms FROM scan_results`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY timestamp_ms DESC, id LIMIT ?`
	args = append(args, r.limit)

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan results: %w", err)
	}
	defer rows.Close()

	var results []database.ScanResult
	for rows.Next() {
		result, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan result: %w", err)
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan results: %w", err)
	}
	return results, nil
}

func scanRow(row interface{ Scan(dest ...any) error }) (*database.ScanResult, error) {
	var (
		result    database.ScanResult
		landmarks string
	)
	if err := row.Scan(&result.ID, &result.UserID, &result.FrontFaceURL, &result.SideFaceURL, &landmarks, &result.Timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(landmarks), &result.Landmarks); err != nil {
		return nil, fmt.Errorf("unmarshal landmarks of %s: %w", result.ID, err)
	}
	return &result, nil
}
