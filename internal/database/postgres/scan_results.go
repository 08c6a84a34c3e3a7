package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-scan/internal/database"
)

// ScanResultRepository provides PostgreSQL-backed scan result storage
type ScanResultRepository struct {
	pool  *Pool
	limit int
}

// NewScanResultRepository creates a new PostgreSQL scan result repository
func NewScanResultRepository(pool *Pool) *ScanResultRepository {
	return &ScanResultRepository{pool: pool, limit: database.DefaultListLimit}
}

// Insert stores a new scan result
func (r *ScanResultRepository) Insert(ctx context.Context, result database.ScanResult) error {
	landmarks, err := json.Marshal(result.Landmarks)
	if err != nil {
		return fmt.Errorf("marshal landmarks: %w", err)
	}

	query := `
		INSERT INTO scan_results (id, user_id, front_face_url, side_face_url, landmarks, timestamp_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		result.ID,
		result.UserID,
		result.FrontFaceURL,
		result.SideFaceURL,
		landmarks,
		result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert scan result: %w", err)
	}
	return nil
}

// Get retrieves a scan result by ID, returns nil if not found
func (r *ScanResultRepository) Get(ctx context.Context, id string) (*database.ScanResult, error) {
	query := `
		SELECT id, user_id, front_face_url, side_face_url, landmarks, timestamp_ms
		FROM scan_results
		WHERE id = $1
	`

	result, err := scanResult(r.pool.QueryRow(ctx, query, id))
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
	query := `
		SELECT id, user_id, front_face_url, side_face_url, landmarks, timestamp_ms
		FROM scan_results
		WHERE ($1::text = '' OR user_id = $1::text)
		ORDER BY timestamp_ms DESC, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, r.limit)
	if err != nil {
		return nil, fmt.Errorf("query scan results: %w", err)
	}
	defer rows.Close()

	var results []database.ScanResult
	for rows.Next() {
		result, err := scanResult(rows)
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

type scannable interface {
	Scan(dest ...any) error
}

func scanResult(row scannable) (*database.ScanResult, error) {
	var (
		result    database.ScanResult
		landmarks []byte
	)
	if err := row.Scan(
		&result.ID,
		&result.UserID,
		&result.FrontFaceURL,
		&result.SideFaceURL,
		&landmarks,
		&result.Timestamp,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(landmarks, &result.Landmarks); err != nil {
		return nil, fmt.Errorf("unmarshal landmarks of %s: %w", result.ID, err)
	}
	return &result, nil
}
