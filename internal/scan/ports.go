package scan

import (
	"context"

	"github.com/kozaktomas/face-scan/internal/database"
)

// Capturer produces photos on request, standing in for a camera.
type Capturer interface {
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) error
	// CapturePhoto returns the photo for the given pose. Empty bytes count as a failure.
	CapturePhoto(ctx context.Context, pose Pose) ([]byte, error)
}

// ObjectStorage uploads photos and resolves their public URLs.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte) error
	PublicURL(key string) string
}

// Analyzer turns a front and a side photo into named facial measurements.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, front, side []byte) (map[string]float64, error)
}

// ResultStore persists completed scans.
type ResultStore interface {
	Insert(ctx context.Context, result database.ScanResult) error
	ListRecent(ctx context.Context, userID string) ([]database.ScanResult, error)
}
