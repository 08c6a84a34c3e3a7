package scan

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/database/mock"
)

type fakeCapturer struct {
	mu       sync.Mutex
	photos   map[Pose][]byte
	err      error
	startErr error
	started  int
	stopped  int
}

func newFakeCapturer(front, side []byte) *fakeCapturer {
	return &fakeCapturer{photos: map[Pose][]byte{PoseFront: front, PoseSide: side}}
}

func (f *fakeCapturer) StartCapture(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeCapturer) StopCapture(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeCapturer) CapturePhoto(ctx context.Context, pose Pose) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.photos[pose], nil
}

// fakeStorage records uploads and maps keys to the URL configured for their pose.
type fakeStorage struct {
	mu       sync.Mutex
	uploads  map[string][]byte
	urls     map[Pose]string
	failPose Pose
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		uploads: make(map[string][]byte),
		urls:    map[Pose]string{PoseFront: "u1", PoseSide: "u2"},
	}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, data []byte) error {
	if f.failPose != "" && strings.HasSuffix(key, "_"+string(f.failPose)+".jpg") {
		return errors.New("bucket unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = data
	return nil
}

func (f *fakeStorage) PublicURL(key string) string {
	for pose, url := range f.urls {
		if strings.HasSuffix(key, "_"+string(pose)+".jpg") {
			return url
		}
	}
	return ""
}

func (f *fakeStorage) uploaded() map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]byte, len(f.uploads))
	for k, v := range f.uploads {
		out[k] = v
	}
	return out
}

type fakeAnalyzer struct {
	landmarks map[string]float64
	err       error
	// block, when set, makes Analyze wait for it or for ctx cancellation
	block   chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	front []byte
	side  []byte
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, front, side []byte) (map[string]float64, error) {
	f.mu.Lock()
	f.front, f.side = front, side
	f.mu.Unlock()

	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.landmarks, nil
}

// slowHistoryStore holds its first ListRecent call until release is closed or
// ctx is cancelled. The rows are read before waiting, so a held call returns
// the history as it was when the call started, even after cancellation.
type slowHistoryStore struct {
	*mock.MockScanResultStore
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newSlowHistoryStore() *slowHistoryStore {
	return &slowHistoryStore{
		MockScanResultStore: mock.NewMockScanResultStore(),
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
}

func (s *slowHistoryStore) ListRecent(ctx context.Context, userID string) ([]database.ScanResult, error) {
	rows, err := s.MockScanResultStore.ListRecent(ctx, userID)

	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		close(s.entered)
		select {
		case <-s.release:
		case <-ctx.Done():
		}
	}
	return rows, err
}
