// Package capture provides photo sources for the scan controller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kozaktomas/face-scan/internal/scan"
)

var (
	// ErrNotCapturing is returned when a photo is offered while the device is stopped.
	ErrNotCapturing = errors.New("capture device is not active")
	// ErrPhotoPending is returned when a photo is offered before the previous one was taken.
	ErrPhotoPending = errors.New("a photo is already waiting to be captured")
)

// File reads the front and side photos from disk.
type File struct {
	paths map[scan.Pose]string
}

// NewFile creates a capturer reading the given photo files.
func NewFile(frontPath, sidePath string) *File {
	return &File{paths: map[scan.Pose]string{
		scan.PoseFront: frontPath,
		scan.PoseSide:  sidePath,
	}}
}

// StartCapture verifies both files are readable regular files.
func (f *File) StartCapture(ctx context.Context) error {
	for pose, path := range f.paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%s photo: %w", pose, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s photo: %s is a directory", pose, path)
		}
	}
	return nil
}

// StopCapture is a no-op for files.
func (f *File) StopCapture(ctx context.Context) error {
	return nil
}

// CapturePhoto returns the content of the file configured for pose.
func (f *File) CapturePhoto(ctx context.Context, pose scan.Pose) ([]byte, error) {
	path, ok := f.paths[pose]
	if !ok {
		return nil, fmt.Errorf("no photo configured for pose %s", pose)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s photo: %w", pose, err)
	}
	return data, nil
}

// Push is a capture device fed from outside, e.g. by photos uploaded over HTTP.
// CapturePhoto takes the offered photo, waiting for one if none is pending.
type Push struct {
	mu     sync.Mutex
	active bool
	photos chan []byte
}

// NewPush creates a stopped push capturer.
func NewPush() *Push {
	return &Push{photos: make(chan []byte, 1)}
}

// StartCapture activates the device and drops any stale photo.
func (p *Push) StartCapture(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.drain()
	return nil
}

// StopCapture deactivates the device and drops any pending photo.
func (p *Push) StopCapture(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	p.drain()
	return nil
}

// Active reports whether the device accepts photos.
func (p *Push) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Offer hands a photo to the device.
func (p *Push) Offer(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return ErrNotCapturing
	}
	select {
	case p.photos <- data:
		return nil
	default:
		return ErrPhotoPending
	}
}

// CapturePhoto returns the next offered photo. The pose is decided by the controller.
func (p *Push) CapturePhoto(ctx context.Context, pose scan.Pose) ([]byte, error) {
	select {
	case data := <-p.photos:
		return data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s photo: %w", pose, ctx.Err())
	}
}

func (p *Push) drain() {
	for {
		select {
		case <-p.photos:
		default:
			return
		}
	}
}
