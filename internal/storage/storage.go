// Package storage uploads scan photos and resolves their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-scan/internal/backend"
	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/constants"
)

var (
	// ErrInvalidKey is returned for object keys that are empty or escape the bucket.
	ErrInvalidKey = errors.New("invalid object key")
	// ErrBucketNotFound is returned when the backend does not know the bucket.
	ErrBucketNotFound = errors.New("bucket not found")
)

// Bucket stores objects in a bucket of the hosted backend's storage API.
type Bucket struct {
	client *backend.Client
	bucket string
}

// NewBucket creates a client for one storage bucket.
func NewBucket(client *backend.Client, bucket string) *Bucket {
	if bucket == "" {
		bucket = constants.DefaultBucket
	}
	return &Bucket{client: client, bucket: bucket}
}

// Upload stores data under key, replacing an existing object.
func (b *Bucket) Upload(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	endpoint := "storage/v1/object/" + b.bucket + "/" + key
	err := b.client.PutObject(ctx, http.MethodPost, endpoint, data, contentType(data), map[string]string{
		"x-upsert": "true",
	})
	if backend.IsNotFoundError(err) {
		return fmt.Errorf("upload %s: %w: %s", key, ErrBucketNotFound, b.bucket)
	}
	if err != nil {
		return fmt.Errorf("upload %s to bucket %s: %w", key, b.bucket, err)
	}
	return nil
}

// PublicURL returns the public download URL of key.
func (b *Bucket) PublicURL(key string) string {
	return b.client.ResolveURL("storage/v1/object/public", b.bucket, key)
}

// Local stores objects in a directory that is served over HTTP.
type Local struct {
	dir       string
	publicURL *url.URL
}

// NewLocal creates the directory if needed. publicURL is the base URL the
// directory is served from.
func NewLocal(dir, publicURL string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("could not create storage directory: %w", err)
	}
	parsed, err := url.Parse(publicURL)
	if err != nil {
		return nil, fmt.Errorf("invalid public URL: %w", err)
	}
	return &Local{dir: dir, publicURL: parsed}, nil
}

// Upload writes data to dir/key. The file appears atomically.
func (l *Local) Upload(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not move %s into place: %w", key, err)
	}
	return nil
}

// PublicURL returns the URL key is served at.
func (l *Local) PublicURL(key string) string {
	return l.publicURL.JoinPath(key).String()
}

// Handler serves the stored files.
func (l *Local) Handler() http.Handler {
	return http.FileServer(http.Dir(l.dir))
}

// Dir returns the root directory of the store.
func (l *Local) Dir() string {
	return l.dir
}

// Store is implemented by every backend of this package.
type Store interface {
	Upload(ctx context.Context, key string, data []byte) error
	PublicURL(key string) string
}

// New creates the storage backend selected by the configuration.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		return NewLocal(cfg.Storage.Dir, cfg.Storage.PublicURL)
	case config.StorageHTTP, "":
		client, err := backend.New(cfg.Backend.URL, cfg.Backend.APIKey)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		return NewBucket(client, cfg.Storage.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || !filepath.IsLocal(filepath.FromSlash(key)) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// contentType sniffs the type of an image, defaulting to JPEG.
func contentType(data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return constants.ImageContentType
}
