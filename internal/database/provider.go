package database

import (
	"errors"
	"fmt"
	"io"
)

// Backend bundles the repositories of one storage backend.
// It is constructed explicitly at startup and handed to the components that need it.
type Backend struct {
	Name     string
	Results  ScanResultWriter
	Users    UserRepository    // nil when the backend does not store users
	Sessions SessionRepository // nil when sessions are kept in memory only

	closers []io.Closer
}

// NewBackend creates a backend bundle. Closers are closed in reverse order by Close.
func NewBackend(name string, results ScanResultWriter, closers ...io.Closer) *Backend {
	return &Backend{
		Name:    name,
		Results: results,
		closers: closers,
	}
}

// Validate checks that the mandatory repositories are set
func (b *Backend) Validate() error {
	if b == nil {
		return errors.New("database backend not initialized")
	}
	if b.Results == nil {
		return fmt.Errorf("%s backend: scan result repository not registered", b.Name)
	}
	return nil
}

// Close releases every resource held by the backend
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing %s backend: %w", b.Name, errors.Join(errs...))
	}
	return nil
}
