// Package prefstore is a durable key-value store for local preferences, kept in
// a SQLite file.
//
// # Usage
//
//	store, err := prefstore.Open("face-scan.db", log)
//	err = store.Update(ctx, "routines", func(current string, found bool) (string, error) {
//		return next, nil
//	})
package prefstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("preference store closed")

// Preference is one stored key.
type Preference struct {
	Key       string    `gorm:"primaryKey;size:100"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time
}

func (Preference) TableName() string {
	return "preferences"
}

// UpdateFunc computes the new value of a key from its current value. found is
// false when the key has never been written. Returning an error aborts the
// update and leaves the stored value untouched.
type UpdateFunc func(current string, found bool) (string, error)

// Store holds preferences and notifies watchers after every committed change.
type Store struct {
	db  *gorm.DB
	log logr.Logger

	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
	done     chan struct{}
	closed   bool
}

// Open opens (creating when needed) the SQLite file at path.
func Open(path string, log logr.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}

	// SQLite allows one writer; a single connection keeps read-modify-write
	// transactions from failing with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Preference{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate preference store: %w", err)
	}

	log.V(1).Info("preference store opened", "path", path)

	return &Store{
		db:       db,
		log:      log,
		watchers: make(map[string]map[chan struct{}]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Close stops all watchers and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Get returns the value stored under key. found is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	return get(s.db.WithContext(ctx), key)
}

func get(db *gorm.DB, key string) (string, bool, error) {
	var pref Preference
	err := db.Where("key = ?", key).Limit(1).Find(&pref).Error
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	if pref.Key == "" {
		return "", false, nil
	}
	return pref.Value, true, nil
}

func put(db *gorm.DB, key, value string) error {
	pref := Preference{Key: key, Value: value, UpdatedAt: time.Now()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := put(s.db.WithContext(ctx), key, value); err != nil {
		return err
	}
	s.notify(key)
	return nil
}

// Update performs an atomic read-modify-write of key inside one transaction.
// Concurrent updates of the same key are serialized; the last one to commit wins.
func (s *Store) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, found, err := get(tx, key)
		if err != nil {
			return err
		}
		next, err := fn(current, found)
		if err != nil {
			return err
		}
		return put(tx, key, next)
	})
	if err != nil {
		return err
	}
	s.notify(key)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&Preference{}).Error; err != nil {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	s.notify(key)
	return nil
}

// Watch streams the value of key: first the current value, then the value after
// every committed change. An absent key is reported as "". Rapid changes may be
// coalesced into one emission. The channel is closed when ctx is done or the
// store is closed.
func (s *Store) Watch(ctx context.Context, key string) <-chan string {
	out := make(chan string)
	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(out)
		return out
	}
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[chan struct{}]struct{})
	}
	s.watchers[key][wake] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer s.unwatch(key, wake)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-wake:
			}

			value, _, err := get(s.db.WithContext(ctx), key)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Error(err, "watch read failed", "key", key)
				}
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()

	return out
}

func (s *Store) unwatch(key string, wake chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers[key], wake)
	if len(s.watchers[key]) == 0 {
		delete(s.watchers, key)
	}
}

// notify wakes every watcher of key without blocking. A watcher that has not
// consumed its previous wake-up already has one pending.
func (s *Store) notify(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for wake := range s.watchers[key] {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
