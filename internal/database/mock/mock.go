// Package mock provides in-memory implementations of database interfaces
// for tests and for running without a database server.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database"
)

// MockScanResultStore is an in-memory implementation of database.ScanResultWriter
type MockScanResultStore struct {
	mu      sync.RWMutex
	results []database.ScanResult

	// Error injection
	InsertError     error
	ListRecentError error
	GetError        error

	// InsertCalls counts Insert invocations, including failed ones
	InsertCalls int
}

// NewMockScanResultStore creates a new empty scan result store
func NewMockScanResultStore() *MockScanResultStore {
	return &MockScanResultStore{}
}

// Insert stores a result, rejecting duplicate IDs like a primary key would
func (m *MockScanResultStore) Insert(ctx context.Context, result database.ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if m.InsertError != nil {
		return m.InsertError
	}
	for _, r := range m.results {
		if r.ID == result.ID {
			return fmt.Errorf("insert scan result: duplicate id %s", result.ID)
		}
	}
	m.results = append(m.results, cloneResult(result))
	return nil
}

// Get retrieves a result by ID
func (m *MockScanResultStore) Get(ctx context.Context, id string) (*database.ScanResult, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.results {
		if r.ID == id {
			c := cloneResult(r)
			return &c, nil
		}
	}
	return nil, nil
}

// ListRecent returns results newest first, filtered by user when userID is set
func (m *MockScanResultStore) ListRecent(ctx context.Context, userID string) ([]database.ScanResult, error) {
	if m.ListRecentError != nil {
		return nil, m.ListRecentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.ScanResult
	for _, r := range m.results {
		if userID == "" || r.UserID == userID {
			results = append(results, cloneResult(r))
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp > results[j].Timestamp
	})
	if len(results) > database.DefaultListLimit {
		results = results[:database.DefaultListLimit]
	}
	return results, nil
}

// Len returns the number of stored results
func (m *MockScanResultStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}

func cloneResult(r database.ScanResult) database.ScanResult {
	landmarks := make(map[string]float64, len(r.Landmarks))
	for k, v := range r.Landmarks {
		landmarks[k] = v
	}
	r.Landmarks = landmarks
	return r
}

// MockUserRepository is an in-memory implementation of database.UserRepository
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]database.UserLogin

	// Error injection
	GetUserError    error
	UpsertUserError error
}

// NewMockUserRepository creates a new empty user repository
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]database.UserLogin)}
}

// GetUser retrieves a profile by user ID
func (m *MockUserRepository) GetUser(ctx context.Context, userID string) (*database.UserLogin, error) {
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// UpsertUser inserts or replaces a profile
func (m *MockUserRepository) UpsertUser(ctx context.Context, user database.UserLogin) error {
	if m.UpsertUserError != nil {
		return m.UpsertUserError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
	return nil
}

// MockSessionRepository is an in-memory implementation of database.SessionRepository
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]database.StoredSession
	now      func() time.Time

	// Error injection
	SaveError error
	GetError  error
}

// NewMockSessionRepository creates a new empty session repository
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[string]database.StoredSession),
		now:      time.Now,
	}
}

// Save stores a session
func (m *MockSessionRepository) Save(ctx context.Context, s database.StoredSession) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// Get returns a session, or nil when missing or expired
func (m *MockSessionRepository) Get(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || !s.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return &s, nil
}

// Delete removes a session
func (m *MockSessionRepository) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// DeleteExpired removes expired sessions and returns the count deleted
func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	now := m.now()
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

// NewMemoryBackend returns a backend whose repositories all live in memory
func NewMemoryBackend() *database.Backend {
	backend := database.NewBackend(config.ResultStoreMemory, NewMockScanResultStore())
	backend.Users = NewMockUserRepository()
	backend.Sessions = NewMockSessionRepository()
	return backend
}
