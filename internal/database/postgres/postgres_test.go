//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if _, err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestScanResultRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewScanResultRepository(pool)

	older := database.ScanResult{
		ID:           "scan-1",
		UserID:       "alice",
		FrontFaceURL: "https://cdn/u1",
		SideFaceURL:  "https://cdn/u2",
		Landmarks:    map[string]float64{"jaw_width": 120},
		Timestamp:    1000,
	}
	newer := database.ScanResult{
		ID:           "scan-2",
		UserID:       "alice",
		FrontFaceURL: "https://cdn/u3",
		SideFaceURL:  "https://cdn/u4",
		Landmarks:    map[string]float64{"jaw_width": 121, "face_height": 180},
		Timestamp:    2000,
	}
	other := database.ScanResult{
		ID:           "scan-3",
		UserID:       "bob",
		FrontFaceURL: "https://cdn/u5",
		SideFaceURL:  "https://cdn/u6",
		Landmarks:    map[string]float64{"nose_length": 45},
		Timestamp:    1500,
	}

	t.Run("Insert", func(t *testing.T) {
		for _, r := range []database.ScanResult{older, newer, other} {
			if err := repo.Insert(ctx, r); err != nil {
				t.Fatalf("Failed to insert %s: %v", r.ID, err)
			}
		}
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		if err := repo.Insert(ctx, older); err == nil {
			t.Error("Expected error inserting duplicate id")
		}
	})

	t.Run("Get", func(t *testing.T) {
		got, err := repo.Get(ctx, "scan-2")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if got == nil {
			t.Fatal("Expected result, got nil")
		}
		if got.Landmarks["face_height"] != 180 {
			t.Errorf("Expected face_height 180, got %v", got.Landmarks["face_height"])
		}

		missing, err := repo.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if missing != nil {
			t.Error("Expected nil for missing result")
		}
	})

	t.Run("ListRecentByUser", func(t *testing.T) {
		got, err := repo.ListRecent(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(got))
		}
		if got[0].ID != "scan-2" || got[1].ID != "scan-1" {
			t.Errorf("Expected newest first, got %s, %s", got[0].ID, got[1].ID)
		}
	})

	t.Run("ListRecentAll", func(t *testing.T) {
		got, err := repo.ListRecent(ctx, "")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 results, got %d", len(got))
		}
		if got[1].ID != "scan-3" {
			t.Errorf("Expected scan-3 in the middle, got %s", got[1].ID)
		}
	})
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSessionRepository(pool)
	now := time.Now()

	active := database.StoredSession{
		ID:          "active",
		UserID:      "alice",
		Email:       "alice@example.com",
		AccessToken: "token",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	expired := database.StoredSession{
		ID:        "expired",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}

	for _, s := range []database.StoredSession{active, expired} {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
	}

	got, err := repo.Get(ctx, "active")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got == nil || got.UserID != "alice" {
		t.Fatalf("Expected session for alice, got %+v", got)
	}

	got, err = repo.Get(ctx, "expired")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got != nil {
		t.Error("Expected expired session to be hidden")
	}

	count, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("Failed to delete expired: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 deleted session, got %d", count)
	}

	repo.now = func() time.Time { return now.Add(2 * time.Hour) }
	if got, _ := repo.Get(ctx, "active"); got != nil {
		t.Error("Expected session to expire with the repository clock")
	}
	repo.now = time.Now

	if err := repo.Delete(ctx, "active"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	if got, _ := repo.Get(ctx, "active"); got != nil {
		t.Error("Expected deleted session to be gone")
	}
}

func TestUserRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(pool)

	got, err := repo.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got != nil {
		t.Fatal("Expected nil for unknown user")
	}

	user := database.UserLogin{UserID: "alice", Email: "alice@example.com"}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("Failed to upsert user: %v", err)
	}

	user.Subscription = database.Subscription{IsSubscribed: true, SubscriptionCode: "pro"}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("Failed to upsert user: %v", err)
	}

	got, err = repo.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got == nil || !got.Subscription.IsSubscribed || got.Subscription.SubscriptionCode != "pro" {
		t.Errorf("Expected updated subscription, got %+v", got)
	}
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"0001_scan_results.sql",
		"0002_sessions.sql",
		"0003_user_logins.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// A second run finds nothing to apply.
	again, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("Failed to re-run migrations: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Expected no pending migrations, got %v", again)
	}
}
