// Package scheduler runs periodic maintenance jobs of the web server.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single cleanup run.
const jobTimeout = time.Minute

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SessionCleaner removes expired sessions and reports how many were dropped.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SessionCleanup sweeps expired web sessions on a cron schedule
type SessionCleanup struct {
	cleaner  SessionCleaner
	schedule string
	log      logr.Logger

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
	runMu     sync.Mutex
}

// ValidateSchedule reports whether schedule is a five field cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// NewSessionCleanup creates a stopped scheduler
func NewSessionCleanup(cleaner SessionCleaner, schedule string, log logr.Logger) *SessionCleanup {
	return &SessionCleanup{
		cleaner:  cleaner,
		schedule: schedule,
		log:      log.WithName("scheduler"),
		cron:     cron.New(cron.WithParser(parser)),
	}
}

// Start schedules the cleanup job. It stops when ctx is done.
func (s *SessionCleanup) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule session cleanup: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	sched, _ := parser.Parse(s.schedule)
	s.log.Info("Session cleanup scheduled", "schedule", s.schedule, "next", sched.Next(time.Now()))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for a running job and stops the scheduler
func (s *SessionCleanup) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	s.log.V(1).Info("Session cleanup stopped")
}

// RunNow sweeps expired sessions once. Overlapping runs are skipped.
func (s *SessionCleanup) RunNow(ctx context.Context) (int64, error) {
	if !s.runMu.TryLock() {
		s.log.V(1).Info("Session cleanup already running, skipping")
		return 0, nil
	}
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	removed, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		s.log.Error(err, "Session cleanup failed")
		return removed, fmt.Errorf("session cleanup: %w", err)
	}
	if removed > 0 {
		s.log.Info("Expired sessions removed", "count", removed)
	}
	return removed, nil
}
