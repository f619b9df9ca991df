package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// EventCleaner deletes events past their retention.
type EventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupScheduler periodically removes old audit events.
type CleanupScheduler struct {
	cleaner   EventCleaner
	retention time.Duration
	schedule  string

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

// NewCleanupScheduler creates a scheduler running cleaner on a standard
// five-field cron schedule.
func NewCleanupScheduler(cleaner EventCleaner, schedule string, retentionDays int) *CleanupScheduler {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupScheduler{
		cleaner:   cleaner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		schedule:  schedule,
		cron:      cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// ValidateSchedule checks a cron expression without scheduling anything.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Start schedules the cleanup job. It stops when ctx is cancelled.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.RunNow); err != nil {
		return fmt.Errorf("failed to schedule audit cleanup: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("[AUDIT] Cleanup scheduled '%s', retention %s", s.schedule, s.retention)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop waits for a running cleanup and stops the scheduler.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	log.Printf("[AUDIT] Cleanup scheduler stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *CleanupScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow deletes expired events immediately.
func (s *CleanupScheduler) RunNow() {
	deleted, err := s.cleaner.DeleteOldEvents(s.retention)
	if err != nil {
		log.Printf("[AUDIT] Cleanup failed: %v", err)
		return
	}
	log.Printf("[AUDIT] Cleaned up %d events older than %s", deleted, s.retention)
}
