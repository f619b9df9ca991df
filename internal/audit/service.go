package audit

import (
	"context"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// Service records authentication events.
type Service struct {
	db *gorm.DB
	wg sync.WaitGroup
}

// NewService creates an audit service over a migrated database.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Log records an event synchronously.
func (s *Service) Log(event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return s.db.Create(event).Error
}

// LogAsync records an event in the background (non-blocking).
func (s *Service) LogAsync(event *Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.db.Create(event).Error; err != nil {
			log.Printf("[AUDIT] Failed to log event %s: %v", event.Action, err)
		}
	}()
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(action, username, ipAddr, userAgent string, success bool) {
	event := &Event{
		EventType: EventAuth,
		Action:    action,
		Username:  truncate(username, 150),
		IPAddress: ipAddr,
		UserAgent: truncate(userAgent, 500),
		Status:    StatusSuccess,
	}
	if !success {
		event.Status = StatusFailed
	}
	s.LogAsync(event)
}

// Flush waits for background writes to finish.
func (s *Service) Flush() {
	s.wg.Wait()
}

// Recent returns the newest events first. A non-empty username filters by user.
func (s *Service) Recent(username string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Order("created_at DESC").Limit(limit)
	if username != "" {
		query = query.Where("username = ?", username)
	}
	var events []Event
	err := query.Find(&events).Error
	return events, err
}

// DeleteOldEvents removes events older than retention and returns how many went.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.Where("created_at < ?", cutoff).Delete(&Event{})
	return result.RowsAffected, result.Error
}

// Ping checks the audit database.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close flushes pending writes and closes the database.
func (s *Service) Close() error {
	s.Flush()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// truncate caps s at maxLen bytes without splitting a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
