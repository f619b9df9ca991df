package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type EventType string

const (
	EventAuth EventType = "auth"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Event is one row of the audit trail. Credentials are never recorded.
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType EventType `gorm:"index;size:50" json:"event_type"`
	Action    string    `gorm:"index;size:100" json:"action"` // e.g. "login", "logout"
	Username  string    `gorm:"index;size:150" json:"username,omitempty"`
	IPAddress string    `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent string    `gorm:"size:500" json:"user_agent,omitempty"`
	Status    Status    `gorm:"size:20" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Event) TableName() string {
	return "audit_events"
}

// Open opens (creating if needed) the audit database at path and migrates it.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	return db, nil
}
