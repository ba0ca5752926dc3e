// Package audit provides an optional, durable sqlite store for records of
// completed orchestrations — request id, model, provider, token usage,
// latency, outcome — for operators who want a queryable history beyond the
// ephemeral session store. Uses the same gorm.DB-backed Save/find shape as
// the rest of the persistence layer, applied here to append-only audit
// records instead of conversational messages.
package audit

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Record is one completed orchestration's audit trail entry.
type Record struct {
	ID               uint      `gorm:"primaryKey"`
	RequestID        string    `gorm:"index"`
	SessionID        string    `gorm:"index"`
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	Success          bool
	ErrorCode        string
	CreatedAt        time.Time `gorm:"index"`
}

// Log is the audit sink. The application opens one at startup, but no
// code in the request path calls Append, so the gateway itself writes no
// records. A nil *Log is valid and silently drops writes, so audit logging
// can be entirely optional without every call site nil-checking.
type Log struct {
	db *gorm.DB
}

// Open opens (creating if absent) a sqlite-backed audit log at path and
// migrates its schema.
func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Append writes one completed orchestration's outcome. Failures are
// returned for the caller to log.
func (l *Log) Append(ctx context.Context, rec Record) error {
	if l == nil {
		return nil
	}
	rec.CreatedAt = time.Now()
	return l.db.WithContext(ctx).Create(&rec).Error
}

// Close releases the underlying sqlite connection.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
