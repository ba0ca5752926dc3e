// Package session defines the Session entity and the narrow Store interface
// every backing implementation (Redis, in-memory) satisfies. TTL is sliding
// and store-authoritative: each backend re-applies it on every write.
package session

import (
	"context"
	"time"

	"github.com/riftgate/llmgateway/internal/domain/chat"
)

// Session is a named, TTL'd conversation transcript.
type Session struct {
	ID        string            `json:"id"`
	Messages  []chat.Message    `json:"messages"`
	Context   map[string]any    `json:"context"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Store is the narrow interface the orchestrator and the HTTP layer depend
// on. Implementations own TTL enforcement; callers never compute expiry
// themselves.
type Store interface {
	Create(ctx context.Context, ttl time.Duration, initialContext map[string]any) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error) // nil, nil if absent or expired
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	Close() error
}
