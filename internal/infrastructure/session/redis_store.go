package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riftgate/llmgateway/internal/domain/chat"
	domsession "github.com/riftgate/llmgateway/internal/domain/session"
)

// RedisStore is the preferred Session Store backend for production
// deployments: values are JSON-serialized sessions, and TTL is re-applied
// on every Save
// so that an active conversation's expiry keeps sliding forward. Expiry
// enforcement is entirely delegated to Redis; the gateway never scans for
// stale keys itself.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to addr with sane pooling defaults. Pass a URL of
// the form redis://[:password@]host:port/db via NewRedisStoreFromURL when
// the deployment supplies REDIS_URL instead of bare host:port.
func NewRedisStore(addr, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 16,
	})
	return &RedisStore{client: client, prefix: "llmgateway:session:"}
}

// NewRedisStoreFromURL parses a redis:// URL (the shape REDIS_URL carries).
func NewRedisStoreFromURL(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), prefix: "llmgateway:session:"}, nil
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func newSessionID() (string, error) {
	buf := make([]byte, 16) // 32 hex chars; comfortably exceeds the ~24-char budget
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *RedisStore) Create(ctx context.Context, ttl time.Duration, initialContext map[string]any) (*domsession.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	if initialContext == nil {
		initialContext = map[string]any{}
	}
	now := time.Now()
	sess := &domsession.Session{
		ID:        id,
		Messages:  []chat.Message{},
		Context:   initialContext,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.Save(ctx, sess, ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domsession.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session from redis: %w", err)
	}
	var sess domsession.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *domsession.Session, ttl time.Duration) error {
	sess.ExpiresAt = time.Now().Add(ttl)
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session from redis: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check session existence in redis: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
