package session

import (
	"context"
	"testing"
	"time"

	"github.com/riftgate/llmgateway/internal/domain/chat"
)

func TestMemoryStore_CreateGetRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	sess, err := store.Create(ctx, time.Hour, map[string]any{"lang": "en"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a non-empty session id")
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected session to be found")
	}
	if got.ID != sess.ID || got.Context["lang"] != "en" {
		t.Fatalf("round-tripped session mismatch: %+v", got)
	}
}

func TestMemoryStore_SaveSlidesExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	sess, _ := store.Create(ctx, time.Millisecond, nil)
	before := sess.ExpiresAt

	time.Sleep(2 * time.Millisecond)
	sess.Messages = append(sess.Messages, chat.Message{Role: chat.RoleUser, Content: "hello"})
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !sess.ExpiresAt.After(before) {
		t.Fatal("expected save to push expiry forward (sliding TTL)")
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil || got == nil {
		t.Fatalf("expected session to still exist after sliding save, err=%v", err)
	}
}

func TestMemoryStore_ExpiredSessionNotReturned(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	sess, _ := store.Create(ctx, time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected expired session to read as absent")
	}

	exists, err := store.Exists(ctx, sess.ID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("expired session should not report as existing")
	}
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	sess, _ := store.Create(ctx, time.Hour, nil)
	deleted, err := store.Delete(ctx, sess.ID)
	if err != nil || !deleted {
		t.Fatalf("expected first delete to report true, got %v err=%v", deleted, err)
	}
	deleted, err = store.Delete(ctx, sess.ID)
	if err != nil || deleted {
		t.Fatalf("expected second delete to report false, got %v err=%v", deleted, err)
	}
}
