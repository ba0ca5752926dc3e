package ratelimit

import (
	"errors"
	"testing"
	"time"

	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

func TestLimiter_AllowsWithinBurst(t *testing.T) {
	l := New(Config{BurstSize: 3, RequestsPerMinute: 60})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if err := l.Allow("client-a"); err != nil {
			t.Fatalf("request %d: expected admission, got %v", i, err)
		}
	}
}

func TestLimiter_RejectsBeyondBurst(t *testing.T) {
	l := New(Config{BurstSize: 3, RequestsPerMinute: 60})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if err := l.Allow("client-b"); err != nil {
			t.Fatalf("request %d: expected admission, got %v", i, err)
		}
	}

	err := l.Allow("client-b")
	if err == nil {
		t.Fatal("expected 4th request to be rejected")
	}
	var ge *gwerrors.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected *GatewayError, got %T", err)
	}
	if ge.Code != gwerrors.CodeRateLimited {
		t.Fatalf("expected CodeRateLimited, got %s", ge.Code)
	}
	if ge.RetryAfter < 1 {
		t.Fatalf("expected RetryAfter >= 1, got %d", ge.RetryAfter)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(Config{BurstSize: 1, RequestsPerMinute: 60})
	defer l.Stop()

	if err := l.Allow("client-c"); err != nil {
		t.Fatalf("expected first request for client-c to pass: %v", err)
	}
	if err := l.Allow("client-d"); err != nil {
		t.Fatalf("expected first request for unrelated client-d to pass: %v", err)
	}
}

func TestLimiter_EvictsIdleKeys(t *testing.T) {
	l := New(Config{BurstSize: 1, RequestsPerMinute: 60, KeyTimeout: 20 * time.Millisecond})
	defer l.Stop()

	_ = l.Allow("client-e")
	l.mu.Lock()
	if _, ok := l.byKey["client-e"]; !ok {
		l.mu.Unlock()
		t.Fatal("expected client-e to have an active limiter entry")
	}
	l.mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	l.evictIdle()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byKey["client-e"]; ok {
		t.Fatal("expected client-e's idle limiter to be evicted")
	}
}
