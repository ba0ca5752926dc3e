package backpressure

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

func TestGate_AdmitsUnderLimit(t *testing.T) {
	g := New(Config{MaxConcurrent: 2, SampleInterval: time.Hour}, zap.NewNop())
	defer g.Stop()

	if err := g.Acquire(); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	defer g.Release()

	if g.InFlight() != 1 {
		t.Fatalf("expected in-flight 1, got %d", g.InFlight())
	}
}

func TestGate_RejectsAtMaxConcurrent(t *testing.T) {
	g := New(Config{MaxConcurrent: 1, SampleInterval: time.Hour}, zap.NewNop())
	defer g.Stop()

	if err := g.Acquire(); err != nil {
		t.Fatalf("expected first acquire to succeed: %v", err)
	}
	defer g.Release()

	err := g.Acquire()
	if err == nil {
		t.Fatal("expected second acquire to be rejected")
	}
	var ge *gwerrors.GatewayError
	if !errors.As(err, &ge) || ge.Code != gwerrors.CodeOverloaded {
		t.Fatalf("expected CodeOverloaded, got %v", err)
	}
}

func TestGate_ReleaseFreesSlot(t *testing.T) {
	g := New(Config{MaxConcurrent: 1, SampleInterval: time.Hour}, zap.NewNop())
	defer g.Stop()

	if err := g.Acquire(); err != nil {
		t.Fatalf("expected first acquire to succeed: %v", err)
	}
	g.Release()

	if err := g.Acquire(); err != nil {
		t.Fatalf("expected acquire after release to succeed: %v", err)
	}
	g.Release()
}
