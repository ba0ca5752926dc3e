package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	domtool "github.com/riftgate/llmgateway/internal/domain/tool"
)

func newTestRegistry(t *testing.T) *domtool.InMemoryRegistry {
	t.Helper()
	return domtool.NewInMemoryRegistry(func(schema map[string]interface{}) (domtool.Validator, error) {
		return CompileSchema(schema)
	})
}

func TestExecutor_RunsRegisteredTool(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Register(domtool.Definition{Name: "echo", Schema: echoSchema, Handler: echoHandler}); err != nil {
		t.Fatalf("register: %v", err)
	}

	exec := NewExecutor(reg, ExecutorConfig{}, zap.NewNop())
	result := exec.Execute(context.Background(), Call{ID: "1", Name: "echo", Args: map[string]interface{}{"text": "hi"}})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "hi" {
		t.Fatalf("expected echoed content, got %q", result.Content)
	}
}

func TestExecutor_UnknownToolIsStructuredError(t *testing.T) {
	reg := newTestRegistry(t)
	exec := NewExecutor(reg, ExecutorConfig{}, zap.NewNop())

	result := exec.Execute(context.Background(), Call{ID: "1", Name: "nope", Args: nil})
	if !result.IsError {
		t.Fatal("expected is_error result for unknown tool")
	}
}

func TestExecutor_InvalidArgumentsIsStructuredError(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Register(domtool.Definition{Name: "echo", Schema: echoSchema, Handler: echoHandler}); err != nil {
		t.Fatalf("register: %v", err)
	}
	exec := NewExecutor(reg, ExecutorConfig{}, zap.NewNop())

	result := exec.Execute(context.Background(), Call{ID: "1", Name: "echo", Args: map[string]interface{}{}})
	if !result.IsError {
		t.Fatal("expected is_error result for schema-invalid arguments")
	}
}

func TestExecutor_OpenCircuitRejectsWithoutCallingHandler(t *testing.T) {
	reg := newTestRegistry(t)
	calls := 0
	failing := domtool.Definition{
		Name:   "flaky",
		Schema: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (*domtool.Result, error) {
			calls++
			return nil, errors.New("boom")
		},
	}
	if err := reg.Register(failing); err != nil {
		t.Fatalf("register: %v", err)
	}

	exec := NewExecutor(reg, ExecutorConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour}, zap.NewNop())

	for i := 0; i < 2; i++ {
		result := exec.Execute(context.Background(), Call{ID: "1", Name: "flaky"})
		if !result.IsError {
			t.Fatal("expected error result from failing handler")
		}
	}

	result := exec.Execute(context.Background(), Call{ID: "1", Name: "flaky"})
	if !result.IsError {
		t.Fatal("expected circuit-open error result")
	}
	if calls != 2 {
		t.Fatalf("expected handler called exactly twice before circuit opened, got %d", calls)
	}
}

func TestExecutor_ExecuteBatchPreservesOrder(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Register(domtool.Definition{Name: "echo", Schema: echoSchema, Handler: echoHandler}); err != nil {
		t.Fatalf("register: %v", err)
	}
	exec := NewExecutor(reg, ExecutorConfig{MaxParallel: 2}, zap.NewNop())

	calls := []Call{
		{ID: "a", Name: "echo", Args: map[string]interface{}{"text": "first"}},
		{ID: "b", Name: "echo", Args: map[string]interface{}{"text": "second"}},
		{ID: "c", Name: "echo", Args: map[string]interface{}{"text": "third"}},
	}

	outcomes := exec.ExecuteBatch(context.Background(), calls)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	want := []string{"a", "b", "c"}
	for i, o := range outcomes {
		if o.CallID != want[i] {
			t.Fatalf("outcome %d: expected call id %s, got %s", i, want[i], o.CallID)
		}
	}
}
