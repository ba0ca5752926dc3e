// Package tool defines the gateway's tool domain types: the canonical
// ToolDefinition shape and the narrow Registry interface every tool catalog
// implementation satisfies. Unlike an interactive coding agent's tool
// package, the gateway's tool catalog is fixed at process start and has no
// interactive approval step, so there is no Kind-driven permission policy
// (AskMode confirmation, allow/deny lists) here.
package tool

import (
	"context"
	"sync"
)

// Handler is a tool's implementation. External (HTTP-proxied) tools are
// registered with a Handler built by infrastructure/tool.NewHTTPProxyHandler.
type Handler func(ctx context.Context, args map[string]any) (*Result, error)

// Result is the outcome of one tool invocation. Handlers return data; they
// never mutate a session directly — only the orchestrator decides how a
// Result is spliced into the working transcript.
type Result struct {
	Content string
	IsError bool
}

// Definition is the registry-internal, authoritative shape of a tool:
// name, description, JSON Schema parameter spec, and a handler reference.
// The HTTP-facing /v1/tools
// listing and the wire shape handed to providers are both derived views
// built from this, never constructed independently.
type Definition struct {
	Name        string
	Description string
	Schema      map[string]interface{}
	Handler     Handler
}

// Registry holds name → Definition and the validators compiled from each
// Definition's Schema at registration time.
type Registry interface {
	Register(def Definition) error
	Get(name string) (Definition, bool)
	List() []Definition
	Has(name string) bool
	// Validate checks args against the named tool's compiled schema.
	Validate(name string, args map[string]interface{}) error
}

// InMemoryRegistry is the process-local tool catalog; every configured
// deployment has exactly one.
type InMemoryRegistry struct {
	mu         sync.RWMutex
	defs       map[string]Definition
	validators map[string]Validator
	compile    func(schema map[string]interface{}) (Validator, error)
}

// Validator checks one decoded JSON value against a compiled schema.
type Validator interface {
	Validate(instance interface{}) error
}

// NewInMemoryRegistry creates an empty registry. compile is injected so the
// registry itself has no direct dependency on the schema library; the
// gateway wires santhosh-tekuri/jsonschema's compiler in at startup.
func NewInMemoryRegistry(compile func(schema map[string]interface{}) (Validator, error)) *InMemoryRegistry {
	return &InMemoryRegistry{
		defs:       make(map[string]Definition),
		validators: make(map[string]Validator),
		compile:    compile,
	}
}

func (r *InMemoryRegistry) Register(def Definition) error {
	v, err := r.compile(def.Schema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	r.validators[def.Name] = v
	return nil
}

func (r *InMemoryRegistry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

func (r *InMemoryRegistry) Validate(name string, args map[string]interface{}) error {
	r.mu.RLock()
	v, ok := r.validators[name]
	r.mu.RUnlock()
	if !ok {
		return ErrToolNotFound
	}
	return v.Validate(args)
}
