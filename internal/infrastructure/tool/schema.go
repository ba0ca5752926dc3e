// Package tool provides the infrastructure-level pieces of the tool
// registry and executor: a santhosh-tekuri/jsonschema/v5 compiler adapter,
// HTTP-proxied tool invocation, the built-in local tools, and the
// bounded-parallelism batch executor.
package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"

	domtool "github.com/riftgate/llmgateway/internal/domain/tool"
)

var schemaSeq uint64

type compiledSchema struct {
	schema *jsonschema.Schema
}

func (c *compiledSchema) Validate(instance interface{}) error {
	// jsonschema validates against the decoded-JSON representation
	// (map[string]interface{}/[]interface{}/etc), so round-trip through
	// encoding/json rather than passing Go maps directly.
	raw, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("encode tool arguments: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}
	return c.schema.Validate(v)
}

// CompileSchema compiles a tool's JSON-schema parameter spec once, at
// registration time, so request-path validation never re-parses the schema
// document.
func CompileSchema(schema map[string]interface{}) (domtool.Validator, error) {
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	id := fmt.Sprintf("mem://tool-schema-%d.json", atomic.AddUint64(&schemaSeq, 1))
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &compiledSchema{schema: compiled}, nil
}
