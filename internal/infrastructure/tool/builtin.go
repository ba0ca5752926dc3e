package tool

import (
	"context"
	"fmt"
	"net/http"

	domtool "github.com/riftgate/llmgateway/internal/domain/tool"
)

// echoHandler returns its "text" argument verbatim; used for smoke-testing
// the tool loop without a live upstream dependency.
func echoHandler(ctx context.Context, args map[string]any) (*domtool.Result, error) {
	text, _ := args["text"].(string)
	return &domtool.Result{Content: text}, nil
}

var echoSchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
	"required":   []interface{}{"text"},
}

// calculatorHandler evaluates a single two-operand arithmetic expression.
// It deliberately supports only +, -, *, / on two float64 operands — any
// fuller expression grammar belongs in a proxied tool, not this built-in.
func calculatorHandler(ctx context.Context, args map[string]any) (*domtool.Result, error) {
	op, _ := args["operator"].(string)
	a, aok := toFloat(args["a"])
	b, bok := toFloat(args["b"])
	if !aok || !bok {
		return &domtool.Result{IsError: true, Content: "calculator: a and b must be numbers"}, nil
	}

	var result float64
	switch op {
	case "+":
		result = a + b
	case "-":
		result = a - b
	case "*":
		result = a * b
	case "/":
		if b == 0 {
			return &domtool.Result{IsError: true, Content: "calculator: division by zero"}, nil
		}
		result = a / b
	default:
		return &domtool.Result{IsError: true, Content: fmt.Sprintf("calculator: unsupported operator %q", op)}, nil
	}

	return &domtool.Result{Content: fmt.Sprintf("%g", result)}, nil
}

func toFloat(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

var calculatorSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"operator": map[string]interface{}{"type": "string", "enum": []interface{}{"+", "-", "*", "/"}},
		"a":        map[string]interface{}{"type": "number"},
		"b":        map[string]interface{}{"type": "number"},
	},
	"required": []interface{}{"operator", "a", "b"},
}

// ProxyServiceConfig names where the semantic-search/code-intelligence
// microservices live, so RegisterBuiltins can wire the five process-start
// proxy tools to them.
type ProxyServiceConfig struct {
	SemanticSearchBaseURL string // serves semantic_search, get_chunk
	CodeIntelBaseURL      string // serves review_code, analyze_architecture, generate_documentation
}

// RegisterBuiltins registers the process-start tool catalog: five
// microservice-backed proxies plus the two trivial local tools.
func RegisterBuiltins(registry domtool.Registry, client *http.Client, cfg ProxyServiceConfig) error {
	locals := []domtool.Definition{
		{Name: "echo", Description: "Echo back the given text.", Schema: echoSchema, Handler: echoHandler},
		{Name: "calculator", Description: "Evaluate a two-operand arithmetic expression.", Schema: calculatorSchema, Handler: calculatorHandler},
	}

	proxies := []ProxyConfig{
		{
			Name:        "semantic_search",
			Description: "Search the codebase's semantic index for matching chunks.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"query"},
			},
			BaseURL: cfg.SemanticSearchBaseURL,
			Path:    "/search",
		},
		{
			Name:        "get_chunk",
			Description: "Fetch a specific indexed chunk by id.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"chunk_id": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"chunk_id"},
			},
			BaseURL: cfg.SemanticSearchBaseURL,
			Path:    "/chunk",
		},
		{
			Name:        "review_code",
			Description: "Request an automated review of a code excerpt.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"path"},
			},
			BaseURL: cfg.CodeIntelBaseURL,
			Path:    "/review",
		},
		{
			Name:        "analyze_architecture",
			Description: "Request an architectural summary of a repository or package.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"path"},
			},
			BaseURL: cfg.CodeIntelBaseURL,
			Path:    "/analyze",
		},
		{
			Name:        "generate_documentation",
			Description: "Request generated documentation for a code excerpt.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"path"},
			},
			BaseURL: cfg.CodeIntelBaseURL,
			Path:    "/generate-docs",
		},
	}

	for _, def := range locals {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("register builtin tool %s: %w", def.Name, err)
		}
	}

	for _, pc := range proxies {
		def := domtool.Definition{
			Name:        pc.Name,
			Description: pc.Description,
			Schema:      pc.Schema,
			Handler:     NewHTTPProxyHandler(client, pc),
		}
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("register proxy tool %s: %w", pc.Name, err)
		}
	}

	return nil
}
