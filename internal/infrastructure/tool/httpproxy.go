package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domtool "github.com/riftgate/llmgateway/internal/domain/tool"
)

// ProxyConfig configures one external tool that is dispatched over HTTP to
// a sibling microservice (semantic-search, the code-review/docs services,
// etc.): a configured base URL, method, and path.
type ProxyConfig struct {
	Name        string
	Description string
	Schema      map[string]interface{}
	BaseURL     string
	Method      string // defaults to POST
	Path        string
	Timeout     time.Duration // defaults to 60s
}

// NewHTTPProxyHandler builds a domain/tool.Handler that marshals args to
// JSON, invokes the configured endpoint, and returns the raw response body
// as the tool result's content — translation of that body is the calling
// LLM's job, not the gateway's.
func NewHTTPProxyHandler(client *http.Client, cfg ProxyConfig) domtool.Handler {
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return func(ctx context.Context, args map[string]any) (*domtool.Result, error) {
		body, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal proxy tool arguments: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		url := cfg.BaseURL + cfg.Path
		req, err := http.NewRequestWithContext(callCtx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build proxy request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return &domtool.Result{IsError: true, Content: fmt.Sprintf("tool proxy call failed: %v", err)}, nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &domtool.Result{IsError: true, Content: fmt.Sprintf("read tool proxy response: %v", err)}, nil
		}

		if resp.StatusCode >= 400 {
			return &domtool.Result{
				IsError: true,
				Content: fmt.Sprintf("tool proxy %s returned %d: %s", cfg.Name, resp.StatusCode, string(respBody)),
			}, nil
		}

		return &domtool.Result{Content: string(respBody)}, nil
	}
}
