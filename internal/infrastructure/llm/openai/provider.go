package openai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/domain/chat"
	llm "github.com/riftgate/llmgateway/internal/infrastructure/llm"
	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

func init() {
	llm.RegisterFactory("openai", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Provider is a Go-native OpenAI-compatible HTTP client. The chat-completions
// wire shape is shared by enough upstreams (OpenAI itself, DeepSeek,
// OpenRouter, Ollama's OpenAI-compat surface, vLLM) that this one adapter is
// reused with different base URLs rather than duplicated per vendor.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Go-native OpenAI-compatible LLM provider.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Provider{
		name:    cfg.Name,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		models:  cfg.Models,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "openai")),
	}
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Models() []string { return p.models }

func (p *Provider) SupportsModel(model string) bool {
	if len(p.models) == 0 {
		return true
	}
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

// Complete implements llm.Provider (non-streaming).
func (p *Provider) Complete(ctx context.Context, req chat.Request) (*chat.Response, error) {
	apiReq := p.buildAPIRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, gwerrors.NewInternal("marshal OpenAI request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewInternal("create OpenAI request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.NewTimeout("OpenAI request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerrors.NewUpstream("read OpenAI response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusErr(resp.StatusCode, respBody)
	}

	return p.parseAPIResponse(respBody)
}

// Stream implements llm.Provider with SSE streaming.
func (p *Provider) Stream(ctx context.Context, req chat.Request) (<-chan chat.StreamChunk, error) {
	apiReq := p.buildAPIRequest(req)

	streamBody := StreamRequest{
		Request:       apiReq,
		Stream:        true,
		StreamOptions: map[string]interface{}{"include_usage": true},
	}

	body, err := json.Marshal(streamBody)
	if err != nil {
		return nil, gwerrors.NewInternal("marshal OpenAI request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewInternal("create OpenAI request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.NewTimeout("OpenAI request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classifyStatusErr(resp.StatusCode, respBody)
	}

	out := make(chan chat.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.logger.Info("context cancelled, force-closing SSE stream", zap.Error(ctx.Err()))
				resp.Body.Close()
			case <-done:
			}
		}()

		if err := ParseSSEStream(ctx, resp.Body, out, p.logger); err != nil {
			p.logger.Warn("SSE stream ended with error", zap.Error(err))
		}
		close(done)
	}()

	return out, nil
}

// --- Internal conversion methods ---

func (p *Provider) buildAPIRequest(req chat.Request) *Request {
	// Strip provider prefix (e.g. "openrouter/qwen3-max" → "qwen3-max")
	model := req.Model
	if idx := strings.Index(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}

	apiReq := &Request{Model: model}
	if req.Params.Temperature != nil {
		apiReq.Temperature = *req.Params.Temperature
	}
	if req.Params.MaxTokens != nil {
		apiReq.MaxTokens = *req.Params.MaxTokens
	}

	for _, msg := range req.Messages {
		apiMsg := Message{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}

		for _, tc := range msg.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ToolCallFunc{
					Name:      tc.Name,
					Arguments: MarshalToolCallArgs(tc.Arguments),
				},
			})
		}

		apiReq.Messages = append(apiReq.Messages, apiMsg)
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  ConvertSchema(t.Parameters),
			},
		})
	}

	return apiReq
}

func (p *Provider) parseAPIResponse(body []byte) (*chat.Response, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, gwerrors.NewUpstream("parse OpenAI response", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, gwerrors.NewUpstream("OpenAI response had no choices", nil)
	}

	choices := make([]chat.Choice, 0, len(apiResp.Choices))
	for i, c := range apiResp.Choices {
		msg := chat.Message{Role: chat.RoleAssistant, Content: c.Message.Content}
		for _, tc := range c.Message.ToolCalls {
			var args map[string]interface{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return nil, gwerrors.NewUpstream(fmt.Sprintf("parse tool call arguments for %s", tc.Function.Name), err)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
		}
		choices = append(choices, chat.Choice{
			Index:        i,
			Message:      msg,
			FinishReason: finishReasonOf(c.FinishReason),
		})
	}

	return &chat.Response{
		ID:      apiResp.ID,
		Created: chat.Now().Unix(),
		Model:   apiResp.Model,
		Choices: choices,
		Usage: chat.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.Total(),
		},
	}, nil
}

func finishReasonOf(raw string) chat.FinishReason {
	switch raw {
	case "tool_calls":
		return chat.FinishToolCalls
	case "length":
		return chat.FinishLength
	case "content_filter":
		return chat.FinishContentFilter
	default:
		return chat.FinishStop
	}
}

func classifyStatusErr(status int, body []byte) error {
	msg := fmt.Sprintf("OpenAI-compatible API error %d: %s", status, string(body))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return gwerrors.NewAuth(msg, nil)
	case http.StatusTooManyRequests:
		return gwerrors.NewRateLimited(0)
	case http.StatusBadRequest:
		return gwerrors.NewInvalidRequest(msg, nil)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return gwerrors.NewTimeout(msg, nil)
	default:
		return gwerrors.NewUpstream(msg, nil)
	}
}
