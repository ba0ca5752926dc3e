package anthropic

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

const anthropicVersion = "2023-06-01"

func init() {
	llm.RegisterFactory("anthropic", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Provider implements the Anthropic Messages API natively.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
	logger  *zap.Logger
}

// New creates an Anthropic API provider with a pooled HTTP client: one
// client per adapter instance, reused across calls, never created
// per-request.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
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
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "anthropic")),
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
		return nil, gwerrors.NewInternal("marshal Anthropic request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewInternal("create Anthropic request", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerrors.NewUpstream("read Anthropic response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusErr(resp.StatusCode, respBody)
	}

	return p.parseAPIResponse(respBody)
}

// Stream implements llm.Provider with Anthropic SSE streaming.
func (p *Provider) Stream(ctx context.Context, req chat.Request) (<-chan chat.StreamChunk, error) {
	apiReq := p.buildAPIRequest(req)
	apiReq.Stream = true

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, gwerrors.NewInternal("marshal Anthropic request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewInternal("create Anthropic request", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(err)
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
				p.logger.Info("context cancelled, closing Anthropic SSE stream", zap.Error(ctx.Err()))
				resp.Body.Close()
			case <-done:
			}
		}()

		if err := ParseSSEStream(ctx, resp.Body, out, p.logger); err != nil {
			p.logger.Warn("Anthropic SSE stream ended with error", zap.Error(err))
		}
		close(done)
	}()

	return out, nil
}

// --- Internal ---

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (p *Provider) buildAPIRequest(req chat.Request) *Request {
	model := req.Model
	if idx := strings.Index(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}

	apiReq := &Request{
		Model: model,
	}
	if req.Params.MaxTokens != nil {
		apiReq.MaxTokens = *req.Params.MaxTokens
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = 8192 // Anthropic requires explicit max_tokens
	}
	if req.Params.Temperature != nil {
		apiReq.Temperature = *req.Params.Temperature
	}

	// Extract system prompt from messages.
	var messages []Message
	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem:
			apiReq.System = msg.Content

		case chat.RoleAssistant:
			var blocks []ContentBlock
			if msg.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			if len(blocks) > 0 {
				messages = append(messages, Message{Role: "assistant", Content: blocks})
			}

		case chat.RoleTool:
			// Anthropic: tool results go as user role with tool_result blocks.
			messages = append(messages, Message{
				Role: "user",
				Content: []ContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})

		default: // user
			messages = append(messages, Message{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}
	apiReq.Messages = messages

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: ConvertSchema(t.Parameters),
		})
	}

	return apiReq
}

func (p *Provider) parseAPIResponse(body []byte) (*chat.Response, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, gwerrors.NewUpstream("parse Anthropic response", err)
	}

	msg := chat.Message{Role: chat.RoleAssistant}
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	return &chat.Response{
		ID:      apiResp.ID,
		Created: chat.Now().Unix(),
		Model:   apiResp.Model,
		Choices: []chat.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: stopReasonToFinish(apiResp.StopReason),
		}},
		Usage: chat.Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.Total(),
		},
	}, nil
}

func stopReasonToFinish(reason string) chat.FinishReason {
	switch reason {
	case "tool_use":
		return chat.FinishToolCalls
	case "max_tokens":
		return chat.FinishLength
	case "stop_sequence", "end_turn":
		return chat.FinishStop
	default:
		return chat.FinishStop
	}
}

func classifyTransportErr(err error) error {
	return gwerrors.NewTimeout("Anthropic request failed", err)
}

func classifyStatusErr(status int, body []byte) error {
	msg := fmt.Sprintf("Anthropic API error %d: %s", status, string(body))
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
