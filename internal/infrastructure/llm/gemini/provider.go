package gemini

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
	llm.RegisterFactory("gemini", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Provider implements the Google Gemini API natively.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Google Gemini API provider.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
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
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "gemini")),
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
	model := p.stripPrefix(req.Model)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, gwerrors.NewInternal("marshal Gemini request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewInternal("create Gemini request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.NewTimeout("Gemini request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerrors.NewUpstream("read Gemini response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusErr(resp.StatusCode, respBody)
	}

	return p.parseAPIResponse(respBody, model)
}

// Stream implements llm.Provider with Gemini SSE streaming.
func (p *Provider) Stream(ctx context.Context, req chat.Request) (<-chan chat.StreamChunk, error) {
	apiReq := p.buildAPIRequest(req)
	model := p.stripPrefix(req.Model)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, gwerrors.NewInternal("marshal Gemini request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewInternal("create Gemini request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.NewTimeout("Gemini request failed", err)
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
				p.logger.Info("context cancelled, force-closing Gemini SSE stream", zap.Error(ctx.Err()))
				resp.Body.Close()
			case <-done:
			}
		}()

		if err := ParseSSEStream(ctx, resp.Body, out, p.logger); err != nil {
			p.logger.Warn("Gemini SSE stream ended with error", zap.Error(err))
		}
		close(done)
	}()

	return out, nil
}

// --- Internal ---

func (p *Provider) stripPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

func (p *Provider) buildAPIRequest(req chat.Request) *Request {
	apiReq := &Request{GenerationConfig: &GenerationConfig{}}
	if req.Params.Temperature != nil {
		apiReq.GenerationConfig.Temperature = *req.Params.Temperature
	}
	if req.Params.MaxTokens != nil {
		apiReq.GenerationConfig.MaxOutputTokens = *req.Params.MaxTokens
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem:
			apiReq.SystemInstruction = &Content{Parts: []Part{{Text: msg.Content}}}

		case chat.RoleAssistant:
			content := Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content.Parts = append(content.Parts, Part{
					FunctionCall: &FunctionCall{Name: tc.Name, Args: tc.Arguments},
				})
			}
			if len(content.Parts) > 0 {
				apiReq.Contents = append(apiReq.Contents, content)
			}

		case chat.RoleTool:
			// Gemini: tool results are functionResponse parts in a user turn.
			result := map[string]interface{}{"output": msg.Content}
			apiReq.Contents = append(apiReq.Contents, Content{
				Role: "user",
				Parts: []Part{{
					FunctionResponse: &FunctionResponse{Name: msg.Name, Response: result},
				}},
			})

		default: // user
			apiReq.Contents = append(apiReq.Contents, Content{
				Role:  "user",
				Parts: []Part{{Text: msg.Content}},
			})
		}
	}

	if len(req.Tools) > 0 {
		var decls []FunctionDeclarationSpec
		for _, t := range req.Tools {
			decls = append(decls, FunctionDeclarationSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  ConvertSchema(t.Parameters),
			})
		}
		apiReq.Tools = []ToolDeclaration{{FunctionDeclarations: decls}}
	}

	return apiReq
}

func (p *Provider) parseAPIResponse(body []byte, requestedModel string) (*chat.Response, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, gwerrors.NewUpstream("parse Gemini response", err)
	}

	if len(apiResp.Candidates) == 0 {
		return nil, gwerrors.NewUpstream("Gemini response had no candidates", nil)
	}

	candidate := apiResp.Candidates[0]
	msg := chat.Message{Role: chat.RoleAssistant}
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			msg.Content += part.Text
		}
		if part.FunctionCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
				ID:        fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, len(msg.ToolCalls)),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	model := apiResp.ModelVersion
	if model == "" {
		model = requestedModel
	}

	usage := chat.Usage{}
	if apiResp.UsageMetadata != nil {
		usage = chat.Usage{
			PromptTokens:     apiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      apiResp.UsageMetadata.Total(),
		}
	}

	return &chat.Response{
		ID:      fmt.Sprintf("gemini-%d", chat.Now().UnixNano()),
		Created: chat.Now().Unix(),
		Model:   model,
		Choices: []chat.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finishReasonOf(candidate.FinishReason),
		}},
		Usage: usage,
	}, nil
}

func finishReasonOf(raw string) chat.FinishReason {
	switch raw {
	case "MAX_TOKENS":
		return chat.FinishLength
	case "SAFETY", "RECITATION":
		return chat.FinishContentFilter
	case "":
		return chat.FinishStop
	default:
		return chat.FinishStop
	}
}

func classifyStatusErr(status int, body []byte) error {
	msg := fmt.Sprintf("Gemini API error %d: %s", status, string(body))
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
