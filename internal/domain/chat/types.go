// Package chat holds the gateway's canonical, provider-independent wire
// model. Every adapter translates into and out of these types; nothing
// downstream of the router ever touches a provider-specific shape directly.
package chat

import "time"

// Role is one of the four roles a Message can carry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is the canonical set a choice's generation can end with.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishToolCalls      FinishReason = "tool_calls"
	FinishContentFilter  FinishReason = "content_filter"
)

// ToolCall is one function-call the model asked the orchestrator to run.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one append-only turn in a transcript. Immutable once appended
// to a session: callers that need to change a message must replace the
// whole slice, never mutate a Message value in place.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Tool describes one function the model may call, in the shape every
// adapter's translate_in step expects to receive it.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// GenParams collects the optional generation knobs a client may set.
type GenParams struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	N                *int     `json:"n,omitempty"`
}

// Request is the canonical internal request shape every HTTP endpoint
// translates into before handing off to the orchestrator.
type Request struct {
	Model      string    `json:"model"`
	Messages   []Message `json:"messages"`
	Tools      []Tool    `json:"tools,omitempty"`
	ToolChoice any       `json:"tool_choice,omitempty"`
	Params     GenParams `json:"-"`
	Stream     bool      `json:"stream,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
}

// WithMessages returns a shallow copy of req with Messages replaced. The
// orchestrator uses this to thread the growing working transcript through
// repeated provider calls without mutating the caller's original request.
func (r Request) WithMessages(msgs []Message) Request {
	r.Messages = msgs
	return r
}

// WithModel returns a shallow copy of req with Model replaced. The
// orchestrator uses this to substitute the router's resolved, dated model
// name (e.g. "claude" -> "claude-3-5-sonnet-20241022") for the alias the
// caller sent, so adapters never send an alias upstream as the literal
// model field.
func (r Request) WithModel(model string) Request {
	r.Model = model
	return r
}

// Usage is the token accounting every response must populate, zero-filled
// when the upstream doesn't report one of the fields.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one candidate completion.
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Response is the canonical internal response shape every adapter
// translates an upstream reply into.
type Response struct {
	ID      string    `json:"id"`
	Created int64     `json:"created"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
}

// StreamChunk is one element of an adapter's stream() sequence: uniform
// across adapters, emitted in arrival order.
type StreamChunk struct {
	DeltaContent  string        `json:"delta_content,omitempty"`
	DeltaToolCall *ToolCall     `json:"delta_tool_call,omitempty"`
	FinishReason  FinishReason  `json:"finish_reason,omitempty"`
	Usage         *Usage        `json:"usage,omitempty"`
}

// Now is overridable in tests; production code always uses time.Now.
var Now = time.Now
