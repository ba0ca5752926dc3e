package llm

import "strings"

// Endpoint tags which upstream HTTP surface a resolved model must be called
// through. Most chat models use EndpointChat; a handful of dated OpenAI
// model families must go through the Responses API instead.
type Endpoint string

const (
	EndpointChat      Endpoint = "chat"
	EndpointResponses Endpoint = "responses"
)

// modelAlias maps a short, user-facing alias to the provider type and the
// concrete dated model name the adapter should actually send upstream.
type modelAlias struct {
	providerType string
	resolvedName string
}

// aliasTable is the single consolidated place dated model names and
// provider defaults live, instead of duplicating a per-model table in
// every adapter.
var aliasTable = map[string]modelAlias{
	"openai":     {"openai", "gpt-4o"},
	"gpt":        {"openai", "gpt-4o"},
	"claude":     {"anthropic", "claude-3-5-sonnet-20241022"},
	"anthropic":  {"anthropic", "claude-3-5-sonnet-20241022"},
	"claude-opus-4.5": {"anthropic", "claude-opus-4-5-20260501"},
	"deepseek":   {"deepseek", "deepseek-chat"},
	"google":     {"gemini", "gemini-1.5-pro"},
	"gemini":     {"gemini", "gemini-1.5-pro"},
}

// responsesAPIModels is the consolidated set of model families that must be
// routed to the Responses endpoint rather than chat completions.
var responsesAPIModels = []string{"gpt-5.2-pro", "o3", "o1"}

// contextWindow is the consolidated per-model context-length table, read
// through ContextWindowFor.
var contextWindow = map[string]int{
	"gpt-4o":                      128_000,
	"gpt-4o-mini":                 128_000,
	"gpt-5.2-pro":                 400_000,
	"o1":                          200_000,
	"o3":                          200_000,
	"claude-3-5-sonnet-20241022":  200_000,
	"claude-opus-4-5-20260501":    500_000,
	"gemini-1.5-pro":              2_000_000,
	"deepseek-chat":               64_000,
}

// ResolveAlias looks up a bare provider alias (e.g. "claude") and returns
// the provider type plus the dated model name to substitute.
func ResolveAlias(name string) (providerType, resolvedName string, ok bool) {
	a, ok := aliasTable[name]
	if !ok {
		return "", "", false
	}
	return a.providerType, a.resolvedName, true
}

// EndpointFor tags a resolved model with the upstream surface it must use.
func EndpointFor(model string) Endpoint {
	for _, family := range responsesAPIModels {
		if model == family || strings.HasPrefix(model, family+"-") {
			return EndpointResponses
		}
	}
	return EndpointChat
}

// ContextWindowFor returns the known context length for model, or 0 if
// unknown (callers should fall back to a conservative default).
func ContextWindowFor(model string) int {
	return contextWindow[model]
}
