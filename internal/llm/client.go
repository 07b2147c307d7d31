// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/capitalize-ai/character-chat/internal/normalize"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a single JSON object.
	JSON bool
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OutputKind tags the shape of a provider result.
type OutputKind int

const (
	KindPlainText OutputKind = iota
	KindStructured
)

// Output is a provider result. Exactly one of Text or Value is meaningful,
// depending on Kind.
type Output struct {
	Kind  OutputKind
	Text  string
	Value any
}

// PlainText wraps a text result.
func PlainText(s string) Output {
	return Output{Kind: KindPlainText, Text: s}
}

// Structured wraps a decoded JSON-like result.
func Structured(v any) Output {
	return Output{Kind: KindStructured, Value: v}
}

// Normalize converts any provider output to plain text.
func Normalize(o Output) string {
	if o.Kind == KindStructured {
		return normalize.Text(o.Value)
	}
	return o.Text
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Output     Output
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// DefaultModel returns the model used when a request names none.
	DefaultModel() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// NewClient creates a new LLM client based on provider.
func NewClient(ctx context.Context, provider Provider, apiKey string) (Client, error) {
	switch Provider(strings.ToLower(string(provider))) {
	case ProviderOpenAI, "":
		return NewOpenAIClient(apiKey)
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderGemini:
		return NewGeminiClient(ctx, apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// splitSystem separates system segments from the conversational turns.
func splitSystem(messages []ChatMessage) ([]string, []ChatMessage) {
	var system []string
	turns := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
