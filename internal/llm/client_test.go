package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "plain", Normalize(PlainText("plain")))
	assert.Equal(t, "a\nb", Normalize(Structured([]any{"a", "b"})))
	assert.Equal(t, "said", Normalize(Structured(map[string]any{"content": "said"})))
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]ChatMessage{
		{Role: RoleSystem, Content: "character"},
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleAssistant, Content: "greeting"},
		{Role: RoleUser, Content: "hi"},
	})
	assert.Equal(t, []string{"character", "persona"}, system)
	assert.Len(t, turns, 2)
}

func TestDropLeadingAssistant(t *testing.T) {
	turns := dropLeadingAssistant([]ChatMessage{
		{Role: RoleAssistant, Content: "greeting"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)

	assert.Empty(t, dropLeadingAssistant([]ChatMessage{{Role: RoleAssistant, Content: "x"}}))
}

func TestAnthropicTemperature(t *testing.T) {
	assert.Equal(t, 1.0, anthropicTemperature(1.1))
	assert.Equal(t, 0.7, anthropicTemperature(0.7))
	assert.Equal(t, 0.0, anthropicTemperature(-1))
}

func TestGeminiHistoryRoles(t *testing.T) {
	h := geminiHistory([]ChatMessage{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	require.Len(t, h, 2)
	assert.Equal(t, "user", h[0].Role)
	assert.Equal(t, "model", h[1].Role)
}

func TestGeminiOutput(t *testing.T) {
	out := geminiOutput([]genai.Part{genai.Text("Hello "), genai.Text("there")})
	assert.Equal(t, KindPlainText, out.Kind)
	assert.Equal(t, "Hello there", out.Text)

	out = geminiOutput([]genai.Part{genai.FunctionCall{Name: "reply", Args: map[string]any{"text": "structured"}}})
	assert.Equal(t, KindStructured, out.Kind)
	assert.Equal(t, "structured", Normalize(out))
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), "mistral", "key")
	assert.Error(t, err)

	_, err = NewClient(context.Background(), ProviderOpenAI, "")
	assert.Error(t, err)
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 600, req.MaxTokens)
		assert.Len(t, req.Messages, 2)
		assert.Nil(t, req.ResponseFormat)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "Greetings."},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 20, CompletionTokens: 3},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	client := NewOpenAIClientWithConfig(cfg)

	resp, err := client.Complete(context.Background(), &CompletionRequest{
		Messages:    history,
		MaxTokens:   600,
		Temperature: 1.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Greetings.", Normalize(resp.Output))
	assert.Equal(t, 20, resp.TokensIn)
	assert.Equal(t, 3, resp.TokensOut)
	assert.Equal(t, "stop", resp.StopReason)
}

func TestOpenAIClientRequestsJSONObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: `{"greeting":"Hi."}`},
			}},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"

	resp, err := NewOpenAIClientWithConfig(cfg).Complete(context.Background(), &CompletionRequest{
		Messages: history,
		JSON:     true,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"Hi."}`, Normalize(resp.Output))
}

func TestOpenAIOutputToolCalls(t *testing.T) {
	out := openAIOutput(openai.ChatCompletionMessage{
		ToolCalls: []openai.ToolCall{{Function: openai.FunctionCall{Arguments: `{"text":"from tool"}`}}},
	})
	assert.Equal(t, KindStructured, out.Kind)
	assert.Equal(t, "from tool", Normalize(out))
}
