package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient is the OpenAI LLM client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return NewOpenAIClientWithConfig(openai.DefaultConfig(apiKey)), nil
}

// NewOpenAIClientWithConfig creates a client from an explicit configuration,
// e.g. to target a compatible endpoint.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

// DefaultModel returns the model used when a request names none.
func (c *OpenAIClient) DefaultModel() string {
	return defaultOpenAIModel
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	out := PlainText("")
	var stopReason string
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		stopReason = string(choice.FinishReason)
		out = openAIOutput(choice.Message)
	}

	return &CompletionResponse{
		Output:     out,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: stopReason,
	}, nil
}

// openAIOutput prefers message content and falls back to decoded tool call
// arguments.
func openAIOutput(msg openai.ChatCompletionMessage) Output {
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		return PlainText(msg.Content)
	}

	args := make([]any, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		var v any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &v); err != nil {
			v = call.Function.Arguments
		}
		args = append(args, v)
	}
	if len(args) == 1 {
		return Structured(args[0])
	}
	return Structured(args)
}
