package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiClient is the Google Gemini LLM client.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// Name returns the provider name.
func (c *GeminiClient) Name() string {
	return string(ProviderGemini)
}

// DefaultModel returns the model used when a request names none.
func (c *GeminiClient) DefaultModel() string {
	return defaultGeminiModel
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Complete sends a completion request.
func (c *GeminiClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 || turns[len(turns)-1].Role != RoleUser {
		return nil, errors.New("gemini: conversation must end with a user turn")
	}

	model := c.client.GenerativeModel(modelName)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.SetTemperature(float32(req.Temperature))
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	cs := model.StartChat()
	cs.History = geminiHistory(turns[:len(turns)-1])

	res, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return nil, err
	}

	out := PlainText("")
	var stopReason string
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		out = geminiOutput(res.Candidates[0].Content.Parts)
		stopReason = res.Candidates[0].FinishReason.String()
	}

	resp := &CompletionResponse{
		Output:     out,
		Model:      modelName,
		StopReason: stopReason,
	}
	if res.UsageMetadata != nil {
		resp.TokensIn = int(res.UsageMetadata.PromptTokenCount)
		resp.TokensOut = int(res.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

// geminiHistory maps prior turns onto Gemini roles.
func geminiHistory(turns []ChatMessage) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return history
}

// geminiOutput concatenates text parts. Responses without text are returned
// as structured values built from function calls.
func geminiOutput(parts []genai.Part) Output {
	var text strings.Builder
	var structured []any
	for _, part := range parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			structured = append(structured, p.Args)
		}
	}

	if text.Len() > 0 || len(structured) == 0 {
		return PlainText(text.String())
	}
	if len(structured) == 1 {
		return Structured(structured[0])
	}
	return Structured(structured)
}
