package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/pkg/logger"
	"github.com/capitalize-ai/character-chat/pkg/metrics"
	"github.com/capitalize-ai/character-chat/pkg/tracing"
)

// Timeout bounds for a single generation call.
const (
	MinTimeout     = 20 * time.Second
	MaxTimeout     = 25 * time.Second
	DefaultTimeout = MaxTimeout
)

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	MaxChars    int
	Temperature float64
	// JSON requests a JSON object reply. The reply must decode as JSON.
	JSON bool
}

// Generation is a normalized reply. Payload holds the raw JSON when the
// provider answered with structured output or the generator runs in JSON
// mode.
type Generation struct {
	Text      string
	Payload   json.RawMessage
	Model     string
	TokensIn  int
	TokensOut int
	Truncated bool
}

// Generator performs one bounded generation call per invocation. It never
// retries.
type Generator struct {
	client      Client
	model       string
	timeout     time.Duration
	maxTokens   int
	maxChars    int
	temperature float64
	json        bool
	tracer      trace.Tracer
	logger      *logger.Logger
}

// NewGenerator creates a generator. The timeout is clamped to
// [MinTimeout, MaxTimeout]; zero selects DefaultTimeout.
func NewGenerator(client Client, cfg GeneratorConfig, log *logger.Logger) *Generator {
	timeout := cfg.Timeout
	switch {
	case timeout == 0:
		timeout = DefaultTimeout
	case timeout < MinTimeout:
		timeout = MinTimeout
	case timeout > MaxTimeout:
		timeout = MaxTimeout
	}

	model := cfg.Model
	if model == "" {
		model = client.DefaultModel()
	}

	return &Generator{
		client:      client,
		model:       model,
		timeout:     timeout,
		maxTokens:   cfg.MaxTokens,
		maxChars:    cfg.MaxChars,
		temperature: cfg.Temperature,
		json:        cfg.JSON,
		tracer:      tracing.Tracer("character-chat/llm"),
		logger:      log.Named("generator"),
	}
}

// Generate runs the assembled context through the provider and returns
// trimmed plain text. Deadline expiry maps to a timeout error and an empty
// result maps to an empty_reply error.
func (g *Generator) Generate(ctx context.Context, messages []ChatMessage) (*Generation, error) {
	ctx, span := g.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", g.client.Name()),
		attribute.String("llm.model", g.model),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, &CompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		JSON:        g.json,
	})
	elapsed := time.Since(start)

	if err != nil {
		appErr := g.classify(callCtx, err)
		g.record(string(appErr.Kind), elapsed, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(appErr.Kind))
		g.logger.Warn("generation failed",
			zap.String("kind", string(appErr.Kind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, appErr
	}

	payload, err := g.payload(resp.Output)
	if err != nil {
		g.record(string(apperr.KindGenerationFailed), elapsed, resp)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindGenerationFailed))
		g.logger.Warn("malformed structured reply", zap.Error(err))
		return nil, apperr.Wrap(apperr.KindGenerationFailed, "generation returned malformed output", err)
	}

	text := strings.TrimSpace(Normalize(resp.Output))
	truncated := false
	if g.maxChars > 0 && utf8.RuneCountInString(text) > g.maxChars {
		text = strings.TrimSpace(string([]rune(text)[:g.maxChars]))
		truncated = true
	}

	if text == "" {
		g.record(string(apperr.KindEmptyReply), elapsed, resp)
		span.SetStatus(codes.Error, string(apperr.KindEmptyReply))
		return nil, apperr.New(apperr.KindEmptyReply, "the character did not reply, try again")
	}

	g.record("ok", elapsed, resp)
	span.SetAttributes(
		attribute.Int("llm.tokens_in", resp.TokensIn),
		attribute.Int("llm.tokens_out", resp.TokensOut),
		attribute.Bool("llm.truncated", truncated),
	)

	model := resp.Model
	if model == "" {
		model = g.model
	}
	return &Generation{
		Text:      text,
		Payload:   payload,
		Model:     model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		Truncated: truncated,
	}, nil
}

// payload extracts the raw JSON of a reply. Structured output is always
// kept; plain text is only decoded in JSON mode, where it must be valid.
func (g *Generator) payload(o Output) (json.RawMessage, error) {
	if o.Kind == KindStructured {
		return json.Marshal(o.Value)
	}
	if !g.json {
		return nil, nil
	}
	raw := []byte(strings.TrimSpace(o.Text))
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("reply is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func (g *Generator) classify(callCtx context.Context, err error) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, "the character took too long to reply", err)
	}
	return apperr.Wrap(apperr.KindGenerationFailed, "generation backend error", err)
}

func (g *Generator) record(status string, elapsed time.Duration, resp *CompletionResponse) {
	var in, out int
	if resp != nil {
		in, out = resp.TokensIn, resp.TokensOut
	}
	metrics.RecordGeneration(g.client.Name(), g.model, status, elapsed.Seconds(), in, out)
}
