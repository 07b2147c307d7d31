// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/config"
	"github.com/capitalize-ai/character-chat/internal/handler"
	"github.com/capitalize-ai/character-chat/internal/llm"
	natsclient "github.com/capitalize-ai/character-chat/internal/nats"
	"github.com/capitalize-ai/character-chat/internal/quota"
	"github.com/capitalize-ai/character-chat/internal/service"
	"github.com/capitalize-ai/character-chat/internal/store"
	"github.com/capitalize-ai/character-chat/pkg/logger"
	"github.com/capitalize-ai/character-chat/pkg/tracing"
)

// usageKeyTTL keeps a day's counter alive past the end of the UTC day.
const usageKeyTTL = 48 * time.Hour

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("env", cfg.Env))

	ctx := context.Background()

	// Error reporting
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
		}); err != nil {
			log.Warn("failed to initialize sentry", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "character-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(ctx, tp) }()
		}
	}

	// Database
	db, err := store.Open(cfg.DSN())
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	st := store.New(db)

	// Connect to NATS when events or the KV quota backend need it
	var natsClient *natsclient.Client
	if cfg.EventsEnabled || cfg.QuotaBackend == "nats" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()
	}

	var events service.EventPublisher
	if cfg.EventsEnabled {
		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		events = streamManager
	}

	// Quota ledger
	var ledger quota.Ledger
	var sqlLedger *quota.SQLLedger
	switch cfg.QuotaBackend {
	case "nats":
		bucket, err := natsclient.EnsureUsageBucket(ctx, natsClient, usageKeyTTL)
		if err != nil {
			log.Fatal("failed to open usage bucket", zap.Error(err))
		}
		ledger = quota.NewKVLedger(bucket, cfg.FreeDailyLimit)
	case "sql", "":
		sqlLedger = quota.NewSQLLedger(db, cfg.FreeDailyLimit)
		ledger = sqlLedger
	default:
		log.Fatal("unknown quota backend", zap.String("backend", cfg.QuotaBackend))
	}

	// Generation backend
	llmClient, err := llm.NewClient(ctx, llm.Provider(cfg.LLMProvider), providerKey(cfg))
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}
	if c, ok := llmClient.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	generator := llm.NewGenerator(llmClient, llm.GeneratorConfig{
		Model:       cfg.GenerationModel,
		Timeout:     cfg.GenerationTimeout,
		MaxTokens:   cfg.GenerationMaxTokens,
		MaxChars:    cfg.GenerationMaxChars,
		Temperature: cfg.GenerationTemperature,
	}, log)
	drafter := llm.NewGenerator(llmClient, llm.GeneratorConfig{
		Model:       cfg.GenerationModel,
		Timeout:     cfg.GenerationTimeout,
		MaxTokens:   cfg.CharacterGenerationMaxTokens,
		Temperature: cfg.CharacterGenerationTemperature,
		JSON:        true,
	}, log)

	// Initialize services
	chatSvc := service.NewChatService(st, ledger, generator, events, log)
	profileSvc := service.NewProfileService(st, ledger, log)
	personaSvc := service.NewPersonaService(st, log)
	characterSvc := service.NewCharacterService(st, drafter, log)
	billingSvc := service.NewBillingService(st, log)

	// Initialize handlers
	handlers := handler.Handlers{
		Health:        handler.NewHealthHandler(st, natsClient),
		Conversations: handler.NewConversationHandler(chatSvc, log),
		Messages:      handler.NewMessageHandler(chatSvc, log),
		Characters:    handler.NewCharacterHandler(characterSvc, log),
		Personas:      handler.NewPersonaHandler(personaSvc, log),
		Profiles:      handler.NewProfileHandler(profileSvc, log),
		Billing:       handler.NewBillingHandler(billingSvc, cfg.StripeWebhookSecret, log),
	}

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	router := handler.NewRouter(handlers, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Wrap:              sentryHandler.Handle,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	if sqlLedger != nil && cfg.UsagePruneInterval > 0 {
		go pruneUsage(pruneCtx, sqlLedger, cfg.UsagePruneInterval, log)
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopPrune()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func providerKey(cfg *config.Config) string {
	switch llm.Provider(cfg.LLMProvider) {
	case llm.ProviderAnthropic:
		return cfg.AnthropicAPIKey
	case llm.ProviderGemini:
		return cfg.GeminiAPIKey
	default:
		return cfg.OpenAIAPIKey
	}
}

// pruneUsage drops usage rows for days before yesterday.
func pruneUsage(ctx context.Context, ledger *quota.SQLLedger, every time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			before := quota.DayKey(now.AddDate(0, 0, -1))
			n, err := ledger.Prune(ctx, before)
			if err != nil {
				log.Warn("failed to prune daily usage", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("pruned daily usage", zap.Int64("rows", n), zap.String("before", before))
			}
		}
	}
}
