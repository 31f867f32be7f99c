package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/MikeSquared-Agency/sensei/internal/anthropic"
	"github.com/MikeSquared-Agency/sensei/internal/api"
	"github.com/MikeSquared-Agency/sensei/internal/classifier"
	"github.com/MikeSquared-Agency/sensei/internal/config"
	"github.com/MikeSquared-Agency/sensei/internal/gemini"
	"github.com/MikeSquared-Agency/sensei/internal/llm"
	"github.com/MikeSquared-Agency/sensei/internal/processor"
	"github.com/MikeSquared-Agency/sensei/internal/store"
	"github.com/MikeSquared-Agency/sensei/internal/synchronizer"
)

var (
	_ api.Pinger                      = (*store.Store)(nil)
	_ processor.AlertTracker          = (*store.Store)(nil)
	_ processor.AgentActivator        = (*store.Store)(nil)
	_ synchronizer.ConversationGetter = (*store.Store)(nil)
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// loadConfig reads the environment and configures logging. needLLM selects
// the full validation; commands that never call a model only need the database.
func loadConfig(needLLM bool) (config.Config, error) {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if needLLM {
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("database connected")
	return db, nil
}

// newGenerator builds the configured model provider. The returned func
// releases provider resources.
func newGenerator(ctx context.Context, cfg config.Config) (llm.Generator, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.Model())
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		slog.Info("gemini client ready", "model", client.Model())
		return client, func() { _ = client.Close() }, nil
	case config.ProviderAnthropic:
		client := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.Model())
		slog.Info("anthropic client ready", "model", client.Model())
		return client, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown SENSEI_LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func newClassifier(cfg config.Config, db *store.Store, gen llm.Generator) *classifier.Classifier {
	return classifier.New(db, gen, slog.Default(), classifier.Options{
		DefaultModel: cfg.Model(),
		Concurrency:  cfg.ClassifyConcurrency,
	})
}

// newScheduler registers run on the cron expression. Overlapping runs are
// skipped.
func newScheduler(ctx context.Context, expr string, run func(context.Context) (classifier.Result, error), logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(expr, func() {
		res, err := run(ctx)
		if err != nil {
			logger.Error("scheduled classification failed", "error", err)
			return
		}
		logger.Info("scheduled classification complete",
			"classified", res.SessionsClassified,
			"pending", res.TotalPending,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid SENSEI_CLASSIFY_SCHEDULE %q: %w", expr, err)
	}
	return c, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
