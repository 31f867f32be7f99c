package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/sensei/internal/api"
	"github.com/MikeSquared-Agency/sensei/internal/hermes"
	"github.com/MikeSquared-Agency/sensei/internal/processor"
	"github.com/MikeSquared-Agency/sensei/internal/slack"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event subscriptions and the classification schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger := slog.Default()
	logger.Info("sensei starting", "port", cfg.Port, "provider", cfg.LLMProvider)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	gen, closeGen, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGen()

	cls := newClassifier(cfg, db, gen)

	// NATS/Hermes (optional)
	var pub processor.Publisher
	var hc *hermes.Client
	if cfg.NatsURL != "" {
		hc, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer hc.Close()
		pub = hc
		logger.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		logger.Warn("NATS not configured, running without events")
	}

	// Slack poster (optional)
	var alerts processor.AlertPoster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		alerts = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		logger.Warn("slack not configured, running without alerts")
	}

	proc := processor.New(db, cls, pub, alerts, logger)

	if hc != nil {
		subs := map[string]func(string, []byte){
			hermes.SubjectSlackReaction:   proc.HandleReaction,
			hermes.SubjectMessageStored:   proc.HandleMessageStored,
			hermes.SubjectAgentRegistered: proc.HandleAgentRegistered,
		}
		for subject, handler := range subs {
			if err := hc.Subscribe(subject, handler); err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
		}
	}

	srv := api.NewServer(cfg.Port, cfg.APIToken, cfg.CORSOrigins, db, proc, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if cfg.ClassifySchedule != "" {
		sched, err := newScheduler(ctx, cfg.ClassifySchedule, proc.RunBatch, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
		logger.Info("classification scheduled", "schedule", cfg.ClassifySchedule)
	}

	logger.Info("sensei ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("sensei stopped")
	return nil
}
