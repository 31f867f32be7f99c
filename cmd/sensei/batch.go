package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/sensei/internal/analytics"
	"github.com/MikeSquared-Agency/sensei/internal/processor"
	"github.com/MikeSquared-Agency/sensei/internal/synchronizer"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Project conversations into sessions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := synchronizer.New(db, slog.Default()).Synchronize(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newClassifyCmd() *cobra.Command {
	var (
		drain bool
		pause time.Duration
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one batch of pending sessions",
		Long:  "Synchronizes sessions and classifies the most recent unclassified ones. With --drain, batches repeat until nothing is pending or a batch makes no progress.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
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

			proc := processor.New(db, newClassifier(cfg, db, gen), nil, nil, slog.Default())
			if drain {
				res, err := proc.Drain(ctx, pause)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}
			res, err := proc.RunBatch(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().BoolVar(&drain, "drain", false, "repeat batches until nothing is pending")
	cmd.Flags().DurationVar(&pause, "pause", 30*time.Second, "pause between drained batches")
	return cmd
}

func newOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Print the analytics overview as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			out, err := analytics.ComputeOverview(cmd.Context(), db, slog.Default(), time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
