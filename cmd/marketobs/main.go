package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"marketobs/internal/adapters"
	"marketobs/internal/api"
	"marketobs/internal/config"
	"marketobs/internal/observ"
	"marketobs/internal/reasoning"
	"marketobs/internal/store"
	"marketobs/internal/tracing"
	"marketobs/internal/worker"
)

func main() {
	var configPath string
	var logLevel string
	var once bool

	root := &cobra.Command{
		Use:           "marketobs",
		Short:         "Market observability worker and query API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the ticker analysis cycle loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			observ.Setup(logLevel)
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}

			w := worker.New(
				st,
				adapters.NewPriceClient(cfg.AlphaVantage),
				adapters.NewNewsClient(cfg.NewsAPI),
				reasoning.NewReasoner(cfg.Gemini),
				tracing.NewTracer(cfg.Langfuse),
				observ.NewRegistry(),
				worker.Options{
					PriceThresholdPct: cfg.Gemini.PriceThresholdPct,
					MaxHeadlines:      cfg.Gemini.MaxHeadlines,
				},
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			interval := time.Duration(cfg.Worker.IntervalSeconds) * time.Second
			err = w.Run(ctx, interval, once || cfg.Worker.RunOnce)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	workerCmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")

	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the query API",
		RunE: func(_ *cobra.Command, _ []string) error {
			observ.Setup(logLevel)
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			router := api.NewRouter(st, observ.NewRegistry())
			observ.Log("api_listening", map[string]any{"addr": cfg.APIAddr})
			return router.Run(cfg.APIAddr)
		},
	}

	root.AddCommand(workerCmd, apiCmd)
	if err := root.Execute(); err != nil {
		observ.LogError("fatal", err, nil)
		os.Exit(1)
	}
}
