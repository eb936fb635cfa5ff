package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/KarmaFounder/friday-jarvis/config"
	"github.com/KarmaFounder/friday-jarvis/progress"
	"github.com/KarmaFounder/friday-jarvis/worker"
)

func newWorkerCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued workflow jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return work(ctx, *cfg)
		},
	}
}

func work(ctx context.Context, cfg config.Config) error {
	if cfg.StorageConnectionString == "" || cfg.JobsQueue == "" {
		return errors.New("missing storage config")
	}

	// Progress reaches the API process over Redis; without it events are dropped.
	relay := func(rc *redis.Client) progress.Publisher {
		if rc == nil {
			return nil
		}
		return progress.NewRedisRelay(rc, cfg.ProgressChannel, nil)
	}
	c, err := build(cfg, relay, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer c.close()

	p := worker.NewProcessor(c.store, c.runner, c.logger)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
