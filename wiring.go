package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/config"
	"github.com/KarmaFounder/friday-jarvis/content"
	"github.com/KarmaFounder/friday-jarvis/dates"
	"github.com/KarmaFounder/friday-jarvis/monday"
	"github.com/KarmaFounder/friday-jarvis/progress"
	"github.com/KarmaFounder/friday-jarvis/resolve"
	"github.com/KarmaFounder/friday-jarvis/schema"
	"github.com/KarmaFounder/friday-jarvis/storage"
	"github.com/KarmaFounder/friday-jarvis/worker"
	"github.com/KarmaFounder/friday-jarvis/workflow"
)

// components are the collaborators shared by the serve and worker commands.
// Optional ones are nil when their configuration is missing.
type components struct {
	logger    *log.Logger
	redis     *redis.Client
	store     *storage.Storage
	extractor *content.Extractor
	generator *content.Generator
	executor  *workflow.Executor
	runner    *worker.Runner
}

// build wires the workflow stack. progressFor picks the progress publisher
// once the Redis client, possibly nil, is known.
func build(cfg config.Config, progressFor func(*redis.Client) progress.Publisher, reg prometheus.Registerer) (*components, error) {
	logger := log.StandardLogger()
	c := &components{logger: logger}

	if cfg.RedisConnectionString != "" {
		opts, err := config.RedisOptions(cfg.RedisConnectionString)
		if err != nil {
			return nil, err
		}
		c.redis = redis.NewClient(opts)
	}
	if cfg.StorageConnectionString != "" {
		store, err := storage.New(cfg.StorageConnectionString, cfg.RunsTable, cfg.JobsQueue)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		c.store = store
	}

	client := monday.New(monday.Options{
		URL:         cfg.MondayAPIURL,
		Token:       cfg.MondayAPIKey,
		Timeout:     cfg.MondayTimeout,
		MaxAttempts: cfg.MondayMaxAttempts,
		Logger:      logger,
	})

	schemaOpts := []schema.Option{schema.WithTTL(cfg.SchemaCacheTTL), schema.WithLogger(logger)}
	if c.redis != nil {
		schemaOpts = append(schemaOpts, schema.WithRedis(c.redis))
	}
	schemas := schema.New(client, schemaOpts...)

	rules := resolve.DefaultRules()
	if cfg.RulesFile != "" {
		r, err := resolve.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("resolver rules: %w", err)
		}
		rules = r
	}
	resolver := resolve.New(client, schemas,
		resolve.WithRules(rules),
		resolve.WithHomeBoard(cfg.MondayHomeBoard),
		resolve.WithLogger(logger),
	)

	if cfg.OpenAIAPIKey != "" || cfg.OpenAIBaseURL != "" {
		llm := content.NewOpenAI(content.Options{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  logger,
		})
		c.generator = content.NewGenerator(llm)
		c.extractor = content.NewExtractor(llm)
	} else {
		logger.Warn("no language model configured; generated updates and chat are disabled")
	}

	deps := workflow.Deps{
		Remote:   client,
		Resolver: resolver,
		Schemas:  schemas,
		Dates:    dates.New(),
		Progress: progressFor(c.redis),
		Metrics:  workflow.NewMetrics(reg),
		Logger:   logger,
	}
	if c.generator != nil {
		deps.Generator = c.generator
	}
	c.executor = workflow.New(deps)

	var recorder worker.RunRecorder
	if c.store != nil {
		recorder = c.store
	}
	c.runner = worker.NewRunner(c.executor, recorder, logger)
	return c, nil
}

// health reports whether the shared backing services answer.
func (c *components) health(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return errors.Join(errors.New("redis unavailable"), err)
	}
	return nil
}

func (c *components) close() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.WithError(err).Warn("close redis")
		}
	}
}
