// Package config reads process settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds every setting of the serve, worker and init-storage commands.
type Config struct {
	Debug bool

	MondayAPIKey      string
	MondayAPIURL      string
	MondayHomeBoard   string
	MondayTimeout     time.Duration
	MondayMaxAttempts int

	RedisConnectionString string
	SchemaCacheTTL        time.Duration
	DeduperTTL            time.Duration
	ProgressChannel       string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	StorageConnectionString string
	RunsTable               string
	JobsQueue               string

	RulesFile string

	Auth0Domain     string
	Auth0Audience   string
	LocalAuthMode   string
	LocalAuthSecret string
	JWKSCacheTTL    time.Duration

	Port           string
	AsyncWorkers   int
	AsyncBuffer    int
	AsyncTimeout   time.Duration
	HandoffTimeout time.Duration
}

// FromEnv reads the configuration. Only MONDAY_API_KEY is mandatory; every
// other feature is switched off or defaulted when its variables are unset.
func FromEnv() (Config, error) {
	c := Config{
		MondayAPIKey:            os.Getenv("MONDAY_API_KEY"),
		MondayAPIURL:            os.Getenv("MONDAY_API_URL"),
		MondayHomeBoard:         os.Getenv("MONDAY_BOARD_ID"),
		RedisConnectionString:   os.Getenv("REDIS_CONNECTION_STRING"),
		ProgressChannel:         os.Getenv("PROGRESS_CHANNEL"),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:           os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:             os.Getenv("OPENAI_MODEL"),
		StorageConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		RunsTable:               envOr("RUNS_TABLE", "workflowruns"),
		JobsQueue:               os.Getenv("JOBS_QUEUE"),
		RulesFile:               os.Getenv("RESOLVER_RULES_FILE"),
		Auth0Domain:             os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:           os.Getenv("AUTH0_AUDIENCE"),
		LocalAuthMode:           strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")),
		LocalAuthSecret:         os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
		Port:                    envOr("PORT", "8080"),
	}
	if v, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		c.Port = v
	}

	var err error
	if c.Debug, err = envBool("DEBUG", false); err != nil {
		return c, err
	}
	if c.MondayTimeout, err = envDuration("MONDAY_TIMEOUT", 30*time.Second); err != nil {
		return c, err
	}
	if c.MondayMaxAttempts, err = envInt("MONDAY_MAX_ATTEMPTS", 3); err != nil {
		return c, err
	}
	if c.SchemaCacheTTL, err = envDuration("SCHEMA_CACHE_TTL", 10*time.Minute); err != nil {
		return c, err
	}
	if c.DeduperTTL, err = envDuration("DEDUPER_TTL", 24*time.Hour); err != nil {
		return c, err
	}
	if c.JWKSCacheTTL, err = envDuration("JWKS_CACHE_TTL", 15*time.Minute); err != nil {
		return c, err
	}
	if c.AsyncWorkers, err = envInt("ASYNC_WORKERS", 4); err != nil {
		return c, err
	}
	if c.AsyncBuffer, err = envInt("ASYNC_BUFFER", 64); err != nil {
		return c, err
	}
	if c.AsyncTimeout, err = envDuration("ASYNC_TIMEOUT", 10*time.Minute); err != nil {
		return c, err
	}
	if c.HandoffTimeout, err = envDuration("ASYNC_HANDOFF_TIMEOUT", 15*time.Millisecond); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.MondayAPIKey == "" {
		return errors.New("missing MONDAY_API_KEY")
	}
	switch c.LocalAuthMode {
	case "":
	case "hs256":
		if c.LocalAuthSecret == "" {
			return errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	default:
		return fmt.Errorf("unsupported LOCAL_AUTH_MODE %q", c.LocalAuthMode)
	}
	return nil
}

// ValidateServe checks the settings the HTTP server needs on top of the
// common ones.
func (c Config) ValidateServe() error {
	if c.LocalAuthMode == "" && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// RedisOptions parses REDIS_CONNECTION_STRING, accepting a redis:// URL or
// the "host:port,password=...,ssl=true" form.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	if opts.Addr == "" {
		return nil, fmt.Errorf("invalid redis connection string %q", conn)
	}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
