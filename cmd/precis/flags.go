package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/precis/internal/cache"
	"github.com/samcharles93/precis/internal/generation"
	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/provider"
)

// settings holds every flag destination. Config file and environment
// values are folded in by Before for flags the user did not set.
type settings struct {
	configPath string
	envFile    string

	modelID   string
	modelsDir string
	hubCache  string
	revision  string
	offline   bool

	backend        string
	endpoint       string
	apiKey         string
	openAIModel    string
	requestTimeout time.Duration

	addr          string
	readTimeout   time.Duration
	rateLimit     float64
	rateBurst     int64
	cacheKind     string
	cacheSize     int64
	redisURL      string
	cacheTTL      time.Duration
	maxInputChars int64
	lazy          bool

	logLevel  string
	logFormat string
	debug     bool
}

func (s *settings) configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default ~/.config/precis/config.yaml)",
			Destination: &s.configPath,
		},
		&cli.StringFlag{
			Name:        "env-file",
			Usage:       "dotenv file loaded before reading PRECIS_* variables",
			Value:       ".env",
			Destination: &s.envFile,
		},
	}
}

func (s *settings) modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model id on the hub, or a local model directory",
			Value:       provider.DefaultModelID,
			Destination: &s.modelID,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory containing <org>/<name> model directories",
			Destination: &s.modelsDir,
		},
		&cli.StringFlag{
			Name:        "hub-cache",
			Usage:       "hub cache directory (default $HF_HUB_CACHE or ~/.cache/huggingface/hub)",
			Destination: &s.hubCache,
		},
		&cli.StringFlag{
			Name:        "revision",
			Usage:       "hub revision",
			Value:       "main",
			Destination: &s.revision,
		},
		&cli.BoolFlag{
			Name:        "offline",
			Usage:       "never download from the hub",
			Destination: &s.offline,
		},
	}
}

func (s *settings) generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "generation backend (remote, openai, lead)",
			Value:       generation.DefaultBackend,
			Destination: &s.backend,
		},
		&cli.StringFlag{
			Name:        "endpoint",
			Usage:       "base URL of the inference server or OpenAI-compatible API",
			Destination: &s.endpoint,
		},
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "bearer token for the generation endpoint",
			Destination: &s.apiKey,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "chat model name for the openai backend",
			Destination: &s.openAIModel,
		},
		&cli.DurationFlag{
			Name:        "request-timeout",
			Usage:       "timeout for one generation request",
			Value:       2 * time.Minute,
			Destination: &s.requestTimeout,
		},
		&cli.Int64Flag{
			Name:        "max-input-chars",
			Usage:       "reject texts longer than this many characters (0 disables)",
			Value:       16384,
			Destination: &s.maxInputChars,
		},
	}
}

func (s *settings) serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8501",
			Destination: &s.addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &s.readTimeout,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "summarize requests per second (0 disables)",
			Value:       2,
			Destination: &s.rateLimit,
		},
		&cli.Int64Flag{
			Name:        "rate-burst",
			Usage:       "summarize burst size",
			Value:       4,
			Destination: &s.rateBurst,
		},
		&cli.StringFlag{
			Name:        "cache",
			Usage:       "summary cache (memory, redis, none)",
			Value:       cache.KindMemory,
			Destination: &s.cacheKind,
		},
		&cli.Int64Flag{
			Name:        "cache-size",
			Usage:       "entries kept by the memory cache",
			Value:       cache.DefaultMemorySize,
			Destination: &s.cacheSize,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "redis:// URL for the redis cache",
			Value:       "redis://127.0.0.1:6379/0",
			Destination: &s.redisURL,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "expiry of cached summaries (0 keeps them)",
			Value:       24 * time.Hour,
			Destination: &s.cacheTTL,
		},
		&cli.BoolFlag{
			Name:        "lazy",
			Usage:       "start serving even if the model cannot be constructed",
			Destination: &s.lazy,
		},
	}
}

func (s *settings) loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &s.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &s.logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &s.debug,
		},
	}
}

// before folds the config file and environment into s and puts the logger
// on the context.
func (s *settings) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := loadDotEnv(s.envFile); err != nil {
		return ctx, fmt.Errorf("load %s: %w", s.envFile, err)
	}
	cfg, err := loadConfig(s.configPath)
	if err != nil {
		return ctx, err
	}
	s.apply(cmd, cfg)

	level := logger.ParseLevel(s.logLevel)
	if s.debug {
		level = slog.LevelDebug
	}
	log := logger.ForFormat(os.Stderr, s.logFormat, level)
	return logger.WithContext(ctx, log), nil
}
