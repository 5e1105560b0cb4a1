package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PRECIS_"

// Config is the precis configuration file (~/.config/precis/config.yaml),
// overlaid with PRECIS_* environment variables. Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	ModelID   string `yaml:"model_id" env:"MODEL_ID"`
	ModelsDir string `yaml:"models_dir" env:"MODELS_DIR"`
	HubCache  string `yaml:"hub_cache" env:"HUB_CACHE"`
	Revision  string `yaml:"revision" env:"REVISION"`
	Offline   *bool  `yaml:"offline" env:"OFFLINE"`

	// Generation
	Backend        string         `yaml:"backend" env:"BACKEND"`
	Endpoint       string         `yaml:"endpoint" env:"ENDPOINT"`
	APIKey         string         `yaml:"api_key" env:"API_KEY"`
	OpenAIModel    string         `yaml:"openai_model" env:"OPENAI_MODEL"`
	RequestTimeout *time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	MaxInputChars  *int64         `yaml:"max_input_chars" env:"MAX_INPUT_CHARS"`

	// Server
	ServerAddress string         `yaml:"server_address" env:"SERVER_ADDRESS"`
	RateLimit     *float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst     *int64         `yaml:"rate_burst" env:"RATE_BURST"`
	Cache         string         `yaml:"cache" env:"CACHE"`
	CacheSize     *int64         `yaml:"cache_size" env:"CACHE_SIZE"`
	RedisURL      string         `yaml:"redis_url" env:"REDIS_URL"`
	CacheTTL      *time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`

	// Output
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "precis", "config.yaml")
}

// loadConfig reads the config file at path, or the default location when
// path is empty, then overlays the environment. A missing default file is
// not an error; a missing explicit one is.
func loadConfig(path string) (Config, error) {
	var cfg Config
	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from path. Missing files are
// ignored and existing variables win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// apply copies cfg into s for every flag the user did not set on the
// command line.
func (s *settings) apply(c *cli.Command, cfg Config) {
	str := func(flag string, dst *string, v string) {
		if v != "" && !c.IsSet(flag) {
			*dst = v
		}
	}
	str("model", &s.modelID, cfg.ModelID)
	str("models-path", &s.modelsDir, cfg.ModelsDir)
	str("hub-cache", &s.hubCache, cfg.HubCache)
	str("revision", &s.revision, cfg.Revision)
	str("backend", &s.backend, cfg.Backend)
	str("endpoint", &s.endpoint, cfg.Endpoint)
	str("api-key", &s.apiKey, cfg.APIKey)
	str("openai-model", &s.openAIModel, cfg.OpenAIModel)
	str("addr", &s.addr, cfg.ServerAddress)
	str("cache", &s.cacheKind, cfg.Cache)
	str("redis-url", &s.redisURL, cfg.RedisURL)
	str("log-level", &s.logLevel, cfg.LogLevel)
	str("log-format", &s.logFormat, cfg.LogFormat)

	if cfg.Offline != nil && !c.IsSet("offline") {
		s.offline = *cfg.Offline
	}
	if cfg.RequestTimeout != nil && !c.IsSet("request-timeout") {
		s.requestTimeout = *cfg.RequestTimeout
	}
	if cfg.MaxInputChars != nil && !c.IsSet("max-input-chars") {
		s.maxInputChars = *cfg.MaxInputChars
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		s.rateLimit = *cfg.RateLimit
	}
	if cfg.RateBurst != nil && !c.IsSet("rate-burst") {
		s.rateBurst = *cfg.RateBurst
	}
	if cfg.CacheSize != nil && !c.IsSet("cache-size") {
		s.cacheSize = *cfg.CacheSize
	}
	if cfg.CacheTTL != nil && !c.IsSet("cache-ttl") {
		s.cacheTTL = *cfg.CacheTTL
	}
}
