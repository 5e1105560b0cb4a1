package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/samcharles93/precis/internal/cache"
	"github.com/samcharles93/precis/internal/generation"
	"github.com/samcharles93/precis/internal/hub"
	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/provider"
	"github.com/samcharles93/precis/internal/summarize"
)

func (s *settings) hubClient() *hub.Client {
	c := hub.NewClient()
	if strings.TrimSpace(s.hubCache) != "" {
		c.CacheDir = s.hubCache
	}
	return c
}

func (s *settings) providerConfig() provider.Config {
	return provider.Config{
		ModelID:   s.modelID,
		Revision:  s.revision,
		ModelsDir: s.modelsDir,
		Offline:   s.offline,
		Hub:       s.hubClient(),
		Generation: generation.Config{
			Backend:   s.backend,
			ModelID:   s.modelID,
			Endpoint:  s.endpoint,
			APIKey:    s.apiKey,
			ChatModel: s.openAIModel,
			Timeout:   s.requestTimeout,
		},
	}
}

func (s *settings) limits() summarize.Limits {
	l := summarize.DefaultLimits()
	l.MaxInputChars = int(s.maxInputChars)
	return l
}

// openCache builds the configured summary cache. The returned func
// releases it.
func (s *settings) openCache(ctx context.Context, log logger.Logger) (cache.Cache, func(), error) {
	switch strings.ToLower(strings.TrimSpace(s.cacheKind)) {
	case "", cache.KindNone:
		return cache.Nop{}, func() {}, nil
	case cache.KindMemory:
		return cache.NewMemory(int(s.cacheSize), s.cacheTTL), func() {}, nil
	case cache.KindRedis:
		rdb, err := cache.Connect(ctx, s.redisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("summary cache connected", "kind", cache.KindRedis, "ttl", s.cacheTTL)
		return cache.NewRedis(rdb, "", s.cacheTTL), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache %q (want memory, redis or none)", s.cacheKind)
	}
}
