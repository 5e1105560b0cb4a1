// Package api serves the summarization UI and its JSON endpoints.
package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/provider"
	"github.com/samcharles93/precis/internal/summarize"
	"github.com/samcharles93/precis/internal/tokenizer"
)

// Provider is the part of provider.Provider the HTTP layer needs.
type Provider interface {
	ModelID() string
	Status() provider.Status
	Tokenizer() (tokenizer.Tokenizer, error)
}

type Config struct {
	Defaults summarize.Defaults
	// RateLimit is summarize requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// Static serves the web UI; nil disables it.
	Static http.FileSystem
	Logger logger.Logger
}

type Server struct {
	provider Provider
	service  *summarize.Service
	defaults summarize.Defaults
	limiter  *rate.Limiter
	static   http.Handler
	log      logger.Logger
}

func NewServer(p Provider, service *summarize.Service, cfg Config) *Server {
	if cfg.Defaults == (summarize.Defaults{}) {
		cfg.Defaults = summarize.DefaultDefaults()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	s := &Server{
		provider: p,
		service:  service,
		defaults: cfg.Defaults,
		limiter:  newLimiter(cfg.RateLimit, cfg.RateBurst),
		log:      cfg.Logger,
	}
	if cfg.Static != nil {
		s.static = http.FileServer(cfg.Static)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/api/v1/health", s.handleHealth)
	e.GET("/api/v1/options", s.handleOptions)
	e.POST("/api/v1/summarize", s.handleSummarize, rateLimit(s.limiter))
	e.POST("/api/v1/tokens", s.handleTokens)
	e.POST("/api/v1/download", s.handleDownload)

	if s.static != nil {
		e.GET("/*", s.handleStatic)
	}
}

func (s *Server) handleStatic(c *echo.Context) error {
	s.static.ServeHTTP(c.Response(), c.Request())
	return nil
}
