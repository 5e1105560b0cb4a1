package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/precis/internal/api"
	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/provider"
	"github.com/samcharles93/precis/internal/summarize"
	"github.com/samcharles93/precis/internal/webui"
)

func serveCmd() *cli.Command {
	s := &settings{}
	var flags []cli.Flag
	flags = append(flags, s.configFlags()...)
	flags = append(flags, s.modelFlags()...)
	flags = append(flags, s.generationFlags()...)
	flags = append(flags, s.serverFlags()...)
	flags = append(flags, s.loggingFlags()...)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the summarization web UI and JSON API",
		Flags:  flags,
		Before: s.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			p := provider.New(s.providerConfig(), log)
			defer p.Close()

			if s.lazy {
				go func() {
					if err := p.Warm(ctx); err != nil {
						log.Warn("serving without a model", "error", err)
					}
				}()
			} else if err := p.Warm(ctx); err != nil {
				return fmt.Errorf("startup: %w (use --lazy to serve anyway)", err)
			}

			store, closeCache, err := s.openCache(ctx, log)
			if err != nil {
				return err
			}
			defer closeCache()

			service := summarize.NewService(p, summarize.Config{
				Limits: s.limits(),
				Cache:  store,
				Logger: log,
			})
			server := api.NewServer(p, service, api.Config{
				RateLimit: s.rateLimit,
				RateBurst: int(s.rateBurst),
				Static:    webui.StaticFS(),
				Logger:    log,
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", s.addr, "model", s.modelID, "backend", s.backend)
			sc := echo.StartConfig{
				Address: s.addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = s.readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
