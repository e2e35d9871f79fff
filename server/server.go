// Package server owns the HTTP server lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/agentpad/agentpad/server/profile"
	v1 "github.com/agentpad/agentpad/server/router/api/v1"
)

// Server wraps echo with graceful start/shutdown.
type Server struct {
	echo    *echo.Echo
	profile *profile.Profile
}

// New assembles the HTTP server around the v1 API service.
func New(prof *profile.Profile, api *v1.APIV1Service) *Server {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)
			slog.Info("request",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return err
		}
	})

	api.RegisterRoutes(e)
	return &Server{echo: e, profile: prof}
}

// Run serves until ctx is canceled, then shuts down gracefully. Streaming
// responses get a grace period to emit their terminal event.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "addr", addr, "mode", s.profile.Mode, "version", s.profile.Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
