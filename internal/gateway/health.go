// Package gateway exposes the HTTP health endpoint of a running gateway.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
)

// HealthServer serves GET /health and GET /ready.
type HealthServer struct {
	version string
	server  *http.Server
}

// NewHealthServer creates a health server bound to host:port.
func NewHealthServer(host string, port int, version string) *HealthServer {
	h := &HealthServer{version: version}

	e := echo.New()
	e.GET("/health", h.health)
	e.GET("/ready", h.ready)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return h
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (h *HealthServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("health endpoint listening", "addr", h.server.Addr)
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = h.server.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

func (h *HealthServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *HealthServer) ready(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
