// Package health serves the liveness endpoint and Prometheus metrics.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is used when PORT is unset or not a valid port number.
const DefaultPort = 3000

// ResolvePort parses raw as a TCP port, falling back to DefaultPort.
func ResolvePort(raw string) int {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return DefaultPort
	}
	return port
}

// Server exposes GET /health and GET /metrics.
type Server struct {
	srv *http.Server
}

// NewServer builds the server for port.
func NewServer(port int) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Router returns the gin engine with the health and metrics routes.
func Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Health server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("health server shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}
