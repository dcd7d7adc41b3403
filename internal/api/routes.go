package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/pvebackup/internal/api/handlers"
	"github.com/yourusername/pvebackup/internal/api/middleware"
	"github.com/yourusername/pvebackup/internal/config"
	"github.com/yourusername/pvebackup/internal/metrics"
)

// SetupRouter configures and returns the HTTP router
func SetupRouter(
	cfg *config.Config,
	status handlers.StatusProvider,
	collector *metrics.Collector,
	logger *slog.Logger,
	version string,
) *gin.Engine {
	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.ReadOnly())
	router.Use(middleware.SecurityHeaders())

	statusHandler := handlers.NewStatusHandler(status, version)

	router.GET("/healthz", statusHandler.Health)
	router.GET("/status", statusHandler.Status)
	if collector != nil {
		router.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	return router
}

// Serve runs an HTTP server for handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting status server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("status server stopped")
	return nil
}
