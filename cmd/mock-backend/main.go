// Command mock-backend serves an in-memory recognition service for local runs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/invoice-desk/internal/config"
	"github.com/kirillkom/invoice-desk/internal/mockbackend"
	"github.com/kirillkom/invoice-desk/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("mock-backend", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := mockbackend.New(mockbackend.Options{
		ReadyAfter: cfg.MockReadyAfterProbes,
		Logger:     logger,
	})
	server := &http.Server{
		Addr:              ":" + cfg.MockBackendPort,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("mock_backend_listening", "addr", server.Addr, "ready_after", cfg.MockReadyAfterProbes)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock_backend_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("mock_backend_shutdown_failed", "error", err)
	}
}
