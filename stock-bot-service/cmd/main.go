package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pkglog "github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
	"github.com/Lucca-Muniz/Chat/stock-bot-service/internal/config"
	"github.com/Lucca-Muniz/Chat/stock-bot-service/internal/quote"
	"github.com/Lucca-Muniz/Chat/stock-bot-service/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "stock-bot-service",
	})
	logger := pkglog.L()

	// One broker connection for the consumer and the response publisher
	broker, err := queue.NewBroker(cfg.Queue)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to message broker")
	}
	defer broker.Close()
	logger.Info().Str("driver", cfg.Queue.Driver).Str("queue", cfg.Queue.CommandQueue).Msg("message broker connected")

	fetcher := quote.NewStooqClient(cfg.Quote.BaseURL, cfg.Quote.Timeout)
	w := worker.NewCommandWorker(broker, cfg.Queue.CommandQueue, cfg.Queue.ResponseQueue, cfg.Queue.RetryPolicy(), fetcher)

	// Start health HTTP server
	mux := http.NewServeMux()
	health := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
	mux.HandleFunc("/health", health)
	mux.HandleFunc("/healthz", health)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      pkglog.HTTPMiddleware(logger, "/health", "/healthz")(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("health server error")
		}
	}()

	// Start worker in background
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = pkglog.WithLogger(ctx, logger)

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- w.Run(ctx)
	}()

	if !waitWorker(ctx, cancel, consumerDone, cfg.Server.ShutdownTimeout) {
		logger.Warn().Msg("command worker shutdown timed out")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server forced to shutdown")
	}

	logger.Info().Msg("stock-bot-service stopped")
}

// waitWorker blocks until a shutdown signal or the worker exiting on its own,
// then stops the worker and waits up to timeout for it to return. It reports
// whether the worker has stopped.
func waitWorker(ctx context.Context, cancel context.CancelFunc, consumerDone <-chan error, timeout time.Duration) bool {
	logger := pkglog.Ctx(ctx)

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-consumerDone:
		if err != nil {
			logger.Error().Err(err).Msg("command worker exited with error")
		}
		logger.Info().Msg("shutting down stock-bot-service")
		cancel()
		return true
	}

	logger.Info().Msg("shutting down stock-bot-service")
	cancel()

	select {
	case <-consumerDone:
		return true
	case <-time.After(timeout):
		return false
	}
}
