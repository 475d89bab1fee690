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

	"github.com/gameplatform/games-service/internal/catalog"
	"github.com/gameplatform/games-service/internal/config"
	"github.com/gameplatform/games-service/internal/db"
	"github.com/gameplatform/games-service/internal/events"
	"github.com/gameplatform/games-service/internal/game"
	"github.com/gameplatform/games-service/internal/httpapi"
	"github.com/gameplatform/games-service/internal/ownership"
	"github.com/gameplatform/games-service/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- DB ---
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("db connect", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			logger.Error("db migrate", "error", err)
			os.Exit(1)
		}
	}

	gameRepo := game.NewPostgresRepository(pool)
	ownsRepo := ownership.NewPostgresRepository(pool)

	// --- Search index ---
	index, err := search.New(cfg.ElasticAddresses, cfg.ElasticAPIKey, cfg.GamesIndex)
	if err != nil {
		logger.Error("elasticsearch connect", "error", err)
		os.Exit(1)
	}

	// --- AMQP ---
	conn, err := events.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Error("rabbitmq connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := events.NewPublisher(conn, cfg.PurchaseRequestedQueue, logger)
	if err != nil {
		logger.Error("create publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	svc := catalog.NewService(gameRepo, ownsRepo, index, publisher, logger)

	processor := events.NewProcessor(conn, events.ProcessorOptions{
		Queue:         cfg.PaymentSucceededQueue,
		MaxConcurrent: cfg.ConsumerMaxConcurrent,
		Prefetch:      cfg.ConsumerPrefetch,
	}, svc.ConfirmPurchase, logger)

	if err := processor.Start(ctx); err != nil {
		logger.Error("start payment processor", "error", err)
		os.Exit(1)
	}

	// --- HTTP ---
	h := httpapi.NewHandler(svc)
	router := httpapi.NewRouter(h, []byte(cfg.JWTSecret))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal", "signal", sig.String())
	case err := <-errCh:
		logger.Error("fatal error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)

	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Warn("processor drain", "error", err)
	}
	cancel()

	logger.Info("shutdown complete")
}
