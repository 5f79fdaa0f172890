package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/tamtam29/flashsale-app/internal/app"
	"github.com/tamtam29/flashsale-app/internal/clock"
	"github.com/tamtam29/flashsale-app/internal/config"
	"github.com/tamtam29/flashsale-app/internal/queue"
	"github.com/tamtam29/flashsale-app/internal/storage/postgres"
	"github.com/tamtam29/flashsale-app/migrations"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zlog.With().Str("service", "flashsale-worker").Logger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	orderRepo := postgres.NewOrderRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	batcher := app.NewAuditBatcher(auditRepo, clock.NewSystem(), logger,
		app.WithAuditBatchSize(cfg.AuditBatchSize),
		app.WithAuditFlushInterval(cfg.AuditFlushEvery),
	)
	batcher.Start()
	defer batcher.Close()

	confirmSvc := app.NewConfirmService(orderRepo, batcher, clock.NewSystem(), logger,
		app.WithMaxRetries(cfg.WorkerMaxRetry),
	)

	topology := queue.Topology{Queue: cfg.PurchaseQueue, DLQ: cfg.PurchaseDLQ}
	consumer, err := queue.NewConsumer(cfg.RabbitMQURL, topology, cfg.ConsumerTag, cfg.PrefetchCount, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to rabbitmq")
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("queue", cfg.PurchaseQueue).Msg("worker consuming")

	if err := consumer.Start(ctx, confirmSvc); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped with error")
	}
	logger.Info().Msg("worker stopped")
}
