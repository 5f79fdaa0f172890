package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/tamtam29/flashsale-app/internal/app"
	"github.com/tamtam29/flashsale-app/internal/clock"
	"github.com/tamtam29/flashsale-app/internal/config"
	"github.com/tamtam29/flashsale-app/internal/queue"
	"github.com/tamtam29/flashsale-app/internal/reservation"
	"github.com/tamtam29/flashsale-app/internal/storage/postgres"
	transporthttp "github.com/tamtam29/flashsale-app/internal/transport/http"
	"github.com/tamtam29/flashsale-app/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zlog.With().Str("service", "flashsale-api").Logger()

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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis ping")
	}

	saleRepo := postgres.NewSaleRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	resStore := reservation.NewStore(redisClient)

	// Reconcile before accepting any traffic; a store we could not rebuild
	// must not serve admissions.
	reconciler := app.NewReconciler(saleRepo, orderRepo, resStore, logger)
	if err := reconciler.Run(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("reconcile reservation state")
	}

	topology := queue.Topology{Queue: cfg.PurchaseQueue, DLQ: cfg.PurchaseDLQ}
	publisher, err := queue.NewPublisher(cfg.RabbitMQURL, topology, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to rabbitmq")
	}
	defer publisher.Close()

	asyncPub := app.NewAsyncPublisher(publisher, logger)
	asyncPub.Start()
	defer asyncPub.Close()

	batcher := app.NewAuditBatcher(auditRepo, clock.NewSystem(), logger,
		app.WithAuditBatchSize(cfg.AuditBatchSize),
		app.WithAuditFlushInterval(cfg.AuditFlushEvery),
	)
	batcher.Start()
	defer batcher.Close()

	saleSvc := app.NewSaleService(
		saleRepo, orderRepo, auditRepo, resStore, asyncPub, batcher,
		clock.NewSystem(), logger,
		app.WithSaleCacheTTL(cfg.SaleCacheTTL),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler(map[string]transporthttp.HealthProbe{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return resStore.Ping(ctx) },
		"rabbitmq": func(ctx context.Context) error {
			if !publisher.Healthy() {
				return errors.New("connection closed")
			}
			return nil
		},
	}))
	mux.Handle("/sales", transporthttp.HandleListSales(saleSvc))
	mux.Handle("/sales/", transporthttp.HandleSales(saleSvc))
	mux.Handle("/admin/sales/", transporthttp.HandleAdminReset(saleSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOriginList(), mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Info().Str("port", cfg.Port).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}
