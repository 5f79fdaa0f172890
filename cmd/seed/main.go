// Seeds sample sales for local development: one active, one upcoming, one
// past with a handful of confirmed orders.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/tamtam29/flashsale-app/internal/config"
	"github.com/tamtam29/flashsale-app/internal/domain"
	"github.com/tamtam29/flashsale-app/internal/storage/postgres"
	"github.com/tamtam29/flashsale-app/migrations"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zlog.With().Str("service", "flashsale-seed").Logger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	// Wipe in dependency order.
	for _, table := range []string{"audit_events", "orders", "sales"} {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			logger.Fatal().Err(err).Str("table", table).Msg("clear table")
		}
	}

	saleRepo := postgres.NewSaleRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	now := time.Now().UTC()

	sales := []domain.Sale{
		{
			ID:         uuid.NewString(),
			Name:       "Limited Edition Product - Flash Sale",
			TotalStock: 100,
			StartsAt:   now.Add(-5 * time.Minute),
			EndsAt:     now.Add(time.Hour),
		},
		{
			ID:         uuid.NewString(),
			Name:       "Upcoming Flash Sale",
			TotalStock: 50,
			StartsAt:   now.Add(10 * time.Minute),
			EndsAt:     now.Add(2 * time.Hour),
		},
		{
			ID:         uuid.NewString(),
			Name:       "Past Flash Sale",
			TotalStock: 200,
			StartsAt:   now.Add(-3 * time.Hour),
			EndsAt:     now.Add(-time.Hour),
		},
	}

	for _, sale := range sales {
		if err := sale.Validate(); err != nil {
			logger.Fatal().Err(err).Str("name", sale.Name).Msg("invalid sale")
		}
		if err := saleRepo.Create(ctx, sale); err != nil {
			logger.Fatal().Err(err).Str("name", sale.Name).Msg("create sale")
		}
		logger.Info().Str("saleId", sale.ID).Str("name", sale.Name).Msg("created sale")
	}

	// A few confirmed orders against the past sale so reconciliation and the
	// status endpoints have something to show.
	pastSale := sales[2]
	for i := 1; i <= 10; i++ {
		order := domain.Order{
			ID:        uuid.NewString(),
			SaleID:    pastSale.ID,
			UserID:    fmt.Sprintf("test_user_%d", i),
			Status:    domain.OrderStatusConfirmed,
			CreatedAt: now,
		}
		if err := orderRepo.Create(ctx, order); err != nil {
			logger.Fatal().Err(err).Msg("create order")
		}
	}

	logger.Info().Str("activeSaleId", sales[0].ID).Msg("seeding complete")
}
