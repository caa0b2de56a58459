// Package app wires configuration, stores and the planner into the
// services shared by the binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/config"
	"github.com/patrickwarner/openslot/internal/db"
	"github.com/patrickwarner/openslot/internal/forecasting"
	"github.com/patrickwarner/openslot/internal/observability"
	"github.com/patrickwarner/openslot/internal/planner"
)

// Services holds the connected stores and the planner.
type Services struct {
	Planner   *planner.Planner
	PG        *db.Postgres
	Redis     *db.RedisStore
	Forecasts *forecasting.Store
	Ledger    *db.Ledger
	Metrics   observability.MetricsRegistry
}

// Open connects to Postgres, Redis and ClickHouse and builds the planner.
// On error every connection opened so far is closed.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) (*Services, error) {
	opts, err := cfg.PlannerOptions()
	if err != nil {
		return nil, fmt.Errorf("planner options: %w", err)
	}
	p, err := planner.New(opts, nil, logger.Named("planner"), metrics)
	if err != nil {
		return nil, err
	}
	s := &Services{Planner: p, Metrics: metrics}

	s.PG, err = db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	s.Redis, err = db.InitRedis(ctx, cfg.RedisAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	ch, err := forecasting.OpenClickHouse(ctx, cfg.ClickHouseDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	s.Forecasts = forecasting.NewStore(ch, s.Redis.Client, cfg.ForecastCacheTTL, logger.Named("forecasting"), metrics)
	s.Ledger = &db.Ledger{
		PG:       s.PG,
		Redis:    s.Redis,
		LockTTL:  cfg.LedgerLockTTL,
		MaxSlots: opts.Tiers.Max(),
		Logger:   logger.Named("ledger"),
		Metrics:  metrics,
	}
	return s, nil
}

// Close releases every open connection.
func (s *Services) Close() {
	s.Forecasts.Close()
	if s.Redis != nil {
		s.Redis.Close()
	}
	s.PG.Close()
}
