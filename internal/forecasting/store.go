// Package forecasting serves the per screen-hour OTS forecast produced by
// the external forecasting service. Forecasts live in ClickHouse and are
// cached per screen and window in Redis.
package forecasting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
)

// ErrUnavailable is returned when no forecast database is configured.
var ErrUnavailable = errors.New("forecast store unavailable")

const createTableSQL = `CREATE TABLE IF NOT EXISTS ots_forecast (
    screen_id  Int64,
    hour       DateTime,
    ots        Float64,
    created_at DateTime DEFAULT now()
) ENGINE=ReplacingMergeTree(created_at) ORDER BY (screen_id, hour)`

// Store reads and writes forecasts.
type Store struct {
	ClickHouse *sql.DB
	// Redis may be nil, which disables caching.
	Redis    *redis.Client
	CacheTTL time.Duration
	Logger   *zap.Logger
	Metrics  observability.MetricsRegistry
}

// NewStore wires a Store from existing connections.
func NewStore(clickhouse *sql.DB, rdb *redis.Client, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Store{ClickHouse: clickhouse, Redis: rdb, CacheTTL: cacheTTL, Logger: logger, Metrics: metrics}
}

// OpenClickHouse connects to ClickHouse and ensures the forecast table exists.
func OpenClickHouse(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	zap.L().Info("Connected to ClickHouse")
	return db, nil
}

// Load returns the forecast of the given screens for hours in [from, to).
// A screen with forecast rows only outside the window maps to an empty
// ScreenForecast; screens without any forecast row are absent.
func (s *Store) Load(ctx context.Context, screenIDs []int64, from, to time.Time) (models.Forecast, error) {
	if s == nil || s.ClickHouse == nil {
		return nil, ErrUnavailable
	}
	ctx, span := observability.Tracer("forecasting").Start(ctx, "Forecast.Load")
	defer span.End()
	span.SetAttributes(attribute.Int("forecast.screens", len(screenIDs)))

	var unique []int64
	seen := make(map[int64]bool, len(screenIDs))
	for _, id := range screenIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	forecast := make(models.Forecast, len(unique))
	hits := s.cachedBatch(ctx, unique, from, to)
	var missing []int64
	for _, id := range unique {
		sf, ok := hits[id]
		if !ok {
			s.Metrics.IncrementForecastCache("miss")
			missing = append(missing, id)
			continue
		}
		s.Metrics.IncrementForecastCache("hit")
		if sf != nil {
			forecast[id] = sf
		}
	}
	if len(missing) == 0 {
		return forecast, nil
	}

	loaded, err := s.query(ctx, missing, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var outside []int64
	for _, id := range missing {
		if len(loaded[id]) == 0 {
			outside = append(outside, id)
		}
	}
	known, err := s.known(ctx, outside)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	fresh := make(map[int64]models.ScreenForecast, len(missing))
	for _, id := range missing {
		sf := loaded[id]
		if len(sf) == 0 && known[id] {
			sf = models.ScreenForecast{}
		}
		fresh[id] = sf
		if sf != nil {
			forecast[id] = sf
		}
	}
	s.storeBatch(ctx, from, to, fresh)
	s.Logger.Debug("forecast loaded",
		zap.Int("screens", len(screenIDs)),
		zap.Int("queried", len(missing)),
	)
	return forecast, nil
}

func inClause(screenIDs []int64, extra int) (string, []interface{}) {
	placeholders := make([]string, len(screenIDs))
	args := make([]interface{}, 0, len(screenIDs)+extra)
	for i, id := range screenIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	return strings.Join(placeholders, ","), args
}

// known reports which of the screens have forecast rows at any hour.
func (s *Store) known(ctx context.Context, screenIDs []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(screenIDs))
	if len(screenIDs) == 0 {
		return found, nil
	}
	in, args := inClause(screenIDs, 0)
	rows, err := s.ClickHouse.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT screen_id FROM ots_forecast WHERE screen_id IN (%s)`, in), args...)
	if err != nil {
		return nil, fmt.Errorf("query forecast screens: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan forecast screen: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast screens: %w", err)
	}
	return found, nil
}

func (s *Store) query(ctx context.Context, screenIDs []int64, from, to time.Time) (models.Forecast, error) {
	in, args := inClause(screenIDs, 2)
	args = append(args, from.UTC(), to.UTC())
	query := fmt.Sprintf(`SELECT screen_id, hour, ots FROM ots_forecast FINAL
	WHERE screen_id IN (%s) AND hour >= ? AND hour < ?
	ORDER BY screen_id, hour`, in)

	rows, err := s.ClickHouse.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ots_forecast: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.Logger.Warn("failed to close rows", zap.Error(closeErr))
		}
	}()

	out := make(models.Forecast)
	for rows.Next() {
		var (
			screenID int64
			hour     time.Time
			ots      float64
		)
		if err := rows.Scan(&screenID, &hour, &ots); err != nil {
			return nil, fmt.Errorf("scan forecast row: %w", err)
		}
		sf, ok := out[screenID]
		if !ok {
			sf = make(models.ScreenForecast)
			out[screenID] = sf
		}
		sf[hour.Unix()] = ots
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecast rows: %w", err)
	}
	return out, nil
}

// Write stores forecast rows and drops cached windows of the affected
// screens.
func (s *Store) Write(ctx context.Context, forecast models.Forecast) error {
	if s == nil || s.ClickHouse == nil {
		return ErrUnavailable
	}
	tx, err := s.ClickHouse.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin forecast batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ots_forecast (screen_id, hour, ots) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare forecast insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	rows := 0
	for _, screenID := range forecast.Screens() {
		for ts, ots := range forecast[screenID] {
			if _, err := stmt.ExecContext(ctx, screenID, time.Unix(ts, 0).UTC(), ots); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert forecast for screen %d: %w", screenID, err)
			}
			rows++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit forecast batch: %w", err)
	}

	for _, screenID := range forecast.Screens() {
		s.invalidate(ctx, screenID)
	}
	s.Logger.Info("forecast written", zap.Int("screens", len(forecast)), zap.Int("rows", rows))
	return nil
}

// Ping checks the ClickHouse connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.ClickHouse == nil {
		return ErrUnavailable
	}
	return s.ClickHouse.PingContext(ctx)
}

// Close terminates the ClickHouse connection.
func (s *Store) Close() {
	if s != nil && s.ClickHouse != nil {
		if err := s.ClickHouse.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
