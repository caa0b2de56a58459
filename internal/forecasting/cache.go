package forecasting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
)

func cacheKey(screenID int64, from, to time.Time) string {
	return fmt.Sprintf("forecast:%d:%d:%d", screenID, from.Unix(), to.Unix())
}

// cachedBatch looks up the windows of every screen in one pipeline. Screens
// with a cache entry are present in the result; a nil forecast is the cached
// answer for an unknown screen.
func (s *Store) cachedBatch(ctx context.Context, screenIDs []int64, from, to time.Time) map[int64]models.ScreenForecast {
	hits := make(map[int64]models.ScreenForecast)
	if s.Redis == nil || len(screenIDs) == 0 {
		return hits
	}
	pipe := s.Redis.Pipeline()
	cmds := make(map[int64]*redis.StringCmd, len(screenIDs))
	for _, id := range screenIDs {
		cmds[id] = pipe.Get(ctx, cacheKey(id, from, to))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		s.Logger.Warn("forecast cache read failed", zap.Int("screens", len(screenIDs)), zap.Error(err))
		return hits
	}
	for id, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var sf models.ScreenForecast
		if err := json.Unmarshal(raw, &sf); err != nil {
			s.Logger.Warn("forecast cache entry corrupt", zap.Int64("screen_id", id), zap.Error(err))
			continue
		}
		hits[id] = sf
	}
	return hits
}

// storeBatch caches the windows of every screen in one pipeline. A nil
// forecast is cached as JSON null so unknown screens are not re-queried.
func (s *Store) storeBatch(ctx context.Context, from, to time.Time, forecasts map[int64]models.ScreenForecast) {
	if s.Redis == nil || s.CacheTTL <= 0 || len(forecasts) == 0 {
		return
	}
	pipe := s.Redis.Pipeline()
	for id, sf := range forecasts {
		raw, err := json.Marshal(sf)
		if err != nil {
			continue
		}
		pipe.Set(ctx, cacheKey(id, from, to), raw, s.CacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.Logger.Warn("forecast cache write failed", zap.Int("screens", len(forecasts)), zap.Error(err))
	}
}

func (s *Store) invalidate(ctx context.Context, screenID int64) {
	if s.Redis == nil {
		return
	}
	iter := s.Redis.Scan(ctx, 0, fmt.Sprintf("forecast:%d:*", screenID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.Logger.Warn("forecast cache scan failed", zap.Int64("screen_id", screenID), zap.Error(err))
		return
	}
	if len(keys) > 0 {
		s.Redis.Del(ctx, keys...)
	}
}
