package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LedgerUpdatesChannel is the pub/sub channel announcing committed plans.
const LedgerUpdatesChannel = "ledger-updates"

// ErrScreensLocked is returned when another commit holds one of the screens.
var ErrScreensLocked = errors.New("screens locked by another commit")

// RedisStore wraps a redis client.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := &RedisStore{Client: redis.NewClient(&redis.Options{Addr: addr})}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func lockKey(screenID int64) string {
	return fmt.Sprintf("lock:screen:%d", screenID)
}

// releaseScript deletes each key only while it still holds the owner token.
var releaseScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
  if redis.call("GET", key) == ARGV[1] then
    redis.call("DEL", key)
  end
end
return 1`)

// LockScreens takes a commit lock on every screen for ttl. Locks are taken
// in ascending screen order; if any is held elsewhere the ones already
// taken are released and ErrScreensLocked is returned.
func (r *RedisStore) LockScreens(ctx context.Context, screenIDs []int64, owner string, ttl time.Duration) (func(), error) {
	ids := append([]int64(nil), screenIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var keys []string
	release := func() {
		if len(keys) == 0 {
			return
		}
		// the caller's context may already be done
		if err := releaseScript.Run(context.Background(), r.Client, keys, owner).Err(); err != nil {
			zap.L().Warn("release screen locks", zap.Error(err))
		}
	}
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		ok, err := r.Client.SetNX(ctx, lockKey(id), owner, ttl).Result()
		if err != nil {
			release()
			return nil, fmt.Errorf("lock screen %d: %w", id, err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("%w: screen %d", ErrScreensLocked, id)
		}
		keys = append(keys, lockKey(id))
	}
	return release, nil
}

// LedgerUpdate is the message published after a plan is committed.
type LedgerUpdate struct {
	PlanID    string    `json:"plan_id"`
	ScreenIDs []int64   `json:"screen_ids"`
	Slots     int64     `json:"slots"`
	At        time.Time `json:"at"`
}

// PublishLedgerUpdate announces a committed plan on LedgerUpdatesChannel.
func (r *RedisStore) PublishLedgerUpdate(ctx context.Context, u LedgerUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return r.Client.Publish(ctx, LedgerUpdatesChannel, payload).Err()
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
