package db

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return &RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}, mr
}

func TestLockScreens(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()

	release, err := rs.LockScreens(ctx, []int64{3, 1, 3}, "plan-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey(1)))
	assert.True(t, mr.Exists(lockKey(3)))

	_, err = rs.LockScreens(ctx, []int64{2, 3}, "plan-b", time.Minute)
	assert.ErrorIs(t, err, ErrScreensLocked)
	assert.False(t, mr.Exists(lockKey(2)), "partial locks are released")

	release()
	assert.False(t, mr.Exists(lockKey(1)))

	second, err := rs.LockScreens(ctx, []int64{2, 3}, "plan-b", time.Minute)
	require.NoError(t, err)
	second()
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	rs, mr := newTestRedis(t)
	release, err := rs.LockScreens(context.Background(), []int64{9}, "plan-a", time.Minute)
	require.NoError(t, err)

	// lock expired and was taken by someone else
	require.NoError(t, mr.Set(lockKey(9), "plan-b"))
	release()
	got, err := mr.Get(lockKey(9))
	require.NoError(t, err)
	assert.Equal(t, "plan-b", got)
}

func TestLedgerCommitLocksCommitsAndPublishes(t *testing.T) {
	rs, _ := newTestRedis(t)
	pg, mock := newMockPostgres(t)
	metrics := observability.NewMockMetricsRegistry()
	ledger := &Ledger{PG: pg, Redis: rs, LockTTL: time.Minute, MaxSlots: 72, Logger: zap.NewNop(), Metrics: metrics}

	ctx := context.Background()
	sub := rs.Client.Subscribe(ctx, LedgerUpdatesChannel)
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	plan := samplePlan()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT committed FROM plans")).
		WithArgs(plan.ID).
		WillReturnRows(sqlmock.NewRows([]string{"committed"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WithArgs(plan.ID, 72).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE plans SET committed = TRUE")).
		WithArgs(plan.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := ledger.Commit(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, metrics.LedgerCommits)
	require.NoError(t, mock.ExpectationsWereMet())

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var u LedgerUpdate
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &u))
	assert.Equal(t, plan.ID, u.PlanID)
	assert.Equal(t, []int64{257}, u.ScreenIDs)
	assert.Equal(t, int64(60), u.Slots)
}

func TestLedgerCommitRejectsPlanWithoutSchedule(t *testing.T) {
	pg, _ := newMockPostgres(t)
	ledger := &Ledger{PG: pg, MaxSlots: 72, Logger: zap.NewNop(), Metrics: observability.NewNoOpRegistry()}
	plan := &models.PlanResult{ID: "x", Status: models.PlanStatusAggregateInfeasible}
	_, err := ledger.Commit(context.Background(), plan)
	assert.ErrorIs(t, err, ErrPlanNotSchedulable)
}
