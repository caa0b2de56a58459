package forecasting

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
)

func setupStore(t *testing.T) (*Store, sqlmock.Sqlmock, *miniredis.Miniredis, *observability.MockMetricsRegistry) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	metrics := observability.NewMockMetricsRegistry()
	return NewStore(db, rdb, time.Minute, nil, metrics), mock, mr, metrics
}

var (
	selectForecast = regexp.QuoteMeta("SELECT screen_id, hour, ots FROM ots_forecast FINAL")
	selectScreens  = regexp.QuoteMeta("SELECT DISTINCT screen_id FROM ots_forecast")
)

func TestLoadQueriesThenServesFromCache(t *testing.T) {
	store, mock, _, metrics := setupStore(t)
	from := time.Date(2021, 9, 6, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	mock.ExpectQuery(selectForecast).
		WithArgs(int64(257), int64(258), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"screen_id", "hour", "ots"}).
			AddRow(int64(257), from.Add(time.Hour), 4322.0).
			AddRow(int64(257), from.Add(2*time.Hour), 4100.5))
	mock.ExpectQuery(selectScreens).
		WithArgs(int64(258)).
		WillReturnRows(sqlmock.NewRows([]string{"screen_id"}))

	ctx := context.Background()
	forecast, err := store.Load(ctx, []int64{257, 258}, from, to)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.Forecast{257: {
		from.Add(time.Hour).Unix():     4322.0,
		from.Add(2 * time.Hour).Unix(): 4100.5,
	}}, forecast)
	assert.Equal(t, 2, metrics.ForecastCache["miss"])

	// second call hits the cache for both screens, including the empty one
	again, err := store.Load(ctx, []int64{257, 258}, from, to)
	require.NoError(t, err)
	assert.Equal(t, forecast, again)
	assert.Equal(t, 2, metrics.ForecastCache["hit"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadKeepsScreensWithRowsOutsideWindow(t *testing.T) {
	store, mock, _, metrics := setupStore(t)
	from := time.Date(2021, 9, 6, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(selectForecast).
		WithArgs(int64(257), int64(404), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"screen_id", "hour", "ots"}))
	mock.ExpectQuery(selectScreens).
		WithArgs(int64(257), int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"screen_id"}).AddRow(int64(257)))

	ctx := context.Background()
	forecast, err := store.Load(ctx, []int64{257, 404}, from, to)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	sf, ok := forecast[257]
	require.True(t, ok)
	assert.NotNil(t, sf)
	assert.Empty(t, sf)
	assert.NotContains(t, forecast, int64(404))

	// the cache keeps known-but-empty apart from unknown
	again, err := store.Load(ctx, []int64{257, 404}, from, to)
	require.NoError(t, err)
	assert.Equal(t, forecast, again)
	assert.NotNil(t, again[257])
	assert.Equal(t, 2, metrics.ForecastCache["hit"])
}

func TestLoadQueryErrorIsWrapped(t *testing.T) {
	store, mock, _, _ := setupStore(t)
	mock.ExpectQuery(selectForecast).WillReturnError(assert.AnError)

	_, err := store.Load(context.Background(), []int64{1}, time.Unix(0, 0), time.Unix(3600, 0))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWriteInvalidatesCachedWindows(t *testing.T) {
	store, mock, mr, _ := setupStore(t)
	ctx := context.Background()
	from := time.Unix(0, 0)
	to := time.Unix(7200, 0)

	store.storeBatch(ctx, from, to, map[int64]models.ScreenForecast{5: {0: 10}, 6: {0: 20}})
	require.True(t, mr.Exists(cacheKey(5, from, to)))

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO ots_forecast"))
	prep.ExpectExec().WithArgs(int64(5), sqlmock.AnyArg(), 12.5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Write(ctx, models.Forecast{5: {3600: 12.5}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, mr.Exists(cacheKey(5, from, to)))
	assert.True(t, mr.Exists(cacheKey(6, from, to)))
}

func TestLoadWithoutDatabase(t *testing.T) {
	var store *Store
	_, err := store.Load(context.Background(), []int64{1}, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}
