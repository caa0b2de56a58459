package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openslot/internal/config"
	"github.com/patrickwarner/openslot/internal/ingest"
	"github.com/patrickwarner/openslot/internal/models"
)

func TestImportForecastHandler(t *testing.T) {
	env := newTestEnv(true, config.Config{})
	rec := do(t, env, http.MethodPost, "/forecast", models.Forecast{
		1: {3600: 10.5, 7200: 11},
		2: {3600: 4},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ForecastImportResponse{Screens: 2, Hours: 3}, decode[ForecastImportResponse](t, rec))
	assert.Equal(t, 11.0, env.forecasts.written[1][7200])
	assert.Equal(t, 1, env.metrics.Requests["forecast_import POST 200"])
}

func TestImportForecastHandlerErrors(t *testing.T) {
	cases := []struct {
		name   string
		stores bool
		body   interface{}
		code   int
	}{
		{"no writer", false, models.Forecast{1: {0: 1}}, http.StatusServiceUnavailable},
		{"not a forecast", true, []int{1, 2}, http.StatusBadRequest},
		{"negative ots", true, models.Forecast{1: {0: -1}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(tc.stores, config.Config{})
			rec := do(t, env, http.MethodPost, "/forecast", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			if env.forecasts != nil {
				assert.Nil(t, env.forecasts.written)
			}
		})
	}
}

func TestExportForecastHandler(t *testing.T) {
	env := newTestEnv(true, config.Config{})
	forecast, ts := singleSlot()

	rec := do(t, env, http.MethodGet, "/forecast?screen=257&from=2021-09-05T00:00:00Z&to=2021-09-07T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := ingest.ReadForecast(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, forecast[257][ts], got[257][ts])
}

func TestExportForecastHandlerValidatesQuery(t *testing.T) {
	env := newTestEnv(true, config.Config{})
	for _, q := range []string{
		"",
		"screen=x&from=2021-09-06T00:00:00Z&to=2021-09-07T00:00:00Z",
		"screen=1&from=yesterday&to=2021-09-07T00:00:00Z",
		"screen=1&from=2021-09-07T00:00:00Z&to=2021-09-06T00:00:00Z",
	} {
		req := httptest.NewRequest(http.MethodGet, "/forecast?"+q, strings.NewReader(""))
		rec := httptest.NewRecorder()
		env.server.Routes().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}
