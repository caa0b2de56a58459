package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		want  string
	}{
		{name: "production default", want: "info"},
		{name: "development default", env: "development", want: "debug"},
		{name: "explicit level wins", env: "development", level: "warn", want: "warn"},
		{name: "error", level: "ERROR", want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("LOG_LEVEL", tt.level)
			assert.Equal(t, tt.want, getLogLevel().String())
		})
	}
}

func TestShouldSampleBounds(t *testing.T) {
	assert.True(t, ShouldSample(1.0))
	assert.False(t, ShouldSample(0))
}

func TestInitLoggerWithLevelNamesLogger(t *testing.T) {
	logger, err := InitLoggerWithLevel(zap.WarnLevel, "openslot-test")
	assert.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}

func TestMockMetricsRegistryRecordsPlans(t *testing.T) {
	m := NewMockMetricsRegistry()
	var r MetricsRegistry = m
	r.IncrementPlans("optimal", "feasible")
	r.IncrementPlans("optimal", "feasible")
	r.IncrementForecastCache("hit")
	assert.Equal(t, 2, m.PlanCount("optimal", "feasible"))
	assert.Equal(t, 1, m.ForecastCache["hit"])
}
