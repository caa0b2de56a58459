package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openslot/internal/models"
)

func TestGreedyMeetsTargetAtFullFrequency(t *testing.T) {
	loc := novosibirsk(t)
	forecast, ledger := fleetFixture(loc)
	requests := []models.AdvertisementRequest{
		fleetRequest(loc, []int64{1, 2, 3, 4}, 6000),
		fleetRequest(loc, []int64{2, 3}, 2000),
	}

	p := newTestPlanner(t, testOptions(t))
	res, err := p.Greedy(context.Background(), requests, forecast, ledger)
	require.NoError(t, err)
	require.Equal(t, models.PlanStatusFeasible, res.Status)
	assert.Equal(t, StrategyGreedy, res.Strategy)

	for i, req := range requests {
		assert.GreaterOrEqual(t, res.Requests[i].RealizedOTS, req.DesiredOTS)
		for _, hours := range res.Requests[i].Schedule {
			for _, e := range hours {
				assert.Equal(t, req.Frequency, e.Slots)
			}
		}
	}
	// the merged schedule never overbooks an hour
	for screenID, hours := range res.Schedule {
		for ts, e := range hours {
			assert.LessOrEqual(t, e.Slots+ledger.Committed(screenID, ts), 72)
		}
	}
}

func TestGreedyReportsShortfall(t *testing.T) {
	loc := novosibirsk(t)
	ts := at(loc, 6, 1).Unix()
	// 40 slots booked leaves 32 < frequency 36: the gate passes but no
	// hour can take the full frequency.
	ledger := models.ReservationLedger{257: {ts: 40}}
	req := singleSlotRequest(loc, 1000)
	req.Frequency = 36

	p := newTestPlanner(t, testOptions(t))
	res, err := p.Greedy(context.Background(), []models.AdvertisementRequest{req}, singleSlotFixture(loc), ledger)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusSolverInfeasible, res.Status)
	assert.Nil(t, res.Schedule)
	assert.False(t, res.Requests[0].Feasible)
}

func TestGreedyPrefersSmallestScreenAboveMean(t *testing.T) {
	loc := novosibirsk(t)
	hour := at(loc, 6, 1).Unix()
	forecast := models.Forecast{
		1: {hour: 7200},
		2: {hour: 3600},
		3: {hour: 1440},
	}
	req := singleSlotRequest(loc, 1000)
	req.ScreenIDs = []int64{1, 2, 3}
	req.Frequency = 36

	p := newTestPlanner(t, testOptions(t))
	res, err := p.Greedy(context.Background(), []models.AdvertisementRequest{req}, forecast, nil)
	require.NoError(t, err)
	require.Equal(t, models.PlanStatusFeasible, res.Status)
	// OTS at frequency 36: 3600, 1800, 720; mean needed is 1000
	_, ok := res.Schedule.Entry(2, hour)
	assert.True(t, ok)
	assert.Equal(t, 1, res.Schedule.Len())
	assert.Equal(t, int64(1800), res.RealizedOTS)
}
