package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/solver"
)

func novosibirsk(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Novosibirsk")
	require.NoError(t, err)
	return loc
}

func at(loc *time.Location, day, hour int) time.Time {
	return time.Date(2021, time.September, day, hour, 0, 0, 0, loc)
}

func testOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.Location = novosibirsk(t)
	// generous budget so every test model is solved to optimality
	opts.Budget = solver.Params{TimeLimit: 30 * time.Second}
	return opts
}

func newTestPlanner(t *testing.T, opts Options) *Planner {
	t.Helper()
	p, err := New(opts, nil, nil, nil)
	require.NoError(t, err)
	return p
}

// singleSlotFixture is screen 257 with a 4322 OTS hour on Monday 2021-09-06
// 01:00 and neighbouring hours that the request window excludes.
func singleSlotFixture(loc *time.Location) models.Forecast {
	return models.Forecast{
		257: {
			at(loc, 6, 0).Unix(): 3900,
			at(loc, 6, 1).Unix(): 4322,
			at(loc, 6, 2).Unix(): 4100,
			at(loc, 7, 1).Unix(): 4000,
		},
	}
}

func singleSlotRequest(loc *time.Location, desired float64) models.AdvertisementRequest {
	return models.AdvertisementRequest{
		ScreenIDs:  []int64{257},
		DesiredOTS: desired,
		StartDate:  at(loc, 6, 0),
		EndDate:    at(loc, 7, 0),
		WeekDays:   []int{0},
		Hours:      []int{1},
		Frequency:  72,
	}
}

// fleetFixture builds a week of forecast for screens 1..4 with rates that
// have at most two decimals, plus a ledger with partial bookings.
func fleetFixture(loc *time.Location) (models.Forecast, models.ReservationLedger) {
	forecast := make(models.Forecast)
	ledger := make(models.ReservationLedger)
	for screen := int64(1); screen <= 4; screen++ {
		sf := make(models.ScreenForecast)
		sl := make(models.ScreenLedger)
		for day := 6; day <= 12; day++ {
			for hour := 0; hour < 24; hour++ {
				ts := at(loc, day, hour).Unix()
				sf[ts] = float64(500+(int(screen)*37+hour*13+day*7)%900) + 0.25
				if c := (int(screen) + hour + day) % 5 * 12; c > 0 {
					sl[ts] = c
				}
			}
		}
		forecast[screen] = sf
		ledger[screen] = sl
	}
	return forecast, ledger
}

func fleetRequest(loc *time.Location, screens []int64, desired float64) models.AdvertisementRequest {
	return models.AdvertisementRequest{
		ScreenIDs:  screens,
		DesiredOTS: desired,
		StartDate:  at(loc, 6, 0),
		EndDate:    at(loc, 13, 0),
		WeekDays:   []int{0, 1, 2, 3, 4, 5, 6},
		Hours:      []int{9, 12, 18, 20},
		Frequency:  36,
	}
}
