package planner

import (
	"math"
	"sort"
	"time"

	"github.com/patrickwarner/openslot/internal/models"
)

// EligibleSlot is one screen-hour a request may run in.
type EligibleSlot struct {
	// Request is the index of the owning request within its batch.
	Request  int
	ScreenID int64
	HourTS   int64
	// Rate is the forecast OTS of the hour at full occupancy.
	Rate float64
	// Capacity is the number of slots the request may still take:
	// min(max tier - committed, frequency cap).
	Capacity int
	// Free is max tier - committed, shared by every request of the batch.
	Free int

	Time    time.Time // HourTS in the planning timezone
	Hour    int
	Weekday int // Monday = 0
	Date    time.Time
}

// weekday converts Go's Sunday-first numbering to Monday = 0 ... Sunday = 6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// validateRequest checks a request against the tier set before any slot is
// considered.
func validateRequest(index int, req models.AdvertisementRequest, tiers Tiers) error {
	bad := func(field, reason string) error {
		return &ConfigurationError{Request: index, Field: field, Reason: reason}
	}
	if !tiers.Contains(req.Frequency) {
		return bad("frequency", "must be one of the standard tiers "+tiers.String())
	}
	if len(req.ScreenIDs) == 0 {
		return bad("screen_ids", "at least one screen is required")
	}
	if !(req.DesiredOTS > 0) || math.IsInf(req.DesiredOTS, 0) {
		return bad("desired_ots", "must be a positive number")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return bad("window", "start_date and end_date are required")
	}
	if !req.EndDate.After(req.StartDate) {
		return bad("window", "end_date must be after start_date")
	}
	if len(req.WeekDays) == 0 {
		return bad("week_days", "at least one weekday is required")
	}
	for _, d := range req.WeekDays {
		if d < 0 || d > 6 {
			return bad("week_days", "weekdays range from 0 (Monday) to 6 (Sunday)")
		}
	}
	if len(req.Hours) == 0 {
		return bad("hours", "at least one hour is required")
	}
	for _, h := range req.Hours {
		if h < 0 || h > 23 {
			return bad("hours", "hours range from 0 to 23")
		}
	}
	return nil
}

// BuildCatalog lists the eligible slots of one request, ordered by hour then
// screen. Slots with no remaining capacity are left out. The inputs are not
// modified.
func BuildCatalog(index int, req models.AdvertisementRequest, forecast models.Forecast, ledger models.ReservationLedger, opts Options) ([]EligibleSlot, error) {
	if err := validateRequest(index, req, opts.Tiers); err != nil {
		return nil, err
	}

	var days, hours [24]bool
	for _, d := range req.WeekDays {
		days[d] = true
	}
	for _, h := range req.Hours {
		hours[h] = true
	}

	loc := opts.location()
	maxTier := opts.Tiers.Max()
	seen := make(map[int64]bool, len(req.ScreenIDs))
	var slots []EligibleSlot

	for _, screenID := range req.ScreenIDs {
		if seen[screenID] {
			continue
		}
		seen[screenID] = true

		// An empty, non-nil forecast is a known screen with no hours
		// in the loaded window.
		sf := forecast[screenID]
		if sf == nil {
			return nil, &MissingDataError{Request: index, ScreenID: screenID}
		}
		for ts, rate := range sf {
			t := time.Unix(ts, 0).In(loc)
			if t.Before(req.StartDate) || !t.Before(req.EndDate) {
				continue
			}
			if !hours[t.Hour()] || !days[weekday(t)] {
				continue
			}
			free := maxTier - ledger.Committed(screenID, ts)
			capacity := min(free, req.Frequency)
			if capacity <= 0 {
				continue
			}
			slots = append(slots, EligibleSlot{
				Request:  index,
				ScreenID: screenID,
				HourTS:   ts,
				Rate:     rate,
				Capacity: capacity,
				Free:     free,
				Time:     t,
				Hour:     t.Hour(),
				Weekday:  weekday(t),
				Date:     time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].HourTS != slots[j].HourTS {
			return slots[i].HourTS < slots[j].HourTS
		}
		return slots[i].ScreenID < slots[j].ScreenID
	})
	return slots, nil
}
