package models

import (
	"sort"
	"time"
)

// AdvertisementRequest describes one campaign that needs display frequency.
// Within a batch a request is identified by its position.
type AdvertisementRequest struct {
	// ID is an optional caller-supplied label carried through to results.
	ID string `json:"id,omitempty"`
	// ScreenIDs lists the screens the campaign may run on.
	ScreenIDs []int64 `json:"screen_ids"`
	// DesiredOTS is the exposure target that must be reached.
	DesiredOTS float64 `json:"desired_ots"`
	// StartDate and EndDate bound the campaign as a half-open window
	// [StartDate, EndDate).
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	// WeekDays are eligible days with Monday = 0 ... Sunday = 6.
	WeekDays []int `json:"week_days"`
	// Hours are eligible hours of day, 0-23, in the planning timezone.
	Hours []int `json:"hours"`
	// Frequency is the campaign's per-hour slot cap. It must be one of the
	// standard tiers.
	Frequency int `json:"frequency"`
}

// Window returns the screens referenced by a batch in ascending order and
// the smallest [from, to) window covering every request.
func Window(requests []AdvertisementRequest) ([]int64, time.Time, time.Time) {
	seen := make(map[int64]bool)
	var ids []int64
	var from, to time.Time
	for i, req := range requests {
		for _, id := range req.ScreenIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if i == 0 || req.StartDate.Before(from) {
			from = req.StartDate
		}
		if i == 0 || req.EndDate.After(to) {
			to = req.EndDate
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, from, to
}
