package models

import "sort"

// ScreenForecast maps an hour-aligned unix timestamp (seconds) to the
// predicted OTS for that hour when the screen is fully occupied by one
// campaign, i.e. all max-tier slots are used.
type ScreenForecast map[int64]float64

// Forecast maps a screen ID to its hourly forecast. It is produced by the
// external forecasting service and treated as read-only.
type Forecast map[int64]ScreenForecast

// Screens returns the screen IDs present in the forecast in ascending order.
func (f Forecast) Screens() []int64 {
	ids := make([]int64, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Subset returns a forecast restricted to the given screens. Screens that
// are absent from f are absent from the result.
func (f Forecast) Subset(screenIDs []int64) Forecast {
	out := make(Forecast, len(screenIDs))
	for _, id := range screenIDs {
		if sf, ok := f[id]; ok {
			out[id] = sf
		}
	}
	return out
}
