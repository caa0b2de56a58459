package planner

import (
	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/solver"
)

// Assembly is the schedule expanded from a solved formulation.
type Assembly struct {
	// Schedule merges every request; requests sharing a screen-hour have
	// their entries summed.
	Schedule models.Schedule
	// PerRequest holds each request's own entries.
	PerRequest []models.Schedule
	// Realized is each request's realized OTS.
	Realized []float64
	Total    float64
}

// AssembleSchedule applies each chunk's solved value to all of its slots.
// Chunks solved to 0 produce no entries.
func AssembleSchedule(f *Formulation, sol *solver.Solution, requests, maxTier int) Assembly {
	a := Assembly{
		Schedule:   make(models.Schedule),
		PerRequest: make([]models.Schedule, requests),
		Realized:   make([]float64, requests),
	}
	for r := range a.PerRequest {
		a.PerRequest[r] = make(models.Schedule)
	}

	for i, c := range f.Chunks {
		value := int(sol.Value(f.Vars[i]))
		if value == 0 {
			continue
		}
		for _, s := range c.Slots {
			e := models.ScheduleEntry{Slots: value, OTS: s.Rate * float64(value) / float64(maxTier)}
			a.Schedule.Add(s.ScreenID, s.HourTS, e)
			a.PerRequest[c.Request].Add(s.ScreenID, s.HourTS, e)
			a.Realized[c.Request] += e.OTS
		}
	}
	a.Total = a.Schedule.TotalOTS()
	return a
}
