package planner

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
)

// Greedy schedules a batch without the solver. Every chosen screen-hour is
// booked at the request's full frequency. For each eligible hour it picks the
// screen whose OTS is the smallest value above the mean still needed per
// remaining hour, else the largest available, and repeats passes over the
// hours until the target is met or a pass makes no progress.
//
// Requests are scheduled in batch order against a working copy of the
// ledger, so later requests see the slots taken by earlier ones. The result
// is never proven optimal: it reports PlanStatusFeasible on success.
func (p *Planner) Greedy(ctx context.Context, requests []models.AdvertisementRequest, forecast models.Forecast, ledger models.ReservationLedger) (*models.PlanResult, error) {
	start := time.Now()
	_, span := observability.Tracer("planner").Start(ctx, "Planner.Greedy")
	defer span.End()

	b, err := p.prepare(requests, forecast, ledger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid batch")
		return nil, err
	}
	result := p.newResult(StrategyGreedy, b)
	if !b.feasible {
		result.Status = models.PlanStatusAggregateInfeasible
		p.finish(result, start)
		return result, nil
	}

	working := cloneLedger(ledger)
	maxTier := p.opts.Tiers.Max()
	schedule := make(models.Schedule)
	var total float64
	met := true

	for i, req := range requests {
		// catalog again so capacity reflects earlier requests of the batch
		slots, err := BuildCatalog(i, req, forecast, working, p.opts)
		if err != nil {
			return nil, err
		}
		own, realized := greedyRequest(slots, req, maxTier)
		for screenID, hours := range own {
			for ts, e := range hours {
				schedule.Add(screenID, ts, e)
				working.Reserve(screenID, ts, e.Slots, maxTier)
			}
		}
		total += realized
		result.Requests[i].RealizedOTS = realized
		result.Requests[i].Schedule = own
		if realized < req.DesiredOTS {
			result.Requests[i].Feasible = false
			met = false
		}
	}

	if !met {
		result.Status = models.PlanStatusSolverInfeasible
		p.finish(result, start)
		p.Logger.Info("greedy scheduling ran out of slots", zap.String("plan_id", result.ID))
		return result, nil
	}
	result.Status = models.PlanStatusFeasible
	result.Schedule = schedule
	result.RealizedOTS = models.RoundOTS(total)
	p.Metrics.SetRealizedOTS(total)
	p.finish(result, start)
	span.SetAttributes(attribute.Int64("planner.realized_ots", result.RealizedOTS))
	return result, nil
}

// greedyRequest books one request. Only screen-hours with the full
// frequency still free are candidates.
func greedyRequest(slots []EligibleSlot, req models.AdvertisementRequest, maxTier int) (models.Schedule, float64) {
	byHour := make(map[int64][]EligibleSlot)
	var hours []int64
	for _, s := range slots {
		if s.Capacity < req.Frequency {
			continue
		}
		if _, ok := byHour[s.HourTS]; !ok {
			hours = append(hours, s.HourTS)
		}
		byHour[s.HourTS] = append(byHour[s.HourTS], s)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

	schedule := make(models.Schedule)
	if len(hours) == 0 {
		return schedule, 0
	}
	ots := func(s EligibleSlot) float64 {
		return s.Rate * float64(req.Frequency) / float64(maxTier)
	}
	type key struct{ screen, hour int64 }
	planned := make(map[key]bool)
	var total float64
	mean := req.DesiredOTS / float64(len(hours))

	for total < req.DesiredOTS {
		before := total
		for n, h := range hours {
			var pick *EligibleSlot
			var above bool
			for j := range byHour[h] {
				s := &byHour[h][j]
				if planned[key{s.ScreenID, h}] {
					continue
				}
				v := ots(*s)
				switch {
				case v > mean && (!above || v < ots(*pick)):
					pick, above = s, true
				case !above && (pick == nil || v > ots(*pick)):
					pick = s
				}
			}
			if pick == nil {
				continue
			}
			planned[key{pick.ScreenID, h}] = true
			e := models.ScheduleEntry{Slots: req.Frequency, OTS: ots(*pick)}
			schedule.Add(pick.ScreenID, h, e)
			total += e.OTS
			if total >= req.DesiredOTS {
				break
			}
			if left := len(hours) - n - 1; left > 0 {
				mean = (req.DesiredOTS - total) / float64(left)
			}
		}
		if total == before {
			break
		}
	}
	return schedule, total
}

func cloneLedger(l models.ReservationLedger) models.ReservationLedger {
	out := make(models.ReservationLedger, len(l))
	for screenID, hours := range l {
		sl := make(models.ScreenLedger, len(hours))
		for ts, n := range hours {
			sl[ts] = n
		}
		out[screenID] = sl
	}
	return out
}
