package planner

import (
	"errors"
	"fmt"
	"math"
	"time"
	_ "time/tzdata" // planning timezone must resolve in minimal containers

	"github.com/patrickwarner/openslot/internal/solver"
)

const (
	// DefaultTimezone is the zone calendar eligibility is evaluated in.
	DefaultTimezone = "Asia/Novosibirsk"
	// DefaultChunkSize is the number of slots sharing one decision variable.
	DefaultChunkSize = 7
	// DefaultPenaltyRate weights the capacity penalty against the exposure term.
	DefaultPenaltyRate = 1e-5
	// DefaultRateScale turns fractional forecast rates into integers.
	DefaultRateScale = 100
)

// Options configures a Planner.
type Options struct {
	Tiers Tiers
	// ChunkSize bounds how many slots are grouped into one decision variable.
	ChunkSize int
	// PenaltyRate sets the objective weighting: the exposure term is
	// multiplied by 1/PenaltyRate, the capacity penalty by 1.
	PenaltyRate float64
	// RateScale is the factor forecast rates are multiplied by before
	// rounding to integers for the model.
	RateScale int
	// Location is the timezone for weekday/hour eligibility.
	Location *time.Location
	// AllowIdleChunks adds 0 to every chunk domain so the solver may skip
	// chunks entirely.
	AllowIdleChunks bool
	// Budget bounds each solver call.
	Budget solver.Params
}

// DefaultOptions returns the standard planning configuration.
func DefaultOptions() Options {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.FixedZone("+07", 7*60*60)
	}
	return Options{
		Tiers:       DefaultTiers(),
		ChunkSize:   DefaultChunkSize,
		PenaltyRate: DefaultPenaltyRate,
		RateScale:   DefaultRateScale,
		Location:    loc,
		Budget: solver.Params{
			TimeLimit: 10 * time.Second,
		},
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Tiers.IsZero() {
		return errors.New("planner: no frequency tiers configured")
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("planner: chunk size must be positive, got %d", o.ChunkSize)
	}
	if !(o.PenaltyRate > 0 && o.PenaltyRate <= 1) {
		return fmt.Errorf("planner: penalty rate must be in (0, 1], got %g", o.PenaltyRate)
	}
	if o.RateScale <= 0 {
		return fmt.Errorf("planner: rate scale must be positive, got %d", o.RateScale)
	}
	if o.Budget.TimeLimit < 0 || o.Budget.SolutionLimit < 0 {
		return errors.New("planner: solver budget must not be negative")
	}
	return nil
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// exposureWeight is the integer objective weight of the exposure term.
func (o Options) exposureWeight() int64 {
	return max(1, int64(math.Round(1/o.PenaltyRate)))
}
