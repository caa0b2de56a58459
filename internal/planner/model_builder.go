package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/patrickwarner/openslot/internal/solver"
)

// Formulation is a built model together with the mapping back from
// variables to chunks.
type Formulation struct {
	Model  *solver.Model
	Chunks []Chunk
	// Vars[i] is the decision variable of Chunks[i].
	Vars []*solver.IntVar
	// Coefs[i] is the scaled rate sum of Chunks[i].
	Coefs []int64
	// Targets holds the scaled right-hand side of each request's constraint,
	// indexed by request. Requests without chunks have no constraint.
	Targets []int64
}

// scaledTarget converts an OTS target into model units: target * max tier *
// rate scale, rounded up so a satisfied constraint never falls short.
func scaledTarget(desired float64, maxTier, scale int) int64 {
	v := desired * float64(maxTier) * float64(scale)
	// absorb float noise such as 3600*72*100 = 25920000.000000004
	return int64(math.Ceil(v - 1e-6))
}

// BuildModel creates one variable per chunk with domain {tiers < capacity} ∪
// {capacity}, one covering constraint per request, one capacity constraint
// per screen-hour that several requests compete for, and the weighted
// objective
//
//	minimize W * sum(coef_i * v_i) + S * sum(capacity_i - v_i)
//
// with W = 1/penaltyRate and S the rate scale. coef_i*v_i is the chunk's
// contribution (rate × slots) times S, so the objective is exactly S times
// contribution/penaltyRate + penalties.
func BuildModel(chunks []Chunk, desired []float64, opts Options) (*Formulation, error) {
	maxTier := opts.Tiers.Max()
	w := opts.exposureWeight()
	scale := int64(opts.RateScale)

	f := &Formulation{
		Model:   solver.NewModel(),
		Chunks:  chunks,
		Vars:    make([]*solver.IntVar, len(chunks)),
		Coefs:   make([]int64, len(chunks)),
		Targets: make([]int64, len(desired)),
	}

	contrib := make([]solver.LinearExpr, len(desired))
	var objective solver.LinearExpr
	for i, c := range chunks {
		if c.Request < 0 || c.Request >= len(desired) {
			return nil, fmt.Errorf("chunk %d references request %d outside a batch of %d", i, c.Request, len(desired))
		}
		v := f.Model.NewIntVarFromDomain(opts.Tiers.Domain(c.Capacity, opts.AllowIdleChunks), fmt.Sprintf("r%d_c%d_chunk%d", c.Request, c.Capacity, i))
		coef := c.scaledRate(opts.RateScale)
		f.Vars[i] = v
		f.Coefs[i] = coef

		contrib[c.Request].Add(v, coef)
		// W*coef*v + S*(capacity - v)
		objective.Add(v, coef*w-scale)
		objective.AddConstant(scale * int64(c.Capacity))
	}

	for r := range desired {
		if len(contrib[r].Terms) == 0 {
			continue
		}
		f.Targets[r] = scaledTarget(desired[r], maxTier, opts.RateScale)
		f.Model.AddGreaterOrEqual(contrib[r], f.Targets[r], fmt.Sprintf("request_%d_target", r))
	}
	f.addSharedHourLimits()
	f.Model.Minimize(objective)

	if err := f.Model.Validate(); err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	return f, nil
}

type screenHour struct {
	screenID int64
	hourTS   int64
}

// addSharedHourLimits keeps the slots booked by different requests in one
// screen-hour within the slots still free there.
func (f *Formulation) addSharedHourLimits() {
	covering := make(map[screenHour][]int)
	free := make(map[screenHour]int)
	var keys []screenHour
	for i, c := range f.Chunks {
		for _, s := range c.Slots {
			k := screenHour{s.ScreenID, s.HourTS}
			if _, ok := covering[k]; !ok {
				keys = append(keys, k)
			}
			covering[k] = append(covering[k], i)
			free[k] = s.Free
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hourTS != keys[j].hourTS {
			return keys[i].hourTS < keys[j].hourTS
		}
		return keys[i].screenID < keys[j].screenID
	})

	for _, k := range keys {
		idx := covering[k]
		if len(idx) < 2 {
			continue
		}
		var expr solver.LinearExpr
		most := 0
		for _, i := range idx {
			expr.Add(f.Vars[i], 1)
			most += f.Chunks[i].Capacity
		}
		if most <= free[k] {
			continue
		}
		f.Model.AddLessOrEqual(expr, int64(free[k]), fmt.Sprintf("screen_%d_hour_%d_free", k.screenID, k.hourTS))
	}
}
