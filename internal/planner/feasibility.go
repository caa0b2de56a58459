package planner

// AvailableOTS is the exposure a request could reach if every eligible slot
// were used up to its remaining capacity. Tier snapping may make the true
// maximum lower.
func AvailableOTS(slots []EligibleSlot, maxTier int) float64 {
	var total float64
	for _, s := range slots {
		total += s.Rate * float64(s.Capacity) / float64(maxTier)
	}
	return total
}

// GateResult is the feasibility verdict for one request.
type GateResult struct {
	Request   int
	Desired   float64
	Available float64
	Feasible  bool
}

// CheckFeasibility compares a request's target with its available OTS.
// Requests that fail must not reach the solver.
func CheckFeasibility(index int, desired float64, slots []EligibleSlot, maxTier int) GateResult {
	available := AvailableOTS(slots, maxTier)
	return GateResult{
		Request:   index,
		Desired:   desired,
		Available: available,
		Feasible:  available >= desired,
	}
}
