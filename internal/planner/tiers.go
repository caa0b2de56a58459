package planner

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultTierValues are the standard per-hour frequencies a campaign may be
// sold at. The largest value is the number of slots in one hour.
var DefaultTierValues = []int{6, 9, 18, 24, 30, 36, 42, 48, 54, 60, 66, 72}

// Tiers is an ordered set of standard frequency values. Its largest value is
// the max tier: the slot count of a fully occupied hour.
type Tiers struct {
	values []int
}

// NewTiers builds a tier set from positive values. Order does not matter and
// duplicates are dropped.
func NewTiers(values []int) (Tiers, error) {
	if len(values) == 0 {
		return Tiers{}, errors.New("tier set is empty")
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	uniq := sorted[:0]
	for i, v := range sorted {
		if v <= 0 {
			return Tiers{}, fmt.Errorf("tier %d must be positive", v)
		}
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	return Tiers{values: uniq}, nil
}

// DefaultTiers returns the standard tier set.
func DefaultTiers() Tiers {
	t, _ := NewTiers(DefaultTierValues)
	return t
}

// Max returns the largest tier, or 0 for an empty set.
func (t Tiers) Max() int {
	if len(t.values) == 0 {
		return 0
	}
	return t.values[len(t.values)-1]
}

// Contains reports whether v is a standard tier.
func (t Tiers) Contains(v int) bool {
	i := sort.SearchInts(t.values, v)
	return i < len(t.values) && t.values[i] == v
}

// Values returns the tiers in ascending order.
func (t Tiers) Values() []int {
	out := make([]int, len(t.values))
	copy(out, t.values)
	return out
}

// IsZero reports whether the set has no tiers.
func (t Tiers) IsZero() bool { return len(t.values) == 0 }

// Domain returns the legal values for a chunk whose remaining capacity is
// capacity: every tier strictly below capacity plus capacity itself. With
// allowIdle the chunk may also be left unused (0).
func (t Tiers) Domain(capacity int, allowIdle bool) []int64 {
	domain := make([]int64, 0, len(t.values)+2)
	if allowIdle && capacity > 0 {
		domain = append(domain, 0)
	}
	for _, v := range t.values {
		if v >= capacity {
			break
		}
		domain = append(domain, int64(v))
	}
	return append(domain, int64(capacity))
}

// String renders the tier list for logs.
func (t Tiers) String() string {
	return fmt.Sprint(t.values)
}
