package planner

import (
	"math"
	"sort"
)

// Chunk is a run of slots of one request sharing the same remaining
// capacity. All members get the same solved frequency.
type Chunk struct {
	Request  int
	Capacity int
	Slots    []EligibleSlot
}

// TotalRate sums the forecast rates of the chunk's slots.
func (c Chunk) TotalRate() float64 {
	var total float64
	for _, s := range c.Slots {
		total += s.Rate
	}
	return total
}

// scaledRate is the integer model coefficient of the chunk: per-slot rates
// multiplied by scale and rounded down, then summed. Rounding down keeps a
// satisfied target constraint from overstating the real exposure.
func (c Chunk) scaledRate(scale int) int64 {
	var total int64
	for _, s := range c.Slots {
		// tolerate float noise such as 12.34*100 = 1233.9999999999998
		total += int64(math.Floor(s.Rate*float64(scale) + 1e-7))
	}
	return total
}

// GroupChunks sorts slots by (request, capacity, hour, screen), groups equal
// (request, capacity) runs and splits each run into chunks of at most
// chunkSize slots. The result does not depend on the order of slots.
func GroupChunks(slots []EligibleSlot, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	sorted := make([]EligibleSlot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.Request != b.Request:
			return a.Request < b.Request
		case a.Capacity != b.Capacity:
			return a.Capacity < b.Capacity
		case a.HourTS != b.HourTS:
			return a.HourTS < b.HourTS
		default:
			return a.ScreenID < b.ScreenID
		}
	})

	var chunks []Chunk
	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].Request == sorted[start].Request && sorted[end].Capacity == sorted[start].Capacity {
			end++
		}
		for lo := start; lo < end; lo += chunkSize {
			hi := min(lo+chunkSize, end)
			chunks = append(chunks, Chunk{
				Request:  sorted[lo].Request,
				Capacity: sorted[lo].Capacity,
				Slots:    sorted[lo:hi:hi],
			})
		}
		start = end
	}
	return chunks
}
