package planner

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupChunksSplitsByRequestAndCapacity(t *testing.T) {
	var slots []EligibleSlot
	for i := 0; i < 10; i++ {
		slots = append(slots, EligibleSlot{Request: 0, ScreenID: 1, HourTS: int64(i * 3600), Capacity: 36, Rate: 1})
	}
	for i := 0; i < 3; i++ {
		slots = append(slots, EligibleSlot{Request: 0, ScreenID: 2, HourTS: int64(i * 3600), Capacity: 24, Rate: 1})
		slots = append(slots, EligibleSlot{Request: 1, ScreenID: 3, HourTS: int64(i * 3600), Capacity: 36, Rate: 1})
	}

	chunks := GroupChunks(slots, 4)
	require.Len(t, chunks, 5)

	type shape struct{ request, capacity, size int }
	var got []shape
	for _, c := range chunks {
		got = append(got, shape{c.Request, c.Capacity, len(c.Slots)})
		for _, s := range c.Slots {
			assert.Equal(t, c.Request, s.Request)
			assert.Equal(t, c.Capacity, s.Capacity)
		}
	}
	assert.Equal(t, []shape{
		{0, 24, 3},
		{0, 36, 4},
		{0, 36, 4},
		{0, 36, 2},
		{1, 36, 3},
	}, got)
}

func TestGroupChunksIndependentOfInputOrder(t *testing.T) {
	var slots []EligibleSlot
	for screen := int64(1); screen <= 5; screen++ {
		for h := int64(0); h < 12; h++ {
			slots = append(slots, EligibleSlot{
				Request:  int(screen % 2),
				ScreenID: screen,
				HourTS:   h * 3600,
				Capacity: []int{24, 36, 72}[(screen+h)%3],
				Rate:     float64(screen*100 + h),
			})
		}
	}
	want := GroupChunks(slots, 7)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]EligibleSlot(nil), slots...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, GroupChunks(shuffled, 7))
	}
}

func TestChunkTotalRate(t *testing.T) {
	c := Chunk{Slots: []EligibleSlot{{Rate: 1.25}, {Rate: 2.5}}}
	assert.InDelta(t, 3.75, c.TotalRate(), 1e-12)
	assert.Equal(t, int64(375), c.scaledRate(100))
}

func TestChunkScaledRateRoundsDown(t *testing.T) {
	c := Chunk{Slots: []EligibleSlot{{Rate: 10.006}, {Rate: 10.006}, {Rate: 12.34}}}
	assert.Equal(t, int64(1000+1000+1234), c.scaledRate(100))
}
