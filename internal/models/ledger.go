package models

// ScreenLedger maps an hour-aligned unix timestamp to the number of display
// slots already committed to other campaigns in that hour.
type ScreenLedger map[int64]int

// ReservationLedger maps a screen ID to its committed slots per hour. An
// absent entry means nothing is committed and the whole hour is free.
type ReservationLedger map[int64]ScreenLedger

// Committed returns the slots already committed for the screen-hour.
func (l ReservationLedger) Committed(screenID, hourTS int64) int {
	if l == nil {
		return 0
	}
	return l[screenID][hourTS]
}

// Reserve adds slots to the screen-hour, clamping the total to maxSlots.
// It returns the resulting committed count.
func (l ReservationLedger) Reserve(screenID, hourTS int64, slots, maxSlots int) int {
	sl, ok := l[screenID]
	if !ok {
		sl = make(ScreenLedger)
		l[screenID] = sl
	}
	total := sl[hourTS] + slots
	if total > maxSlots {
		total = maxSlots
	}
	sl[hourTS] = total
	return total
}
