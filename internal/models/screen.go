package models

// Screen describes a digital display in the fleet. Number is the
// human-facing identifier used by inventory spreadsheets; ID is the player
// identifier used by forecasts and the reservation ledger.
type Screen struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}
