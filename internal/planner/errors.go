package planner

import (
	"errors"
	"fmt"
)

// ErrEmptyBatch is returned when a planning call carries no requests.
var ErrEmptyBatch = errors.New("planner: empty request batch")

// ConfigurationError reports a malformed request. It is raised before any
// model is built.
type ConfigurationError struct {
	// Request is the index of the offending request within its batch.
	Request int
	Field   string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("request %d: invalid %s: %s", e.Request, e.Field, e.Reason)
}

// MissingDataError reports a requested screen without any forecast entries.
// It is fatal to the whole batch.
type MissingDataError struct {
	Request  int
	ScreenID int64
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("request %d: no forecast for screen %d", e.Request, e.ScreenID)
}
