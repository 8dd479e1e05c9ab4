package metronome

import (
	"errors"
	"fmt"
)

// ErrClockUnavailable is returned by the engine's Start when it has no
// usable clock source. The engine stays idle; the caller owns any retry.
var ErrClockUnavailable = errors.New("clock source unavailable")

// ParameterError reports a rejected settings mutation. The previous value
// of the field is always left in place.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid %v: %v", e.Field, e.Reason)
}

// MeasureError reports a jump to a nonexistent measure.
type MeasureError struct {
	Measure int
}

func (e *MeasureError) Error() string {
	return fmt.Sprintf("invalid measure %v: measures are numbered from 1", e.Measure)
}
