package ephys

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned when a query or selection yields nothing to aggregate.
	ErrNoData = errors.New("ephys: no data")
	// ErrMixedHemisphere is returned when a unit group spans both hemispheres.
	ErrMixedHemisphere = errors.New("ephys: units span more than one hemisphere")
	// ErrShapeMismatch is returned when paired arrays or matrices differ in shape.
	ErrShapeMismatch = errors.New("ephys: shape mismatch")
	// ErrInvalid flags a malformed record or argument.
	ErrInvalid = errors.New("ephys: invalid input")
)

// NoDataError names the selection that came back empty.
type NoDataError struct {
	What string
}

func (e NoDataError) Error() string {
	return fmt.Sprintf("no data: %s", e.What)
}

// Is lets errors.Is match NoDataError against ErrNoData.
func (e NoDataError) Is(target error) bool {
	return target == ErrNoData
}

// NoData builds a NoDataError with a formatted description.
func NoData(format string, args ...any) error {
	return NoDataError{What: fmt.Sprintf(format, args...)}
}
