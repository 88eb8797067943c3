// README: Shared identifiers, coordinates and validation errors.
package types

import (
	"fmt"
	"math"
)

type ID string

// Point is a WGS84 coordinate in signed decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects NaN and out-of-range coordinates.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return &ValidationError{Field: "lat", Reason: fmt.Sprintf("%v is outside [-90, 90]", p.Lat)}
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return &ValidationError{Field: "lng", Reason: fmt.Sprintf("%v is outside [-180, 180]", p.Lng)}
	}
	return nil
}

// ValidationError reports malformed input. It is always raised before any
// state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
