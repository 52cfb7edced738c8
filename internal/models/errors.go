package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCoordinates is returned for latitude/longitude outside WGS84 ranges
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnknownModelKind is returned for a model kind that is not trained here
	ErrUnknownModelKind = errors.New("unknown model kind")
	// ErrNotFound is returned by stores when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrMissingTouristID is returned when a location carries no tourist id
	ErrMissingTouristID = errors.New("tourist id is required")
)

// InsufficientDataError means a training corpus was below the configured minimum
type InsufficientDataError struct {
	Kind ModelKind
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s model: have %d samples, need %d", e.Kind, e.Have, e.Need)
}

// DataSourceTimeoutError means an external read did not succeed within its retry budget
type DataSourceTimeoutError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *DataSourceTimeoutError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *DataSourceTimeoutError) Unwrap() error {
	return e.Err
}

// InvalidZoneGeometryError means a zone was rejected at load time
type InvalidZoneGeometryError struct {
	ZoneID string
	Reason string
}

func (e *InvalidZoneGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry for zone %s: %s", e.ZoneID, e.Reason)
}

// IsInsufficientData reports whether err wraps an InsufficientDataError
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}
