package models

import (
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// LocationSample is one GPS fix reported by a tourist's device
type LocationSample struct {
	ID         int64     `json:"id,omitempty" db:"id"`
	TouristID  string    `json:"tourist_id" db:"tourist_id"`
	Latitude   float64   `json:"latitude" db:"latitude"`
	Longitude  float64   `json:"longitude" db:"longitude"`
	Altitude   *float64  `json:"altitude,omitempty" db:"altitude"`
	Speed      *float64  `json:"speed,omitempty" db:"speed"`     // km/h as reported by the device
	Heading    *float64  `json:"heading,omitempty" db:"heading"` // degrees, 0 = north
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}

// Point returns the sample position
func (s LocationSample) Point() spatial.Point {
	return spatial.Point{Lat: s.Latitude, Lon: s.Longitude}
}

// Validate rejects structurally invalid coordinates
func (s LocationSample) Validate() error {
	if !s.Point().Valid() {
		return ErrInvalidCoordinates
	}
	return nil
}

// Window bounds the recent samples read for one tourist.
// Whichever of MaxSamples and MaxAge is smaller wins.
type Window struct {
	MaxSamples int           `json:"max_samples"`
	MaxAge     time.Duration `json:"max_age"`
	Until      time.Time     `json:"until"` // upper bound (inclusive); zero means now
}

// Since returns the lower time bound of the window
func (w Window) Since() time.Time {
	until := w.Until
	if until.IsZero() {
		until = time.Now()
	}
	return until.Add(-w.MaxAge)
}

// PlannedRoute is the expected itinerary of a tourist
type PlannedRoute struct {
	TouristID string          `json:"tourist_id" db:"tourist_id"`
	Name      string          `json:"name" db:"name"`
	Waypoints []spatial.Point `json:"waypoints"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// LocationInput is the request body for location ingestion and ad hoc assessment
type LocationInput struct {
	TouristID  string    `json:"tourist_id" binding:"required"`
	Latitude   *float64  `json:"latitude" binding:"required"`
	Longitude  *float64  `json:"longitude" binding:"required"`
	Altitude   *float64  `json:"altitude"`
	Speed      *float64  `json:"speed"`
	Heading    *float64  `json:"heading"`
	CapturedAt time.Time `json:"captured_at"`
}

// Sample converts the input to a LocationSample; a zero timestamp becomes now
func (in LocationInput) Sample(now time.Time) LocationSample {
	s := LocationSample{
		TouristID:  in.TouristID,
		Altitude:   in.Altitude,
		Speed:      in.Speed,
		Heading:    in.Heading,
		CapturedAt: in.CapturedAt,
	}
	if in.Latitude != nil {
		s.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		s.Longitude = *in.Longitude
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = now
	}
	s.CapturedAt = s.CapturedAt.UTC()
	return s
}
