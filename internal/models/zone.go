package models

import (
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// ZoneKind classifies a geofence
type ZoneKind string

const (
	ZoneKindSafe       ZoneKind = "safe"
	ZoneKindRestricted ZoneKind = "restricted"
)

// Valid reports whether k is a known zone kind
func (k ZoneKind) Valid() bool {
	return k == ZoneKindSafe || k == ZoneKindRestricted
}

// Zone risk bounds
const (
	MinRiskLevel = 1
	MaxRiskLevel = 5
)

// Zone is a static named polygonal area with a risk classification
type Zone struct {
	ID           string          `json:"id" yaml:"id" db:"id"`
	Name         string          `json:"name" yaml:"name" db:"name"`
	Kind         ZoneKind        `json:"kind" yaml:"kind" db:"kind"`
	RiskLevel    int             `json:"risk_level" yaml:"risk_level" db:"risk_level"`
	BufferMeters float64         `json:"buffer_meters" yaml:"buffer_meters" db:"buffer_meters"`
	Polygon      []spatial.Point `json:"polygon" yaml:"polygon"`
	CreatedAt    time.Time       `json:"created_at,omitempty" yaml:"-" db:"created_at"`
}

// ZoneMatch is the Zone Evaluator result for one coordinate
type ZoneMatch struct {
	Zone     *Zone `json:"zone,omitempty"`
	InBuffer bool  `json:"in_buffer"` // matched only through the buffer ring
}

// Found reports whether any zone matched
func (m ZoneMatch) Found() bool {
	return m.Zone != nil
}

// Restricted reports whether the matched zone is restricted
func (m ZoneMatch) Restricted() bool {
	return m.Zone != nil && m.Zone.Kind == ZoneKindRestricted
}

// RiskLevel returns the matched zone's risk level, or 0 when no zone matched
func (m ZoneMatch) RiskLevel() int {
	if m.Zone == nil {
		return 0
	}
	return m.Zone.RiskLevel
}

// RejectedZone records a zone excluded at load time
type RejectedZone struct {
	ZoneID string `json:"zone_id"`
	Reason string `json:"reason"`
}
