// Package container defines shared waste-container points and their overflow
// lifecycle.
package container

import (
	"fmt"
	"math"
	"time"
)

// Status of a container point on the public map.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusOverflow Status = "overflow"
)

// Point is a fixed container location. Polygon holds a small WKT square
// around the coordinate so the frontend can draw the spot.
type Point struct {
	ID              string     `db:"id" json:"id"`
	Latitude        float64    `db:"latitude" json:"latitude"`
	Longitude       float64    `db:"longitude" json:"longitude"`
	Polygon         string     `db:"polygon" json:"polygon"`
	Status          Status     `db:"status" json:"status"`
	Address         string     `db:"address" json:"address,omitempty"`
	Notes           string     `db:"notes" json:"notes,omitempty"`
	SectionID       *string    `db:"section_id" json:"section_id,omitempty"`
	CreatedBy       *string    `db:"created_by" json:"created_by,omitempty"`
	OverflowReports int        `db:"overflow_reports" json:"overflow_reports"`
	LastOverflowAt  *time.Time `db:"last_overflow_at" json:"last_overflow_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Suggestion is a resident's proposal for a new container point.
type Suggestion struct {
	ID          string    `db:"id" json:"id"`
	Latitude    float64   `db:"latitude" json:"latitude"`
	Longitude   float64   `db:"longitude" json:"longitude"`
	Address     string    `db:"address" json:"address,omitempty"`
	Notes       string    `db:"notes" json:"notes,omitempty"`
	SectionID   *string   `db:"section_id" json:"section_id,omitempty"`
	SuggestedBy string    `db:"suggested_by" json:"suggested_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SquareWKT builds the polygon drawn around a point: a square extending
// radius meters from the coordinate in each direction.
func SquareWKT(lat, lng, radiusMeters float64) string {
	dLat := radiusMeters / 111320.0
	dLng := radiusMeters / (111320.0 * math.Cos(lat*math.Pi/180))
	return fmt.Sprintf("POLYGON((%f %f, %f %f, %f %f, %f %f, %f %f))",
		lng-dLng, lat-dLat,
		lng+dLng, lat-dLat,
		lng+dLng, lat+dLat,
		lng-dLng, lat+dLat,
		lng-dLng, lat-dLat)
}
