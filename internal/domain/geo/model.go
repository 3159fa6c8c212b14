// Package geo defines the administrative zone hierarchy used for section
// assignment.
package geo

import "time"

// District is a top-level administrative area.
type District struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Section is a census section inside a district. Geometry holds the polygon
// in WKT form; the (DistrictCode, Code) pair is unique.
type Section struct {
	ID           string    `db:"id" json:"id"`
	DistrictID   string    `db:"district_id" json:"district_id"`
	DistrictCode string    `db:"district_code" json:"district_code"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name,omitempty"`
	Geometry     string    `db:"geometry" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Assignment links an inventory item to the section containing it, with the
// method that produced the match.
type Assignment struct {
	ItemID     string    `db:"item_id" json:"item_id"`
	SectionID  string    `db:"section_id" json:"section_id"`
	Method     string    `db:"method" json:"method"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// Assignment methods.
const (
	MethodPostGIS   = "postgis"
	MethodInProcess = "in_process"
)
