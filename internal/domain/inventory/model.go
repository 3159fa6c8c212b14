// Package inventory defines citizen-reported civic issues and their category
// taxonomy.
package inventory

import "time"

// Status values an item moves through. Reports start pending; moderators
// approve or reject; approved items are later resolved or removed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusResolved Status = "resolved"
	StatusRemoved  Status = "removed"
)

// LocationSource records how the item's coordinates were obtained.
const (
	LocationSourceMap   = "map"
	LocationSourcePhoto = "photo"
	LocationSourceNone  = "none"
)

// Item is a single reported issue pinned to a map coordinate.
type Item struct {
	ID          string  `db:"id" json:"id"`
	Title       string  `db:"title" json:"title"`
	Description string  `db:"description" json:"description,omitempty"`
	Latitude    float64 `db:"latitude" json:"latitude"`
	Longitude   float64 `db:"longitude" json:"longitude"`
	Status      Status  `db:"status" json:"status"`

	ImagePath      string `db:"image_path" json:"image_path,omitempty"`
	LocationSource string `db:"location_source" json:"location_source"`

	// PhotoLatitude and PhotoLongitude carry EXIF GPS coordinates extracted
	// from the uploaded image when they differ from the pin position.
	PhotoLatitude  *float64 `db:"photo_latitude" json:"photo_latitude,omitempty"`
	PhotoLongitude *float64 `db:"photo_longitude" json:"photo_longitude,omitempty"`

	ImportanceCount int `db:"importance_count" json:"importance_count"`
	ResolvedCount   int `db:"resolved_count" json:"resolved_count"`
	ShareCount      int `db:"share_count" json:"share_count"`

	SectionID  *string `db:"section_id" json:"section_id,omitempty"`
	ReporterID *string `db:"reporter_id" json:"reporter_id,omitempty"`

	Categories []Category `db:"-" json:"categories,omitempty"`

	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Votable reports whether importance votes are accepted for the item.
func (i Item) Votable() bool { return i.Status == StatusApproved }

// OnMap reports whether the item appears on the public map.
func (i Item) OnMap() bool {
	return i.Status == StatusApproved || i.Status == StatusResolved
}

// Category is one node of the two-level issue taxonomy.
type Category struct {
	ID        string  `db:"id" json:"id"`
	Code      string  `db:"code" json:"code"`
	Name      string  `db:"name" json:"name"`
	Icon      string  `db:"icon" json:"icon,omitempty"`
	SortOrder int     `db:"sort_order" json:"sort_order"`
	Active    bool    `db:"active" json:"active"`
	ParentID  *string `db:"parent_id" json:"parent_id,omitempty"`
}

// VoteKind distinguishes the two per-user marks on an item.
type VoteKind string

const (
	VoteImportance VoteKind = "importance"
	VoteResolved   VoteKind = "resolved"
)

// Vote records one user's mark on an item. A user holds at most one vote of
// each kind per item.
type Vote struct {
	ID        string    `db:"id" json:"id"`
	ItemID    string    `db:"item_id" json:"item_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Kind      VoteKind  `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
