// Package initiative defines citizen-organized civic activities.
package initiative

import (
	"regexp"
	"strings"
	"time"
)

// Status values an initiative moves through. Creation always starts pending;
// only approved and active initiatives are publicly visible.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// VisibleStatuses are the states shown on public listings.
func VisibleStatuses() []Status {
	return []Status{StatusApproved, StatusActive}
}

// Initiative is a scheduled civic activity with participants.
type Initiative struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	Location    string    `db:"location" json:"location"`
	Category    string    `db:"category" json:"category"`
	Date        time.Time `db:"date" json:"date"`
	TimeOfDay   string    `db:"time_of_day" json:"time_of_day,omitempty"`
	ImagePath   string    `db:"image_path" json:"image_path,omitempty"`
	Status      Status    `db:"status" json:"status"`
	ViewCount   int       `db:"view_count" json:"view_count"`
	CreatorID   string    `db:"creator_id" json:"creator_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// IsUpcoming reports whether the initiative date is today or later.
func (i Initiative) IsUpcoming(now time.Time) bool {
	return !i.Date.Before(now.Truncate(24 * time.Hour))
}

// Visible reports whether the initiative appears on public listings.
func (i Initiative) Visible() bool {
	return i.Status == StatusApproved || i.Status == StatusActive
}

// Comment is a registered user's remark on an initiative.
type Comment struct {
	ID           string    `db:"id" json:"id"`
	InitiativeID string    `db:"initiative_id" json:"initiative_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Content      string    `db:"content" json:"content"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Participation records an anonymous (non-registered) participant.
type Participation struct {
	ID           string    `db:"id" json:"id"`
	InitiativeID string    `db:"initiative_id" json:"initiative_id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email,omitempty"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// Slugify turns a title into a URL-friendly slug. Empty or symbol-only
// titles slugify to "untitled"; uniqueness is the caller's concern.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugCollapse.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
