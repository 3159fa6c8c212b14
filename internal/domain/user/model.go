// Package user defines accounts and roles.
package user

import "time"

// Role names known to the service.
const (
	RoleAdmin              = "admin"
	RoleSectionResponsible = "section_responsible"
	RoleUser               = "user"
)

// User is a registered resident or administrator.
type User struct {
	ID           string   `db:"id" json:"id"`
	Email        string   `db:"email" json:"email"`
	Username     string   `db:"username" json:"username"`
	PasswordHash string   `db:"password_hash" json:"-"`
	Active       bool     `db:"active" json:"active"`
	Roles        []string `db:"-" json:"roles"`

	// SectionID scopes a section responsible's moderation rights to one
	// census section. Nil for everyone else.
	SectionID   *string    `db:"section_id" json:"section_id,omitempty"`
	ConfirmedAt *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// HasRole reports whether the user carries the named role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is a convenience for the most common gate.
func (u User) IsAdmin() bool { return u.HasRole(RoleAdmin) }

// Moderates reports whether the user may moderate an item assigned to the
// given section. Admins moderate everything; section responsibles only the
// items inside their own section.
func (u User) Moderates(sectionID *string) bool {
	if u.IsAdmin() {
		return true
	}
	if !u.HasRole(RoleSectionResponsible) || u.SectionID == nil {
		return false
	}
	return sectionID != nil && *sectionID == *u.SectionID
}

// Confirmed reports whether the email address has been confirmed.
func (u User) Confirmed() bool { return u.ConfirmedAt != nil }
