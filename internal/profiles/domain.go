// Package profiles stores the application-side view of an identity:
// display profile, role assignments and business memberships.
package profiles

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the display record created for each identity.
type Profile struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Email     string
	FullName  string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Initials returns up to two initials for avatar placeholders.
func (p Profile) Initials() string {
	var out []rune
	start := true
	for _, r := range p.FullName {
		if r == ' ' {
			start = true
			continue
		}
		if start {
			out = append(out, r)
			start = false
			if len(out) == 2 {
				break
			}
		}
	}
	if len(out) == 0 && p.Email != "" {
		out = append(out, []rune(p.Email)[0])
	}
	return string(out)
}

// NewProfile carries the fields written when an identity signs up.
type NewProfile struct {
	UserID   uuid.UUID
	Email    string
	FullName string
}

// Business is one portfolio company.
type Business struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description string
	Color       string
}

// Membership links a user to a business.
type Membership struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	BusinessID     uuid.UUID
	IsPrimary      bool
	CanViewReports bool
	Business       Business
}

// Person is the subset of a profile shown next to rows owned by someone else.
type Person struct {
	UserID   uuid.UUID
	FullName string
	Email    string
}

// Name falls back to the email when no display name was set.
func (p Person) Name() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}
