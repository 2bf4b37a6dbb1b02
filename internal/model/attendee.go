package model

import "time"

// Attendee is one registered person. TagID stays nil until a tag is bound.
type Attendee struct {
	ID             int64   `gorm:"primaryKey"`
	RegistrationID string  `gorm:"uniqueIndex;size:64;not null"`
	Name           string  `gorm:"size:256"`
	Department     string  `gorm:"size:128"`
	GraduationYear int
	TagID          *string `gorm:"uniqueIndex;size:64"`
	MealCredits    int     `gorm:"not null;default:1;check:meal_credits >= 0"`
	IsInside       bool    `gorm:"not null;default:false"`

	// Sealed with pii.Sealer; never stored in clear text.
	PhoneSealed   string `gorm:"type:text"`
	AddressSealed string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Associations
	Logs []AuditLog `gorm:"foreignKey:AttendeeID"`
}

// HasTag reports whether a tag has been bound to the attendee.
func (a *Attendee) HasTag() bool {
	return a.TagID != nil && *a.TagID != ""
}
