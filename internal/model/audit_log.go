package model

import "time"

// Locations reported by readers, plus the administrative ones used for non-scan actions.
const (
	LocationEntrance  = "ENTRANCE"
	LocationCafeteria = "CAFETERIA"
	LocationExit      = "EXIT"
	LocationSetup     = "SETUP"
	LocationDesk      = "DESK"
	LocationStaff     = "STAFF"
	LocationAdmin     = "ADMIN"
)

// Audit actions.
const (
	ActionRegistered      = "REGISTERED"
	ActionIssued          = "ISSUED"
	ActionLinked          = "LINKED"
	ActionEntered         = "ENTERED"
	ActionExited          = "EXITED"
	ActionMealRedeemed    = "MEAL_REDEEMED"
	ActionMealDenied      = "MEAL_DENIED"
	ActionCreditsAdjusted = "CREDITS_ADJUSTED"
)

// AuditLog is an append-only record of one state-changing action on an attendee.
type AuditLog struct {
	ID          int64     `gorm:"primaryKey"`
	UUID        string    `gorm:"uniqueIndex;size:36;not null"`
	AttendeeID  int64     `gorm:"index;not null"`
	Location    string    `gorm:"size:32;not null"`
	Action      string    `gorm:"size:32;not null;index"`
	Description string    `gorm:"size:512"`
	CreatedAt   time.Time `gorm:"not null"`

	// Associations
	Attendee Attendee `gorm:"constraint:OnDelete:CASCADE"`
}
