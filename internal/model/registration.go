package model

import "time"

// Registration statuses.
const (
	RegistrationConfirmed = "confirmed"
	RegistrationCancelled = "cancelled"
	RegistrationWaitlist  = "waitlist"
)

// Registration records one attendee for an event.  Rows are cancelled,
// never deleted; a cancelled row no longer counts against capacity.
type Registration struct {
	ID                    uint64    `json:"id"`
	EventID               uint64    `json:"eventId"`
	UserID                *uint64   `json:"userId"`
	Name                  string    `json:"name"`
	Email                 string    `json:"email"`
	Phone                 *string   `json:"phone"`
	DietaryRestrictions   *string   `json:"dietaryRestrictions"`
	SpecialAccommodations *string   `json:"specialAccommodations"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`

	EventTitle *string `json:"eventTitle,omitempty"`
	EventDate  *string `json:"eventDate,omitempty"`
}
