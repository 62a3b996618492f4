package model

import "time"

// Event statuses.  The capitalised spelling is part of the API contract.
const (
	EventPending   = "Pending"
	EventApproved  = "Approved"
	EventRejected  = "Rejected"
	EventTentative = "Tentative"
)

// ValidEventStatus reports whether s is one of the four event states.
func ValidEventStatus(s string) bool {
	switch s {
	case EventPending, EventApproved, EventRejected, EventTentative:
		return true
	}
	return false
}

// Event is a requested or scheduled event.  Date is YYYY-MM-DD, the
// optional times are HH:MM.  RequesterID owns the event for update checks.
type Event struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	CollegeID   *uint64   `json:"collegeId"`
	VenueID     *uint64   `json:"venueId"`
	Date        string    `json:"date"`
	StartTime   *string   `json:"startTime"`
	EndTime     *string   `json:"endTime"`
	Description *string   `json:"description"`
	MaxCapacity *int      `json:"maxCapacity"`
	Status      string    `json:"status"`
	RequesterID uint64    `json:"requesterId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// joined for list and export views
	VenueName     *string `json:"venueName,omitempty"`
	CollegeName   *string `json:"collegeName,omitempty"`
	RequesterName *string `json:"requesterName,omitempty"`
	// filled where the caller asked for it
	RegistrationCount *int `json:"registrationCount,omitempty"`
}

// EventPatch lists the fields a partial update may write.  A nil pointer
// means "leave unchanged".
type EventPatch struct {
	Title       *string
	CollegeID   *uint64
	VenueID     *uint64
	Date        *string
	StartTime   *string
	EndTime     *string
	Description *string
	MaxCapacity *int
}

// Empty reports whether no field was supplied.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.CollegeID == nil && p.VenueID == nil && p.Date == nil &&
		p.StartTime == nil && p.EndTime == nil && p.Description == nil && p.MaxCapacity == nil
}

// EventStats counts events per status.
type EventStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Tentative int `json:"tentative"`
}
