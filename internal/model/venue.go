package model

import "time"

// Venue is a bookable location.  Amenities is stored as a JSON array.
type Venue struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Capacity    *int      `json:"capacity"`
	Description *string   `json:"description"`
	Location    *string   `json:"location"`
	Amenities   []string  `json:"amenities"`
	HourlyRate  *float64  `json:"hourlyRate"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
