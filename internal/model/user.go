package model

import "time"

// Role names as stored in users.role and carried in the JWT role claim.
const (
	RoleAdmin        = "admin"
	RoleEventManager = "eventManager"
	RoleStudent      = "student"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleEventManager, RoleStudent:
		return true
	}
	return false
}

// IsStaff reports whether the role may manage other users' records.
func IsStaff(r string) bool { return r == RoleAdmin || r == RoleEventManager }

// User mirrors the users table.  PasswordHash never leaves the process.
type User struct {
	ID           uint64    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CollegeID    *uint64   `json:"collegeId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RefreshToken models an entry in the refresh_tokens table.  Only the
// SHA-256 digest of the issued token is stored.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// College is a campus of the college system.
type College struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Code      *string   `json:"code"`
	Address   *string   `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
