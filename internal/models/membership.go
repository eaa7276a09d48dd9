package models

import "time"

// Role is a user's role within a business
type Role string

const (
	RoleOwner      Role = "OWNER"
	RoleManager    Role = "MANAGER"
	RoleAccountant Role = "ACCOUNTANT"
	RoleStaff      Role = "STAFF"
)

// ValidRole reports whether r is one of the closed set.
func ValidRole(r Role) bool {
	return r == RoleOwner || r == RoleManager || r == RoleAccountant || r == RoleStaff
}

// Membership maps a user to a business with a role. Every mutation in the
// system is gated on a membership lookup.
type Membership struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"userId" db:"user_id"`
	BusinessID string    `json:"businessId" db:"business_id"`
	Role       Role      `json:"role" db:"role"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Business is a tenant, the scoping boundary for all entities.
type Business struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// User is an authenticated principal.
type User struct {
	ID        string     `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	FirstName string     `json:"firstName" db:"first_name"`
	LastName  string     `json:"lastName" db:"last_name"`
	LastLogin *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}
