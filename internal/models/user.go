package models

import "time"

// Role represents what a user is acting as on the marketplace.
type Role string

const (
	RoleSeller Role = "seller" // Lists invoices and reviews bids
	RoleBuyer  Role = "buyer"  // Browses listings, bids and pays
	RoleAdmin  Role = "admin"  // Operator, may resend notifications
)

// IsValid returns true if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleSeller, RoleBuyer, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents a marketplace account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the user may act as r.
func (u *User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}
