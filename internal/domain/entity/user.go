// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import "time"

// User is a registered account. It is created once by registration and never modified.
type User struct {
	ID           int64     // Store-assigned identifier, increasing with insertion order.
	Username     string    // Unique login name.
	PasswordHash string    // bcrypt digest of the password. Never leaves the service.
	CreatedAt    time.Time // Set by the store on insert.
}

// Summary returns the public projection of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username}
}

// UserSummary is what callers of the listing may see about an account.
type UserSummary struct {
	ID       int64
	Username string
}
