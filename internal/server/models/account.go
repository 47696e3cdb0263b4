// Package models defines server-side data models persisted in the database.
package models

import "time"

// Role is the coarse authorization level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is a registered identity.
type Account struct {
	ID              string
	Email           string
	Username        *string
	Role            Role
	PasswordHash    string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PublicAccount is the part of an Account that may leave the server.
type PublicAccount struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Username        *string    `json:"username"`
	Role            Role       `json:"role"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Public strips the password hash.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:              a.ID,
		Email:           a.Email,
		Username:        a.Username,
		Role:            a.Role,
		EmailVerifiedAt: a.EmailVerifiedAt,
		CreatedAt:       a.CreatedAt,
	}
}
