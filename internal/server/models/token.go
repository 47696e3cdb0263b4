package models

import "time"

// TokenType tags the purpose of an opaque token.
type TokenType string

const (
	TokenTypeRefresh       TokenType = "REFRESH"
	TokenTypeEmailVerify   TokenType = "EMAIL_VERIFY"
	TokenTypePasswordReset TokenType = "PASSWORD_RESET"
)

// Token is a server-side record of an opaque token. Only the hash of the
// secret is kept.
type Token struct {
	ID        string
	AccountID string
	Type      TokenType
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	UsedAt    *time.Time
	IP        *string
	UserAgent *string
	CreatedAt time.Time
}

// Consumable reports whether the token may be consumed as typ at now.
// A token whose expiry equals now is already expired.
func (t *Token) Consumable(typ TokenType, now time.Time) bool {
	return t.Type == typ && !t.Revoked && t.UsedAt == nil && t.ExpiresAt.After(now)
}

// Session is the client-facing view of a live refresh token.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IP        *string   `json:"ip"`
	UserAgent *string   `json:"userAgent"`
}

// ClientMeta identifies the client a refresh token was issued to.
type ClientMeta struct {
	IP        string
	UserAgent string
}
