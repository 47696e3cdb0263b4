// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when the configured cost is zero.
const DefaultCost = 12

// Hasher hashes passwords with a fixed bcrypt cost.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher returns a Hasher for cost, clamped to bcrypt's valid range.
// It precomputes a dummy hash used by EqualizeTiming.
func NewHasher(cost int) (*Hasher, error) {
	switch {
	case cost == 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Cost reports the bcrypt cost in use.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches hash. A malformed hash is an
// error; a mismatch is not.
func (h *Hasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt: %w", err)
	}
}

// EqualizeTiming spends one bcrypt comparison at the configured cost. Login
// calls it when the account does not exist.
func (h *Hasher) EqualizeTiming(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
