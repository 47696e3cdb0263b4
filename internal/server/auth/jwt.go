// Package auth signs and verifies access tokens and produces the opaque
// secrets behind refresh, verification and reset tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenType is the typ claim of access tokens.
const AccessTokenType = "access"

// Claims are the claims of an access token: the registered ones (sub, exp,
// iat, iss) and a token-kind marker.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// TokenCodec signs and verifies HS256 access tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenCodec returns a codec signing with secret. Tokens live for ttl.
// now may be nil, meaning time.Now.
func NewTokenCodec(secret []byte, ttl time.Duration, issuer string, now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{secret: secret, ttl: ttl, issuer: issuer, now: now}
}

// SignAccess issues an access token for accountID.
func (c *TokenCodec) SignAccess(accountID string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Type: AccessTokenType,
	})

	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return tokenString, nil
}

// VerifyAccess returns the account id of a valid access token. Expired
// tokens yield common.ErrTokenExpired; anything else invalid yields
// common.ErrInvalidToken.
func (c *TokenCodec) VerifyAccess(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}
	if !token.Valid || claims.Type != AccessTokenType || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
