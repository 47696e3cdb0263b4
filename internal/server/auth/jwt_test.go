package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndVerify_Success(t *testing.T) {
	t.Parallel()

	c := NewTokenCodec([]byte("super-secret"), time.Hour, "", nil)

	tok, err := c.SignAccess("acc-123")
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}

	got, err := c.VerifyAccess(tok)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	if got != "acc-123" {
		t.Fatalf("account mismatch: got %q want %q", got, "acc-123")
	}
}

func TestSignAccess_CarriesSubjectAndType(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewTokenCodec([]byte("k"), 15*time.Minute, "authkeeper", func() time.Time { return now })

	tok, err := c.SignAccess("acc-1")
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, claims)
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Type != "access" || claims.Issuer != "authkeeper" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected exp: %v", claims.ExpiresAt)
	}
}

func TestVerifyAccess_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	issuer := NewTokenCodec([]byte("secret"), time.Minute, "", func() time.Time { return now.Add(-time.Hour) })
	verifier := NewTokenCodec([]byte("secret"), time.Minute, "", func() time.Time { return now })

	tok, err := issuer.SignAccess("u1")
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}

	_, err = verifier.VerifyAccess(tok)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestVerifyAccess_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewTokenCodec([]byte("right-secret"), time.Hour, "", nil).SignAccess("u2")
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}

	_, err = NewTokenCodec([]byte("wrong-secret"), time.Hour, "", nil).VerifyAccess(tok)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestVerifyAccess_WrongType(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u3",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: "refresh",
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = NewTokenCodec(secret, time.Hour, "", nil).VerifyAccess(tok)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestVerifyAccess_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u4",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: AccessTokenType,
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewTokenCodec(secret, time.Hour, "", nil).VerifyAccess(tok); err == nil {
		t.Fatalf("expected HS512 token to be rejected")
	}
}

func TestVerifyAccess_MissingExpiry(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u5"},
		Type:             AccessTokenType,
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewTokenCodec(secret, time.Hour, "", nil).VerifyAccess(tok); err == nil {
		t.Fatalf("expected token without exp to be rejected")
	}
}

func TestVerifyAccess_IssuerMismatch(t *testing.T) {
	t.Parallel()

	tok, err := NewTokenCodec([]byte("k"), time.Hour, "other", nil).SignAccess("u6")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewTokenCodec([]byte("k"), time.Hour, "authkeeper", nil).VerifyAccess(tok); err == nil {
		t.Fatalf("expected issuer mismatch to be rejected")
	}
}

func TestVerifyAccess_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := NewTokenCodec([]byte("k"), time.Hour, "", nil).VerifyAccess("not.a.jwt")
	if err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}
