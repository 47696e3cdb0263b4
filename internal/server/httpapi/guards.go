package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Principal is the authenticated account of a request.
type Principal struct {
	ID    string
	Email string
	Role  models.Role

	account *models.Account
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by the bearer guard.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// bearer requires a valid access token of an existing account.
func (a *API) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, r, a.log, apperr.Unauthorized("missing or malformed authorization header"))
			return
		}
		sub, err := a.codec.VerifyAccess(strings.TrimSpace(token))
		if err != nil {
			writeError(w, r, a.log, apperr.Unauthorized("invalid or expired access token"))
			return
		}
		acc, err := a.accounts.Lookup(r.Context(), sub)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				writeError(w, r, a.log, apperr.Unauthorized("account not found"))
				return
			}
			writeError(w, r, a.log, apperr.Internal(err))
			return
		}
		p := &Principal{ID: acc.ID, Email: acc.Email, Role: acc.Role, account: acc}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// requireRole lets through principals holding one of roles. It must run
// after bearer.
func (a *API) requireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, a.log, apperr.Unauthorized("authentication required"))
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, a.log, apperr.Forbidden())
		})
	}
}

// basic checks operator credentials from configuration.
func (a *API) basic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.operatorMatches(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="authkeeper"`)
			writeError(w, r, a.log, apperr.Unauthorized("invalid operator credentials"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) operatorMatches(user, pass string) bool {
	if a.cfg.AdminUser == "" || a.cfg.AdminPassword == "" {
		return false
	}
	u := subtle.ConstantTimeCompare([]byte(user), []byte(a.cfg.AdminUser))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(a.cfg.AdminPassword))
	return u&p == 1
}

// checkCSRF compares the X-CSRF-Token header with the csrf_token cookie.
func checkCSRF(r *http.Request) error {
	header := r.Header.Get(headerCSRF)
	c, err := r.Cookie(cookieCSRF)
	if err != nil || header == "" || c.Value == "" {
		return apperr.CSRFInvalid()
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(c.Value)) != 1 {
		return apperr.CSRFInvalid()
	}
	return nil
}
