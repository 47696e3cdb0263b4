package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	res, err := a.auth.Register(r.Context(), req, clientMeta(r))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if !a.deliverRefreshCookie(w, r, res.RefreshToken) {
		return
	}
	writeData(w, r, http.StatusCreated, res)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	res, err := a.auth.Login(r.Context(), req, clientMeta(r))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if !a.deliverRefreshCookie(w, r, res.RefreshToken) {
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := a.refreshRequest(w, r)
	if !ok {
		return
	}
	pair, err := a.auth.Refresh(r.Context(), req, clientMeta(r))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if !a.deliverRefreshCookie(w, r, pair.RefreshToken) {
		return
	}
	writeData(w, r, http.StatusOK, pair)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	req, ok := a.refreshRequest(w, r)
	if !ok {
		return
	}
	if err := a.auth.Logout(r.Context(), req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if a.cfg.RefreshCookieEnabled {
		a.clearSessionCookies(w)
	}
	writeData(w, r, http.StatusOK, map[string]bool{"loggedOut": true})
}

// refreshBody tells an absent refreshToken key apart from an empty one.
type refreshBody struct {
	RefreshToken *string `json:"refreshToken"`
}

// refreshRequest reads the refresh token from the body or, with cookie
// delivery enabled and no refreshToken key in the body, from the refresh
// cookie. A cookie-borne token must carry a matching CSRF header unless
// CSRFForRefresh is off.
func (a *API) refreshRequest(w http.ResponseWriter, r *http.Request) (services.RefreshRequest, bool) {
	var (
		body refreshBody
		req  services.RefreshRequest
	)
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, a.log, err)
		return req, false
	}
	if body.RefreshToken != nil {
		req.RefreshToken = *body.RefreshToken
		return req, true
	}
	if !a.cfg.RefreshCookieEnabled {
		return req, true
	}
	if a.cfg.CSRFForRefresh {
		if err := checkCSRF(r); err != nil {
			writeError(w, r, a.log, err)
			return req, false
		}
	}
	req.RefreshToken = refreshFromCookie(r)
	return req, true
}

func (a *API) deliverRefreshCookie(w http.ResponseWriter, r *http.Request, token string) bool {
	if !a.cfg.RefreshCookieEnabled {
		return true
	}
	if err := a.setSessionCookies(w, token); err != nil {
		writeError(w, r, a.log, apperr.Internal(err))
		return false
	}
	return true
}

func (a *API) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req services.VerifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	res, err := a.auth.VerifyEmail(r.Context(), req)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req services.ResetRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	res, err := a.auth.RequestPasswordReset(r.Context(), req)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	res, err := a.auth.ResetPassword(r.Context(), req)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}
