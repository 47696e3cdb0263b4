package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

const (
	cookieRefresh = common.RefreshCookieName
	cookieCSRF    = common.CSRFCookieName
	headerCSRF    = common.CSRFHeaderName

	refreshCookiePath = "/api/auth"
	csrfTokenBytes    = 32
)

// setSessionCookies hands the refresh token to the browser in an HttpOnly
// cookie together with a script-readable CSRF token.
func (a *API) setSessionCookies(w http.ResponseWriter, refreshToken string) error {
	csrf, err := common.MakeRandHexString(csrfTokenBytes)
	if err != nil {
		return err
	}
	maxAge := int(a.cfg.RefreshTokenTTL() / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     cookieRefresh,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     cookieCSRF,
		Value:    csrf,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{cookieRefresh, refreshCookiePath},
		{cookieCSRF, "/"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: c.name == cookieRefresh,
			Secure:   a.cfg.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// refreshFromCookie returns the refresh token cookie value, if any.
func refreshFromCookie(r *http.Request) string {
	c, err := r.Cookie(cookieRefresh)
	if err != nil {
		return ""
	}
	return c.Value
}
