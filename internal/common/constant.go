package common

// HTTP header and cookie names of the API.
const (
	RequestIDHeaderName = "X-Request-Id"
	CSRFHeaderName      = "X-CSRF-Token"

	RefreshCookieName = "refresh_token"
	CSRFCookieName    = "csrf_token"
)
