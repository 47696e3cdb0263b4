package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/gorilla/mux"
)

const healthPingTimeout = 2 * time.Second

func (a *API) listOwnSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	res, err := a.sessions.ListSessions(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) revokeOwnSession(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	res, err := a.sessions.RevokeOwnSession(r.Context(), p.ID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) adminListSessions(w http.ResponseWriter, r *http.Request) {
	res, err := a.sessions.AdminListSessions(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) adminRevokeSession(w http.ResponseWriter, r *http.Request) {
	res, err := a.sessions.AdminRevokeSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	writeData(w, r, http.StatusOK, map[string]any{"user": p.account.Public()})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	res, err := a.accounts.List(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.accounts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"user": u})
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.accounts.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, r, a.log, apperr.NotFound("request logging is disabled"))
		return
	}
	res, err := a.logs.List(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

type healthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// health reports 200 while the database answers pings and 503 otherwise.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	now := a.now()
	st := healthStatus{
		Status:    "healthy",
		Database:  "connected",
		Uptime:    now.Sub(a.started).Seconds(),
		Timestamp: now.UTC(),
	}
	code := http.StatusOK
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			a.log.Warn(r.Context(), "health check: database unreachable", "error", err)
			st.Status, st.Database = "unhealthy", "disconnected"
			code = http.StatusServiceUnavailable
		}
	}
	writeData(w, r, code, st)
}
