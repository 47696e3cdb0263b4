package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/abuse"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	headerRequestID = common.RequestIDHeaderName
	maxRequestIDLen = 128

	requestLogTimeout = 5 * time.Second
)

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// requestID takes the inbound X-Request-Id or generates one, stores it in
// the request context and echoes it in the response header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				writeError(w, r, a.log, apperr.Internal(fmt.Errorf("panic: %v", v)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe logs every request, feeds the HTTP metrics and stores a request
// log row in the background.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := a.now().Sub(start)
		ctx := r.Context()
		ip := clientIP(r)

		a.log.Info(ctx, "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"ip", ip,
		)
		if a.metrics != nil {
			a.metrics.ObserveHTTP(r.Method, a.routeTemplate(r), rec.status, elapsed)
		}
		if a.logs == nil || r.URL.Path == "/metrics" {
			return
		}

		entry := &models.RequestLog{
			RequestID:  logging.RequestIDFromContext(ctx),
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			DurationMs: elapsed.Milliseconds(),
			IP:         ip,
			UserAgent:  r.UserAgent(),
			CreatedAt:  start,
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestLogTimeout)
			defer cancel()
			if err := a.logs.Record(ctx, entry); err != nil {
				a.log.Warn(ctx, "request log not stored", "error", err)
			}
		}()
	})
}

// routeTemplate labels metrics by route pattern, not by concrete path.
func (a *API) routeTemplate(r *http.Request) string {
	var m mux.RouteMatch
	if a.router.Match(r, &m) && m.MatchErr == nil && m.Route != nil {
		if tpl, err := m.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// rateLimit applies rule to every request, keyed by client IP.
func (a *API) rateLimit(name string, rule config.RateRule) mux.MiddlewareFunc {
	r := abuse.Rule{Limit: rule.Limit, Window: rule.Window}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if a.limiter != nil {
				ok, retry := a.limiter.Allow(req.Context(), name, r, clientIP(req))
				if !ok {
					if a.metrics != nil {
						a.metrics.RateLimited(name)
					}
					writeError(w, req, a.log, apperr.RateLimited(retry))
					return
				}
			}
			next.ServeHTTP(w, req)
		})
	}
}

// clientIP is the peer address of the connection.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientMeta(r *http.Request) models.ClientMeta {
	return models.ClientMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
}
