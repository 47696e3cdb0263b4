package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
	RequestID string     `json:"requestId,omitempty"`
}

type errorBody struct {
	Status    int         `json:"status"`
	Code      apperr.Code `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData answers with a success envelope.
func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, envelope{
		Success:   true,
		Data:      data,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}

// writeError renders err as a failure envelope. Internal errors are logged
// with their cause and shown to the client only as a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	e := apperr.From(err)
	if e.Code == apperr.CodeInternal {
		log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", e.Err)
	}
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(e.RetryAfter.Seconds())))
	}
	writeJSON(w, e.Status, envelope{
		Error: &errorBody{
			Status:    e.Status,
			Code:      e.Code,
			Message:   e.Message,
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}

func retryAfterSeconds(s float64) int {
	n := int(math.Ceil(s))
	if n < 1 {
		return 1
	}
	return n
}

// decodeJSON reads a JSON object from the request body into dst. An empty
// body decodes as an empty object so that field validation reports what is
// missing. Unparseable bodies and wrong-typed fields are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var (
		tooBig  *http.MaxBytesError
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooBig):
		return apperr.BadRequest("request body too large")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apperr.Validation(fmt.Sprintf("%s: expected %s", typeErr.Field, typeErr.Type))
	case errors.As(err, &typeErr):
		return apperr.Validation("request body must be a JSON object")
	default:
		return apperr.Validation("malformed JSON body")
	}
}

// queryInt returns the integer query parameter name, or def when it is
// absent or not a number.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
