// This file implements a small builder for JSON responses and the mapping
// of domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sxledger/internal/core"
	"sxledger/internal/formula"
	"sxledger/internal/storage"
	"sxledger/internal/sx"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

// Write encodes body; a nil body writes only the status.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter, body any) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		parseErr   *formula.ParseError
		unboundErr *formula.UnboundError
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidInterval),
		errors.Is(err, core.ErrNegativeAdvance),
		errors.Is(err, sx.ErrVariableReadOnly),
		errors.Is(err, core.ErrNoTemplates),
		errors.As(err, &parseErr),
		errors.As(err, &unboundErr):
		return http.StatusBadRequest
	case errors.Is(err, sx.ErrInstanceNotFound),
		errors.Is(err, sx.ErrScheduleNotFound),
		errors.Is(err, storage.ErrScheduleNotFound),
		errors.Is(err, storage.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, sx.ErrVariableNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrStaleScheduleState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and answers with a JSON error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	NewJSONResponse().Status(status).Write(w, errorBody{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}
