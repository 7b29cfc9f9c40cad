// Package httpserver contains HTTP handlers and middleware.
//
// It provides the REST API for submissions, evaluations and companies.
// Handlers translate requests into usecase calls and map domain errors
// onto a single JSON error envelope.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// statusByCode maps domain.ErrorCode values onto HTTP status codes.
var statusByCode = map[string]int{
	"INVALID_ARGUMENT":          http.StatusBadRequest,
	"NOT_FOUND":                 http.StatusNotFound,
	"CONFLICT":                  http.StatusConflict,
	"RATE_LIMITED":              http.StatusTooManyRequests,
	"UPSTREAM_RATE_LIMIT":       http.StatusTooManyRequests,
	"UPSTREAM_PAYMENT_REQUIRED": http.StatusPaymentRequired,
	"UPSTREAM_TIMEOUT":          http.StatusGatewayTimeout,
	"SCHEMA_INVALID":            http.StatusBadGateway,
	"UPSTREAM_ERROR":            http.StatusBadGateway,
	"PERSISTENCE_ERROR":         http.StatusInternalServerError,
	"INTERNAL":                  http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	code := domain.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		LoggerFrom(r).Error("request failed", "code", code, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: err.Error(), Code: code, Details: details})
}
