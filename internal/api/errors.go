package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// Error represents a structured error response.
//
// The optional fields carry lockout detail for the login flows:
// RemainingAttempts counts down while failures are still free,
// UnlockAt/Permanent describe an engaged lock.
type Error struct {
	Status            int        `json:"status"`
	Code              string     `json:"code"`
	Message           string     `json:"message"`
	RemainingAttempts *int       `json:"remainingAttempts,omitempty"`
	UnlockAt          *time.Time `json:"unlockAt,omitempty"`
	Permanent         bool       `json:"permanent,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeLocked          = "account_locked"
	ErrCodeTooManyAttempts = "too_many_attempts"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeSessionNotFound = "session_not_found"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAttempt writes a failed-credential response carrying the number of
// free attempts left before the lockout ladder engages. The status differs
// by modality: 401 for password logins, 403 for PIN checks.
func writeAttempt(w http.ResponseWriter, status int, code, message string, remaining int) {
	writeJSON(w, status, Error{
		Status:            status,
		Code:              code,
		Message:           message,
		RemainingAttempts: &remaining,
	})
}

// writeLocked writes a lockout response. Password-modality locks use 423,
// PIN modalities use 429. Permanent locks omit UnlockAt entirely rather
// than exposing the sentinel timestamp.
func writeLocked(w http.ResponseWriter, status int, lockErr *auth.LockedError) {
	e := Error{
		Status:  status,
		Code:    ErrCodeLocked,
		Message: "account locked due to repeated failed attempts",
	}
	if lockErr.Permanent() {
		e.Permanent = true
		e.Message = "account locked; contact an administrator to unlock"
	} else {
		until := lockErr.Until
		e.UnlockAt = &until
	}
	writeJSON(w, status, e)
}
