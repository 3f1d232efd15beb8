// Package fault defines the error taxonomy shared by the engine's
// components and its HTTP surface. Handlers wrap these sentinels with
// context via %w; routes map them to status codes with HTTPStatus.
package fault

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates an unknown session, alert, persona or rule.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a concurrent state mismatch; callers should
	// re-fetch and retry.
	ErrConflict = errors.New("conflict")

	// ErrPolicyViolation indicates an operation not permitted by the
	// current rules (e.g. switching to a persona outside the session's
	// safe list).
	ErrPolicyViolation = errors.New("policy violation")

	// ErrValidation indicates malformed config or input.
	ErrValidation = errors.New("validation error")

	// ErrUpstreamTimeout indicates an evaluator or generator call that
	// exceeded its bounded timeout. The engine degrades to cautious
	// defaults instead of failing the session.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrInvalidTransition indicates an illegal alert state change.
	ErrInvalidTransition = errors.New("invalid transition")
)

// HTTPStatus maps a taxonomy error to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPolicyViolation):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error response with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
