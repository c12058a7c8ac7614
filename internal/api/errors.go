package api

import (
	"encoding/json"
	"net/http"

	"github.com/railmon/powerstats/internal/log"
)

// apiError pairs a stable machine-readable code with a human message.
type apiError struct {
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return e.Message
}

var (
	errUnauthorized = &apiError{
		Code:    "UNAUTHORIZED",
		Message: "authentication required",
	}
	errSnapshotPending = &apiError{
		Code:    "SNAPSHOT_PENDING",
		Message: "no snapshot yet, the poller has not completed a cycle",
	}
	errPollInProgress = &apiError{
		Code:    "POLL_IN_PROGRESS",
		Message: "a poll is already in progress",
	}
	errHubUnavailable = &apiError{
		Code:    "HUB_UNAVAILABLE",
		Message: "the power hub failed to provide a snapshot",
	}
	errHistoryDisabled = &apiError{
		Code:    "HISTORY_DISABLED",
		Message: "the history store is not enabled",
	}
	errInvalidInput = &apiError{
		Code:    "INVALID_INPUT",
		Message: "invalid query parameters",
	}
	errInternal = &apiError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "an internal error occurred",
	}
)

// errorBody is the wire form of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Detail carries request-specific context, e.g. the underlying
	// hub error on a failed refresh.
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes v with the given status code. Encode failures are
// logged; the status line is already on the wire at that point.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponentFromContext(r.Context(), "api").Error().
			Err(err).
			Int("status", code).
			Str("event", "api.encode_error").
			Msg("failed to encode response")
	}
}

// respondError sends the structured error envelope.
func respondError(w http.ResponseWriter, r *http.Request, status int, apiErr *apiError, details ...string) {
	body := errorBody{Error: apiErr.Message, Code: apiErr.Code}
	if len(details) > 0 {
		body.Detail = details[0]
	}
	writeJSON(w, r, status, body)
}
