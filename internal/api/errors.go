package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hearthwire/matterhub/internal/alias"
	"github.com/hearthwire/matterhub/internal/commissioning"
	"github.com/hearthwire/matterhub/internal/control"
	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/matter"
)

// Error carries the failure details inside the fixed error envelope.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorEnvelope is the wire shape of every error response:
// {"error": {"status": ..., "code": ..., "message": ...}}.
type errorEnvelope struct {
	Error Error `json:"error"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeValidation = "validation_error"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeBackend    = "backend_unavailable"
	ErrCodeTimeout    = "timeout"
	ErrCodeInternal   = "internal_error"
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
	writeJSON(w, status, errorEnvelope{Error: Error{
		Status:  status,
		Code:    code,
		Message: message,
	}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain error onto the HTTP taxonomy. The
// mapping lives here, in one place, so every handler renders the same
// failure the same way:
//
//	unknown device or alias      → 404
//	alias already in use         → 409
//	validation failures          → 400
//	backend down or refusing     → 502
//	deadline expiries            → 504
//
// Anything unrecognised is an internal error; the raw message is not
// exposed for those.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrNotFound),
		errors.Is(err, alias.ErrNotFound),
		errors.Is(err, control.ErrDeviceNotFound),
		errors.Is(err, commissioning.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())

	case errors.Is(err, alias.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())

	case errors.Is(err, alias.ErrInvalidAlias),
		errors.Is(err, device.ErrInvalidID),
		errors.Is(err, commissioning.ErrInvalidCode),
		errors.Is(err, control.ErrNotLight),
		errors.Is(err, control.ErrBrightnessRange),
		errors.Is(err, control.ErrTemperatureRange):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())

	case errors.Is(err, control.ErrBackendUnavailable),
		errors.Is(err, control.ErrCommandRejected),
		errors.Is(err, commissioning.ErrBackendFailed),
		errors.Is(err, matter.ErrNotConnected),
		errors.Is(err, matter.ErrConnectionFailed),
		errors.Is(err, matter.ErrClosed),
		errors.Is(err, matter.ErrCommandFailed):
		writeError(w, http.StatusBadGateway, ErrCodeBackend, err.Error())

	case errors.Is(err, commissioning.ErrSessionTimeout),
		errors.Is(err, matter.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())

	default:
		writeInternalError(w, "internal error")
	}
}
