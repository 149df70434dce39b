package commissioning

import "errors"

// Domain errors for the commissioning package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, commissioning.ErrInvalidCode) {
//	    // setup code rejected before reaching the backend
//	}
var (
	// ErrInvalidCode is returned when a setup code fails structural
	// validation. Attempts with malformed codes never reach the backend.
	ErrInvalidCode = errors.New("commissioning: invalid setup code")

	// ErrBackendFailed is returned when the controller rejects or cannot
	// deliver the commissioning request.
	ErrBackendFailed = errors.New("commissioning: backend request failed")

	// ErrSessionTimeout is returned when no node arrives within the
	// session window. Any pending name is released.
	ErrSessionTimeout = errors.New("commissioning: session timed out")

	// ErrNamingFailed is returned when the device was commissioned but
	// the requested name could not be bound to it. The device remains
	// usable under its canonical ID.
	ErrNamingFailed = errors.New("commissioning: device commissioned but naming failed")

	// ErrSessionNotFound is returned when looking up an unknown or
	// already pruned session.
	ErrSessionNotFound = errors.New("commissioning: session not found")
)
