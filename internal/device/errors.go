package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID does not exist in the cache.
	ErrNotFound = errors.New("device: not found")

	// ErrInvalidID is returned when an identifier is not of the form
	// dev_{node}_{endpoint}.
	ErrInvalidID = errors.New("device: invalid id")
)
