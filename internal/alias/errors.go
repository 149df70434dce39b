package alias

import "errors"

// Domain errors for the alias package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, alias.ErrConflict) {
//	    // alias already names another device
//	}
var (
	// ErrNotFound is returned when neither a device nor an alias matches
	// the supplied identifier.
	ErrNotFound = errors.New("alias: not found")

	// ErrConflict is returned when an alias already names a different
	// device. The existing binding is never overwritten.
	ErrConflict = errors.New("alias: already in use")

	// ErrInvalidAlias is returned when a name fails validation: empty,
	// too long, or shaped like a canonical device ID.
	ErrInvalidAlias = errors.New("alias: invalid name")
)
