package control

import "errors"

// Domain errors for the control package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, control.ErrBrightnessRange) {
//	    // reject before any backend traffic
//	}
var (
	// ErrDeviceNotFound is returned when the canonical ID is not in
	// the cache.
	ErrDeviceNotFound = errors.New("control: device not found")

	// ErrNotLight is returned when the target device carries no
	// controllable clusters.
	ErrNotLight = errors.New("control: device is not a light")

	// ErrBrightnessRange is returned when brightness falls outside
	// [0.0, 1.0].
	ErrBrightnessRange = errors.New("control: brightness out of range")

	// ErrTemperatureRange is returned when colour temperature falls
	// outside the supported Kelvin range.
	ErrTemperatureRange = errors.New("control: temperature out of range")

	// ErrBackendUnavailable is returned when the controller link is
	// down. The request never left this process; callers may retry.
	ErrBackendUnavailable = errors.New("control: backend unavailable")

	// ErrCommandRejected is returned when the controller accepted the
	// connection but refused the command.
	ErrCommandRejected = errors.New("control: command rejected by backend")
)
