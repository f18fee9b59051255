package attempt

import "errors"

var (
	// ErrAlreadyRunning is returned for a start request while a run is
	// active (or still finalizing). Reported to the caller, not an
	// internal error.
	ErrAlreadyRunning = errors.New("attempt: a run is already active")

	// ErrActuatorUnavailable is returned for a start request when the
	// output line could not be opened at startup.
	ErrActuatorUnavailable = errors.New("attempt: actuator output unavailable")
)
