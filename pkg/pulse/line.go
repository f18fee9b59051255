// Package pulse drives the LED that types codes into the meter's light
// sensor. A code is entered as counted pulses: one start pulse, then for
// each digit as many pulses as the digit's value, with fixed windows in
// between so the meter commits each digit.
package pulse

import "errors"

// Line is a single digital output. Implementations must tolerate SetLow
// being called repeatedly during cleanup.
type Line interface {
	SetHigh() error
	SetLow() error
	Close() error
}

// ErrLineUnavailable reports that the output line cannot be driven.
// This is fatal to any run in progress.
var ErrLineUnavailable = errors.New("pulse: output line unavailable")
