package pulse

import (
	"fmt"
	"time"
)

// Pulse timing. The meter needs at least 200ms of light to register a
// pulse and some dark time afterwards before it accepts the next one.
const (
	PulseOn  = 200 * time.Millisecond
	PulseOff = 300 * time.Millisecond
)

// Emitter emits single timed light pulses on a Line.
type Emitter struct {
	line  Line
	sleep func(time.Duration)
}

// NewEmitter creates an Emitter for the given line.
func NewEmitter(line Line) *Emitter {
	return &Emitter{line: line, sleep: time.Sleep}
}

// Pulse drives the line high for PulseOn, then low for PulseOff.
// A line failure mid-pulse still attempts to return the line low.
func (e *Emitter) Pulse() error {
	if err := e.line.SetHigh(); err != nil {
		e.line.SetLow()
		return fmt.Errorf("pulse high: %w", err)
	}
	e.sleep(PulseOn)
	if err := e.line.SetLow(); err != nil {
		return fmt.Errorf("pulse low: %w", err)
	}
	e.sleep(PulseOff)
	return nil
}
