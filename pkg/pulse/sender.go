package pulse

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entry protocol timing. After the start pulse the meter needs a second
// before it accepts digit pulses. A 3.1s quiet window after a digit makes
// the meter commit it and advance to the next position; the nominal
// window is 3s, the extra 100ms absorbs scheduling jitter.
const (
	StartSettle   = 1 * time.Second
	InterPulseGap = 100 * time.Millisecond
	DigitWindow   = 3100 * time.Millisecond
)

// ErrBadCode reports a code that is not four decimal digits.
var ErrBadCode = errors.New("pulse: code must be four decimal digits")

// Pulser emits a single timed pulse.
type Pulser interface {
	Pulse() error
}

// Sender types a four-digit code into the meter, one counted pulse group
// per digit. Send blocks for the full entry duration (roughly 10-15s per
// code) and must run on its own goroutine, never on a request handler.
type Sender struct {
	pulser Pulser
	sleep  func(time.Duration)
}

// NewSender creates a Sender on top of the given Pulser.
func NewSender(p Pulser) *Sender {
	return &Sender{pulser: p, sleep: time.Sleep}
}

// Send enters one code: a start pulse, a settle delay, then for each
// digit as many pulses as its value (zero pulses for 0), each followed by
// a short gap, and a commit window between digits. The context is checked
// at digit boundaries only; pulse timing within a digit is never
// interrupted.
func (s *Sender) Send(ctx context.Context, code string) error {
	digits, err := parseCode(code)
	if err != nil {
		return err
	}

	// Start pulse tells the meter to begin accepting a digit.
	if err := s.pulser.Pulse(); err != nil {
		return fmt.Errorf("start pulse: %w", err)
	}
	s.sleep(StartSettle)

	for i, d := range digits {
		if err := ctx.Err(); err != nil {
			return err
		}
		for n := 0; n < d; n++ {
			if err := s.pulser.Pulse(); err != nil {
				return fmt.Errorf("digit %d pulse %d: %w", i+1, n+1, err)
			}
			s.sleep(InterPulseGap)
		}
		// No commit window after the last digit.
		if i < len(digits)-1 {
			s.sleep(DigitWindow)
		}
	}
	return nil
}

// parseCode validates a code and returns its digit values.
func parseCode(code string) ([4]int, error) {
	var digits [4]int
	if len(code) != 4 {
		return digits, fmt.Errorf("%w: %q", ErrBadCode, code)
	}
	for i, c := range code {
		if c < '0' || c > '9' {
			return digits, fmt.Errorf("%w: %q", ErrBadCode, code)
		}
		digits[i] = int(c - '0')
	}
	return digits, nil
}
