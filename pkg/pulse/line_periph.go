package pulse

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOLine drives a GPIO pin through periph. The pin is configured as an
// output and driven low on open so the LED starts de-energized.
type GPIOLine struct {
	pin gpio.PinIO
}

// OpenLine looks up the named pin (e.g. "GPIO21") and configures it as a
// low output.
func OpenLine(name string) (*GPIOLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: host init: %v", ErrLineUnavailable, err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: no pin named %q", ErrLineUnavailable, name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLineUnavailable, err)
	}
	return &GPIOLine{pin: pin}, nil
}

// SetHigh drives the line high.
func (l *GPIOLine) SetHigh() error {
	if err := l.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("%w: %v", ErrLineUnavailable, err)
	}
	return nil
}

// SetLow drives the line low.
func (l *GPIOLine) SetLow() error {
	if err := l.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: %v", ErrLineUnavailable, err)
	}
	return nil
}

// Close forces the line low and releases it.
func (l *GPIOLine) Close() error {
	if err := l.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: %v", ErrLineUnavailable, err)
	}
	return l.pin.Halt()
}
