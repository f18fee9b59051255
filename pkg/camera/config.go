// Package camera provides the shared frame source watching the meter
// display. One process-wide Source is read by both the evidence recorder
// and the live preview stream; reads are serialized internally so the
// V4L2 device only ever sees one reader at a time.
package camera

// Config selects the capture device and frame geometry.
type Config struct {
	// Device is the V4L2 device index (0 for /dev/video0).
	Device int
	// Width and Height are requested from the device. The meter display
	// is perfectly legible at 640x480 and the video artifacts stay small.
	Width  int
	Height int
}

// DefaultConfig returns the standard 640x480 configuration.
func DefaultConfig() Config {
	return Config{Device: 0, Width: 640, Height: 480}
}
