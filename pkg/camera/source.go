package camera

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrNotOpen reports that the device has not been opened (or failed
	// to open). Consumers degrade rather than abort: the recorder exits
	// without artifacts, the preview stream idles and retries.
	ErrNotOpen = errors.New("camera: device not open")

	// ErrReadFailed reports a single failed frame read. Transient;
	// consumers skip the frame and continue.
	ErrReadFailed = errors.New("camera: frame read failed")
)

// Source wraps a gocv VideoCapture with single-reader serialization.
// Open is idempotent and safe to retry after a failure.
type Source struct {
	cfg Config

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

// NewSource creates an unopened Source.
func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg}
}

// Open opens the capture device and applies the configured frame size.
// Calling Open on an already-open Source is a no-op.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap != nil {
		return nil
	}

	cap, err := gocv.OpenVideoCapture(s.cfg.Device)
	if err != nil {
		return fmt.Errorf("%w: device %d: %v", ErrNotOpen, s.cfg.Device, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("%w: device %d", ErrNotOpen, s.cfg.Device)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))

	s.cap = cap
	return nil
}

// IsOpen reports whether the device is currently open.
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap != nil
}

// Read grabs one frame into dst. Returns false if the device is not open
// or the read failed.
func (s *Source) Read(dst *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return false
	}
	return s.cap.Read(dst) && !dst.Empty()
}

// ReadJPEG grabs one frame and returns it JPEG-encoded, for the live
// preview stream.
func (s *Source) ReadJPEG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil, ErrNotOpen
	}

	img := gocv.NewMat()
	defer img.Close()

	if !s.cap.Read(&img) || img.Empty() {
		return nil, ErrReadFailed
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrReadFailed, err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

// Release closes the capture device. Safe to call when not open.
func (s *Source) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.cap = nil
	if err != nil {
		return fmt.Errorf("camera: release: %w", err)
	}
	return nil
}
