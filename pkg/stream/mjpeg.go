// Package stream serves the live camera preview as a multipart MJPEG
// sequence. The stream is independent of whether a run is active and
// tolerates the camera being unavailable by idling, never by ending.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/meterblink/meterblink/pkg/camera"
)

// Boundary is the multipart boundary token, matching the Content-Type
// header the web layer sends.
const Boundary = "frame"

// ContentType is the MIME type for the preview response.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// FrameEncoder yields one JPEG-encoded frame per call.
type FrameEncoder interface {
	ReadJPEG() ([]byte, error)
}

// MJPEG produces an unbounded frame sequence per consumer connection.
type MJPEG struct {
	frames FrameEncoder

	// Retry pacing, overridable in tests.
	idleRetry time.Duration // camera not open
	missRetry time.Duration // single read failure
}

// New creates an MJPEG streamer over the shared frame source.
func New(frames FrameEncoder) *MJPEG {
	return &MJPEG{
		frames:    frames,
		idleRetry: time.Second,
		missRetry: 100 * time.Millisecond,
	}
}

// Serve writes multipart JPEG frames to w until ctx ends or the consumer
// goes away (write error). An unopened camera pauses the sequence; it
// never terminates it.
func (m *MJPEG) Serve(ctx context.Context, w io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := m.frames.ReadJPEG()
		if err != nil {
			if errors.Is(err, camera.ErrNotOpen) {
				if !sleepCtx(ctx, m.idleRetry) {
					return ctx.Err()
				}
			} else {
				if !sleepCtx(ctx, m.missRetry) {
					return ctx.Err()
				}
			}
			continue
		}

		if err := writePart(w, frame); err != nil {
			// Consumer disconnected; the sequence is restartable per
			// connection, so this is a normal exit.
			return err
		}
	}
}

// writePart frames one JPEG for multipart/x-mixed-replace delivery.
func writePart(w io.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// sleepCtx waits d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
