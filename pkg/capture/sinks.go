package capture

import (
	"fmt"

	"gocv.io/x/gocv"
)

// VideoSink receives the stamped frames of one run and must be closed to
// finalize the container.
type VideoSink interface {
	Write(img gocv.Mat) error
	Close() error
}

// StillSink persists individual stamped frames.
type StillSink interface {
	Write(path string, img gocv.Mat) error
}

// aviSink writes an XVID-encoded AVI through gocv. Tooling that reviews
// session recordings expects this container.
type aviSink struct {
	writer *gocv.VideoWriter
}

func newAVISink(path string, fps float64, width, height int) (VideoSink, error) {
	w, err := gocv.VideoWriterFile(path, "XVID", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer %s: %w", path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("open video writer %s: writer not opened", path)
	}
	return &aviSink{writer: w}, nil
}

func (s *aviSink) Write(img gocv.Mat) error {
	if err := s.writer.Write(img); err != nil {
		return fmt.Errorf("append video frame: %w", err)
	}
	return nil
}

func (s *aviSink) Close() error {
	return s.writer.Close()
}

// jpegSink persists stills with gocv's image writer.
type jpegSink struct{}

func (jpegSink) Write(path string, img gocv.Mat) error {
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("write image %s", path)
	}
	return nil
}
