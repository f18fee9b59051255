package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meterblink/meterblink/pkg/camera"
)

// scriptedFrames returns canned results in order, repeating the last.
type scriptedFrames struct {
	mu      sync.Mutex
	results []result
	reads   int
}

type result struct {
	frame []byte
	err   error
}

func (s *scriptedFrames) ReadJPEG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.reads++
	r := s.results[i]
	return r.frame, r.err
}

// limitWriter fails after n writes, simulating a consumer disconnect.
type limitWriter struct {
	buf    bytes.Buffer
	writes int
	limit  int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.writes >= w.limit {
		return 0, errors.New("broken pipe")
	}
	w.writes++
	return w.buf.Write(p)
}

func newTestMJPEG(frames FrameEncoder) *MJPEG {
	m := New(frames)
	m.idleRetry = time.Millisecond
	m.missRetry = time.Millisecond
	return m
}

func TestMJPEG_FramesAreMultipartDelimited(t *testing.T) {
	frames := &scriptedFrames{results: []result{{frame: []byte("jpegdata")}}}
	m := newTestMJPEG(frames)

	// Let three full parts through, then break the pipe.
	w := &limitWriter{limit: 9}
	err := m.Serve(context.Background(), w)
	if err == nil {
		t.Fatal("expected Serve to end on write failure")
	}

	out := w.buf.String()
	if got := strings.Count(out, "--"+Boundary+"\r\n"); got != 3 {
		t.Errorf("found %d boundary markers, want 3", got)
	}
	if got := strings.Count(out, "Content-Type: image/jpeg"); got != 3 {
		t.Errorf("found %d part headers, want 3", got)
	}
	if !strings.Contains(out, "jpegdata") {
		t.Error("frame payload missing from output")
	}
}

func TestMJPEG_UnopenedCameraIdlesInsteadOfEnding(t *testing.T) {
	// Camera stays closed for a few reads, then produces a frame.
	frames := &scriptedFrames{results: []result{
		{err: camera.ErrNotOpen},
		{err: camera.ErrNotOpen},
		{err: camera.ErrNotOpen},
		{frame: []byte("late")},
	}}
	m := newTestMJPEG(frames)

	w := &limitWriter{limit: 3} // exactly one full part
	err := m.Serve(context.Background(), w)
	if err == nil {
		t.Fatal("expected Serve to end on write failure")
	}
	if !strings.Contains(w.buf.String(), "late") {
		t.Error("stream should have recovered once the camera opened")
	}
	if frames.reads < 4 {
		t.Errorf("expected at least 4 reads (3 idle retries + success), got %d", frames.reads)
	}
}

func TestMJPEG_TransientMissSkipsFrame(t *testing.T) {
	frames := &scriptedFrames{results: []result{
		{err: camera.ErrReadFailed},
		{frame: []byte("ok")},
	}}
	m := newTestMJPEG(frames)

	w := &limitWriter{limit: 3}
	if err := m.Serve(context.Background(), w); err == nil {
		t.Fatal("expected Serve to end on write failure")
	}
	if !strings.Contains(w.buf.String(), "ok") {
		t.Error("stream should continue past a single failed read")
	}
}

func TestMJPEG_ContextCancelEndsStream(t *testing.T) {
	frames := &scriptedFrames{results: []result{{err: camera.ErrNotOpen}}}
	m := newTestMJPEG(frames)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, &bytes.Buffer{}) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not end after cancel")
	}
}
