package capture

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// fakeFrames serves synthetic 640x480 frames.
type fakeFrames struct {
	open bool
	fail bool
}

func (f *fakeFrames) IsOpen() bool { return f.open }

func (f *fakeFrames) Read(dst *gocv.Mat) bool {
	if f.fail {
		return false
	}
	m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	return true
}

// fakeVideo counts writes and records finalization.
type fakeVideo struct {
	mu     sync.Mutex
	writes int
	closed bool
}

func (v *fakeVideo) Write(gocv.Mat) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.writes++
	return nil
}

func (v *fakeVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *fakeVideo) stats() (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writes, v.closed
}

// fakeStills records the paths written.
type fakeStills struct {
	mu    sync.Mutex
	paths []string
}

func (s *fakeStills) Write(path string, _ gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	return nil
}

func (s *fakeStills) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func newTestRecorder(frames FrameReader) (*Recorder, *fakeVideo, *fakeStills) {
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	r := NewRecorder(cfg, frames, func() string { return "1234" })
	video := &fakeVideo{}
	stills := &fakeStills{}
	r.newVideo = func(string) (VideoSink, error) { return video, nil }
	r.stills = stills
	return r, video, stills
}

func TestRecorder_ProducesArtifactsAndFinalizes(t *testing.T) {
	r, video, stills := newTestRecorder(&fakeFrames{open: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Let a handful of ticks happen, then stop.
	time.Sleep(55 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	writes, closed := video.stats()
	if !closed {
		t.Error("video sink was not finalized on stop")
	}
	if writes == 0 {
		t.Error("expected at least one video frame written")
	}

	paths := stills.snapshot()
	if len(paths) != writes {
		t.Errorf("stills (%d) and video frames (%d) should match tick for tick", len(paths), writes)
	}
	if r.Images() != len(paths) {
		t.Errorf("Images() = %d, want %d", r.Images(), len(paths))
	}

	// Artifact names must sort by capture order within the run.
	for i, p := range paths {
		if !strings.HasSuffix(p, ".jpg") {
			t.Errorf("unexpected artifact name %q", p)
		}
		if i > 0 && filepath.Base(paths[i-1]) >= filepath.Base(p) {
			t.Errorf("artifact names not in capture order: %q >= %q", paths[i-1], p)
		}
	}
}

func TestRecorder_NoCameraExitsWithoutArtifacts(t *testing.T) {
	r, video, stills := newTestRecorder(&fakeFrames{open: false})

	err := r.Run(context.Background())
	if !errors.Is(err, ErrNoFrameSource) {
		t.Fatalf("expected ErrNoFrameSource, got %v", err)
	}

	if writes, closed := video.stats(); writes != 0 || closed {
		t.Error("no sink activity expected when camera never opened")
	}
	if len(stills.snapshot()) != 0 {
		t.Error("no stills expected when camera never opened")
	}
	if r.VideoPath() != "" {
		t.Errorf("VideoPath() = %q, want empty", r.VideoPath())
	}
}

func TestRecorder_TransientReadMissSkipsTick(t *testing.T) {
	frames := &fakeFrames{open: true, fail: true}
	r, video, stills := newTestRecorder(frames)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()
	<-done

	// All reads failed: no artifacts, but the loop kept going and the
	// video was still finalized.
	if len(stills.snapshot()) != 0 {
		t.Error("failed reads must not produce stills")
	}
	if _, closed := video.stats(); !closed {
		t.Error("video sink must be finalized even when every read missed")
	}
}
