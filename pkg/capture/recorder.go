// Package capture records photographic evidence while codes are being
// entered: one stamped JPEG per sample tick plus one video per run.
// Recording is best effort. A missing camera disables it for the run but
// never stops the code entry itself.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/meterblink/meterblink/internal/log"
)

// ErrNoFrameSource reports that the camera was never opened, so the run
// produced no artifacts.
var ErrNoFrameSource = errors.New("capture: frame source not open")

// FrameReader yields frames from the shared camera.
type FrameReader interface {
	IsOpen() bool
	Read(dst *gocv.Mat) bool
}

// CodeFunc returns the code currently being entered, or "" between runs.
type CodeFunc func() string

// Config controls cadence, artifact locations and video encoding.
type Config struct {
	Interval time.Duration
	ImageDir string
	VideoDir string
	FPS      float64
	Width    int
	Height   int
}

// DefaultConfig returns the standard 3s / 10fps / 640x480 setup.
func DefaultConfig() Config {
	return Config{
		Interval: 3 * time.Second,
		ImageDir: "./images",
		VideoDir: "./videos",
		FPS:      10,
		Width:    640,
		Height:   480,
	}
}

// Recorder samples the camera on a fixed cadence for the duration of one
// run. Each sample is stamped with the current code and timestamp, saved
// as a numbered still, and appended to the run's video.
type Recorder struct {
	cfg    Config
	frames FrameReader
	code   CodeFunc

	// Overridable for tests.
	newVideo func(path string) (VideoSink, error)
	stills   StillSink
	now      func() time.Time

	images    atomic.Int64
	videoPath atomic.Value // string
}

// NewRecorder creates a Recorder for one run.
func NewRecorder(cfg Config, frames FrameReader, code CodeFunc) *Recorder {
	r := &Recorder{
		cfg:    cfg,
		frames: frames,
		code:   code,
		stills: jpegSink{},
		now:    time.Now,
	}
	r.newVideo = func(path string) (VideoSink, error) {
		return newAVISink(path, cfg.FPS, cfg.Width, cfg.Height)
	}
	return r
}

// Run samples frames until ctx is cancelled, then finalizes the video
// before returning. The first sample is taken immediately.
func (r *Recorder) Run(ctx context.Context) error {
	if r.frames == nil || !r.frames.IsOpen() {
		log.Warn("camera unavailable, run will not be recorded")
		return ErrNoFrameSource
	}

	runstamp := r.now().Format("20060102_150405")
	videoPath := filepath.Join(r.cfg.VideoDir, "session_"+runstamp+".avi")

	sink, err := r.newVideo(videoPath)
	if err != nil {
		log.Error("video recording disabled", "error", err)
		return err
	}
	r.videoPath.Store(videoPath)
	log.Info("video recording started", "path", videoPath)

	// The video must be finalized on every exit path, including a stop
	// arriving mid-tick.
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error("finalizing video", "path", videoPath, "error", err)
		} else {
			log.Info("video recording finalized", "path", videoPath)
		}
	}()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.sample(runstamp, sink)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sample takes one stamped frame and writes it to both sinks. A failed
// read is logged and skipped; it never ends the run.
func (r *Recorder) sample(runstamp string, sink VideoSink) {
	img := gocv.NewMat()
	defer img.Close()

	if !r.frames.Read(&img) {
		log.Warn("no frame from camera, skipping sample")
		return
	}

	code := r.code()
	if code == "" {
		code = "----"
	}
	label := fmt.Sprintf("PIN: %s | %s", code, r.now().Format("2006-01-02 15:04:05"))
	gocv.PutText(&img, label, image.Pt(10, 30), gocv.FontHersheySimplex, 0.7,
		color.RGBA{R: 255, G: 255, B: 255}, 2)

	n := r.images.Add(1)
	imgPath := filepath.Join(r.cfg.ImageDir, fmt.Sprintf("%s_%04d.jpg", runstamp, n))
	if err := r.stills.Write(imgPath, img); err != nil {
		log.Error("saving image", "path", imgPath, "error", err)
	} else {
		log.Debug("image saved", "path", imgPath)
	}

	if err := sink.Write(img); err != nil {
		log.Error("appending video frame", "error", err)
	}
}

// Images returns how many stills this run produced so far.
func (r *Recorder) Images() int {
	return int(r.images.Load())
}

// VideoPath returns the run's video artifact path, or "" if recording
// never started.
func (r *Recorder) VideoPath() string {
	if p, ok := r.videoPath.Load().(string); ok {
		return p
	}
	return ""
}
