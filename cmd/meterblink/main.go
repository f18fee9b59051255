package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meterblink/meterblink/internal/config"
	"github.com/meterblink/meterblink/internal/history"
	"github.com/meterblink/meterblink/internal/log"
	"github.com/meterblink/meterblink/internal/mqttpub"
	"github.com/meterblink/meterblink/pkg/attempt"
	"github.com/meterblink/meterblink/pkg/camera"
	"github.com/meterblink/meterblink/pkg/capture"
	"github.com/meterblink/meterblink/pkg/pulse"
	"github.com/meterblink/meterblink/pkg/stream"
	"github.com/meterblink/meterblink/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	port := flag.Int("port", 0, "Override web UI port")
	line := flag.String("line", "", "Override GPIO output line, e.g. GPIO21")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Web.Port = *port
	}
	if *line != "" {
		cfg.GPIO.Line = *line
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	log.Init(log.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	log.Info("meterblink starting",
		"line", cfg.GPIO.Line,
		"camera", cfg.Camera.Device,
		"addr", cfg.ListenAddr())

	for _, dir := range []string{cfg.Capture.ImageDir, cfg.Capture.VideoDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("creating artifact directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// The GPIO line may be absent on dev machines. The daemon still comes
	// up so the dashboard and preview work; starts are rejected until the
	// line is available.
	var (
		gpioLine pulse.Line
		sender   attempt.CodeSender
		output   attempt.Output
	)
	if l, err := pulse.OpenLine(cfg.GPIO.Line); err != nil {
		log.Warn("GPIO line unavailable, runs disabled", "line", cfg.GPIO.Line, "error", err)
	} else {
		gpioLine = l
		sender = pulse.NewSender(pulse.NewEmitter(l))
		output = l
	}

	cam := camera.NewSource(camera.Config{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	})
	if err := cam.Open(); err != nil {
		log.Warn("camera unavailable at startup", "device", cfg.Camera.Device, "error", err)
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			log.Error("opening history store", "path", cfg.History.Path, "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	var publisher *mqttpub.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = mqttpub.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT broker unreachable, continuing without it", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			defer publisher.Close()
		}
	}

	captureCfg := capture.Config{
		Interval: cfg.CaptureInterval(),
		ImageDir: cfg.Capture.ImageDir,
		VideoDir: cfg.Capture.VideoDir,
		FPS:      cfg.Capture.VideoFPS,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
	}
	newRecorder := func(current func() string) attempt.Recorder {
		return capture.NewRecorder(captureCfg, cam, capture.CodeFunc(current))
	}

	var notifiers []attempt.Notifier
	if store != nil {
		notifiers = append(notifiers, store)
	}
	if publisher != nil {
		notifiers = append(notifiers, publisher)
	}

	orch := attempt.New(attempt.Config{
		FirstCode:          cfg.Attempt.FirstCode,
		LastCode:           cfg.Attempt.LastCode,
		InterCodePause:     cfg.InterCodePause(),
		CaptureJoinTimeout: 5 * time.Second,
	}, sender, output, cam, newRecorder, notifiers...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mjpeg := stream.New(cam)

	srv := web.NewServer(cfg.ListenAddr(), cfg.Capture.ImageDir, runLister(store))
	srv.OnStart = func() error { return orch.Start(ctx) }
	srv.OnStop = orch.Stop
	srv.Status = orch.Status
	srv.Stream = mjpeg.Serve
	srv.StartAsync()

	<-ctx.Done()
	log.Info("shutting down")

	// Teardown order matters: stop accepting requests, wind down any
	// active run (forcing the line low and finalizing the video), then
	// release the hardware.
	if err := srv.Shutdown(); err != nil {
		log.Warn("web shutdown", "error", err)
	}
	orch.Close(10 * time.Second)
	if err := cam.Release(); err != nil {
		log.Warn("releasing camera", "error", err)
	}
	if gpioLine != nil {
		if err := gpioLine.Close(); err != nil {
			log.Warn("closing GPIO line", "error", err)
		}
	}
	log.Info("meterblink stopped")
}

// runLister keeps the web package's RunLister nil when history is
// disabled; a typed nil *Store would defeat its nil check.
func runLister(store *history.Store) web.RunLister {
	if store == nil {
		return nil
	}
	return store
}
