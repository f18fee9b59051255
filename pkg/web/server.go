// Package web provides the browser dashboard and HTTP control surface.
// It is a thin layer: every operation is delegated through callbacks so
// request handling never touches pulse timing directly.
package web

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/meterblink/meterblink/internal/history"
	"github.com/meterblink/meterblink/internal/log"
	"github.com/meterblink/meterblink/pkg/attempt"
)

// RunLister serves past run records. Optional; nil disables /runs.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

// Server is the web dashboard and control surface.
type Server struct {
	app      *fiber.App
	addr     string
	imageDir string
	runs     RunLister

	ctx    context.Context
	cancel context.CancelFunc

	// Control callbacks, wired by the daemon at startup.
	OnStart func() error
	OnStop  func() bool
	Status  func() attempt.Status

	// Stream writes the live MJPEG preview until ctx ends or the
	// consumer disconnects.
	Stream func(ctx context.Context, w io.Writer) error
}

// NewServer creates the server with all routes registered.
func NewServer(addr, imageDir string, runs RunLister) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:     addr,
		imageDir: imageDir,
		runs:     runs,
		ctx:      ctx,
		cancel:   cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "meterblink",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/", s.handleIndex)
	app.Post("/", s.handleControl)
	app.Get("/pin", s.handlePin)
	app.Get("/video_feed", s.handleVideoFeed)
	app.Get("/images_list", s.handleImagesList)
	app.Get("/runs", s.handleRuns)
	app.Static("/images", imageDir)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start serves HTTP. Blocks until Shutdown.
func (s *Server) Start() error {
	log.Info("web interface listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync serves HTTP on a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server stopped", "error", err)
		}
	}()
}

// Shutdown ends live streams and stops the server.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
