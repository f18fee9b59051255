package web

import (
	"bufio"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"

	"github.com/meterblink/meterblink/internal/log"
	"github.com/meterblink/meterblink/pkg/attempt"
	"github.com/meterblink/meterblink/pkg/stream"
)

// handleIndex renders the dashboard.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	return s.renderIndex(c, "")
}

// handleControl handles the start/stop form posts from the dashboard.
func (s *Server) handleControl(c *fiber.Ctx) error {
	var status string

	switch c.FormValue("action") {
	case "start":
		if err := s.OnStart(); err != nil {
			switch {
			case errors.Is(err, attempt.ErrAlreadyRunning):
				status = "A run is already active."
			case errors.Is(err, attempt.ErrActuatorUnavailable):
				status = "Cannot start: GPIO output unavailable."
			default:
				status = "Cannot start: " + err.Error()
			}
			log.Warn("start request rejected", "reason", status)
		} else {
			status = "Run started - recording video and images."
		}
	case "stop":
		if s.OnStop() {
			status = "Stopping run..."
		} else {
			status = "No run is active."
		}
	}

	return s.renderIndex(c, status)
}

// handlePin serves the point-in-time run status.
func (s *Server) handlePin(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleVideoFeed streams the live camera preview as multipart MJPEG.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, stream.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	ctx := s.ctx
	streamFn := s.Stream
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The stream runs until the consumer disconnects (write error)
		// or the server shuts down.
		_ = streamFn(ctx, flushWriter{w})
	}))
	return nil
}

// flushWriter flushes after every write so frames reach the browser as
// they are produced, not when the buffer happens to fill.
type flushWriter struct {
	w *bufio.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}

// handleImagesList lists captured image artifacts, sorted so they appear
// in capture order.
func (s *Server) handleImagesList(c *fiber.Ctx) error {
	entries, err := os.ReadDir(s.imageDir)
	if err != nil {
		log.Error("listing images", "dir", s.imageDir, "error", err)
		return c.JSON(fiber.Map{"images": []string{}, "error": err.Error()})
	}

	images := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(name[strings.LastIndexByte(name, '.')+1:]) {
		case "jpg", "jpeg", "png":
			images = append(images, name)
		}
	}
	sort.Strings(images)

	return c.JSON(fiber.Map{"images": images})
}

// handleRuns lists recent run history.
func (s *Server) handleRuns(c *fiber.Ctx) error {
	if s.runs == nil {
		return c.JSON(fiber.Map{"runs": []any{}})
	}
	runs, err := s.runs.Recent(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		log.Error("listing runs", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"runs": runs})
}

// handleStatusWS pushes the run status once a second so the dashboard
// does not have to poll.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	defer c.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if err := c.WriteJSON(s.Status()); err != nil {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := c.WriteJSON(s.Status()); err != nil {
				return
			}
		}
	}
}
