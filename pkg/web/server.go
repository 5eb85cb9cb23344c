// Package web serves the current queue estimate over HTTP and pushes every
// update to websocket subscribers.
package web

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/pkg/estimate"
	"github.com/teslashibe/go-beready/pkg/hub"
)

// EstimateReader returns the latest published estimate.
type EstimateReader interface {
	Read() estimate.State
}

// Status reports on the estimator for /healthz and /api/count.
type Status struct {
	Running     bool
	Frames      uint64
	LatestCount int // people in the most recent processed frame
}

// Server is the query interface
type Server struct {
	app      *fiber.App
	addr     string
	instance string
	logger   *slog.Logger

	estimates EstimateReader
	status    func() Status
	updates   *hub.Hub
}

// NewServer creates the server. status may be nil.
func NewServer(addr, instance string, estimates EstimateReader, status func() Status) *Server {
	if status == nil {
		status = func() Status { return Status{} }
	}
	s := &Server{
		addr:      addr,
		instance:  instance,
		logger:    log.With("component", "web"),
		estimates: estimates,
		status:    status,
		updates:   hub.New("estimate"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "beready",
		DisableStartupMessage: true,
	})

	// Any origin may poll the estimate.
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/count", s.handleCount)
	api.Get("/estimate", s.handleEstimate)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/estimate", websocket.New(s.handleEstimateWS))

	s.app = app
	return s
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Publish pushes st to every websocket subscriber.
func (s *Server) Publish(st estimate.State) {
	if err := s.updates.BroadcastJSON(NewEstimateResponse(st)); err != nil {
		s.logger.Warn("encode estimate", "error", err)
	}
}

// Subscribers returns the number of connected websocket clients.
func (s *Server) Subscribers() int { return s.updates.ClientCount() }

// Start serves on the configured address until Shutdown. The websocket hub
// runs until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.updates.Run(ctx)
	s.logger.Info("http server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.updates.Run(ctx)
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits up to timeout for
// in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
