package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-beready/pkg/estimate"
	"github.com/teslashibe/go-beready/pkg/hub"
)

// CountResponse is the body of GET /api/count. Count is the head count of
// the latest frame, not the smoothed estimate. WaitTime is in whole minutes.
type CountResponse struct {
	Count    int `json:"count"`
	WaitTime int `json:"wait_time"`
}

// EstimateResponse is the body of GET /api/estimate and of each
// /ws/estimate message.
type EstimateResponse struct {
	People      int       `json:"people"`
	WaitTime    string    `json:"wait_time"` // Go duration string, e.g. "6m0s"
	WaitSeconds float64   `json:"wait_seconds"`
	UpdatedAt   time.Time `json:"updated_at"`
	Source      string    `json:"source"`
	Revision    uint64    `json:"revision"`
}

// NewEstimateResponse converts a store snapshot to its wire form.
func NewEstimateResponse(st estimate.State) EstimateResponse {
	return EstimateResponse{
		People:      st.PeopleCount,
		WaitTime:    st.WaitTime.String(),
		WaitSeconds: st.WaitTime.Seconds(),
		UpdatedAt:   st.UpdatedAt,
		Source:      st.Source,
		Revision:    st.Revision,
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	OK       bool   `json:"ok"`
	Instance string `json:"instance"`
	Running  bool   `json:"running"`
	Frames   uint64 `json:"frames"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.status()
	return c.JSON(HealthResponse{
		OK:       true,
		Instance: s.instance,
		Running:  st.Running,
		Frames:   st.Frames,
	})
}

// handleCount serves the live head count with the published wait, the
// shape older kiosk clients poll.
func (s *Server) handleCount(c *fiber.Ctx) error {
	st := s.estimates.Read()
	return c.JSON(CountResponse{
		Count:    s.status().LatestCount,
		WaitTime: int(st.WaitTime / time.Minute),
	})
}

func (s *Server) handleEstimate(c *fiber.Ctx) error {
	return c.JSON(NewEstimateResponse(s.estimates.Read()))
}

// handleEstimateWS sends the current snapshot, then every update.
func (s *Server) handleEstimateWS(conn *websocket.Conn) {
	hello, err := hub.NewJSONMessage(NewEstimateResponse(s.estimates.Read()))
	if err != nil {
		s.logger.Warn("encode estimate", "error", err)
		conn.Close()
		return
	}
	hub.NewClient(s.updates, conn, hello).Run()
}
