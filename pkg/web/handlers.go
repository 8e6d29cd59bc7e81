package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"

	"github.com/teslashibe/go-skycam/pkg/camera"
	"github.com/teslashibe/go-skycam/pkg/control"
	"github.com/teslashibe/go-skycam/pkg/hub"
	"github.com/teslashibe/go-skycam/pkg/metrics"
	"github.com/teslashibe/go-skycam/pkg/stream"
)

// Response messages shown by the dashboard.
const (
	msgUpdated       = "Camera settings updated successfully."
	msgUpdateFailed  = "An error occurred while updating settings. The stream will continue with previous settings."
	msgPresetFailed  = "An error occurred while applying the preset."
	msgPresetMissing = "Missing preset name."
	msgReset         = "Camera reset to default settings."
	msgResetFailed   = "An error occurred while resetting camera settings."
	msgReadFailed    = "Failed to get camera settings"
	msgBadBody       = "Request body must be a JSON object."
	msgAuditDisabled = "Audit log is disabled."
	msgAuditFailed   = "Failed to read audit log"
)

// Response is the body of every control-plane reply.
type Response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

func success(msg string) Response {
	return Response{Status: "success", Message: msg}
}

func failure(msg string) Response {
	return Response{Status: "error", Message: msg}
}

// PresetInfo describes one registered preset.
type PresetInfo struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings"`
}

// handleVideoFeed streams MJPEG until the client goes away or the server
// shuts down. Each connection ranges over its own frame sequence.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, stream.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")

	remote := c.IP()
	ctx, cancel := context.WithCancel(s.base)
	s.wg.Add(1)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer s.wg.Done()
		defer cancel()

		metrics.ActiveStreams.Inc()
		defer metrics.ActiveStreams.Dec()
		s.logger.Info("stream opened", "remote", remote)

		sent := 0
		for frame := range s.producer.Frames(ctx) {
			if err := stream.WritePart(w, frame); err != nil {
				break
			}
			// A failed flush is how a disconnected client shows up.
			if err := w.Flush(); err != nil {
				break
			}
			sent++
		}
		s.logger.Info("stream closed", "remote", remote, "frames", sent)
	}))
	return nil
}

// handleUpdateCamera validates and applies a partial settings change
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var req map[string]any
	if err := json.Unmarshal(c.Body(), &req); err != nil || req == nil {
		return c.Status(fiber.StatusBadRequest).JSON(Response{Status: "error", Messages: []string{msgBadBody}})
	}

	_, err := s.ctrl.Update(c.UserContext(), req)
	if err == nil {
		return c.JSON(success(msgUpdated))
	}

	var verr *camera.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(Response{Status: "error", Messages: verr.Reasons})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(failure(msgUpdateFailed))
}

// ApplyPresetRequest is the request body for /apply_preset
type ApplyPresetRequest struct {
	Preset *string `json:"preset"`
}

// handleApplyPreset applies a named preset
func (s *Server) handleApplyPreset(c *fiber.Ctx) error {
	var req ApplyPresetRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Preset == nil {
		return c.Status(fiber.StatusBadRequest).JSON(failure(msgPresetMissing))
	}
	name := *req.Preset

	_, err := s.ctrl.ApplyPreset(c.UserContext(), name)
	switch {
	case err == nil:
		return c.JSON(success("Applied " + name + " preset successfully."))
	case errors.Is(err, control.ErrUnknownPreset):
		return c.Status(fiber.StatusBadRequest).JSON(failure("Unknown preset: " + name))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(failure(msgPresetFailed))
	}
}

// handleResetCamera restores the default settings
func (s *Server) handleResetCamera(c *fiber.Ctx) error {
	if _, err := s.ctrl.Reset(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(failure(msgResetFailed))
	}
	return c.JSON(success(msgReset))
}

// handleGetCameraSettings returns the current settings in wire form
func (s *Server) handleGetCameraSettings(c *fiber.Ctx) error {
	set, err := s.ctrl.ReadCurrent(c.UserContext())
	if err != nil {
		s.logger.Error("failed to read camera settings", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(failure(msgReadFailed))
	}
	return c.JSON(camera.ToWire(set))
}

// handleStreamStatus reports whether frames are flowing
func (s *Server) handleStreamStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": s.live.Status(s.cfg.LivenessThreshold)})
}

// handleListPresets returns every registered preset
func (s *Server) handleListPresets(c *fiber.Ctx) error {
	reg := s.ctrl.Presets()
	out := make([]PresetInfo, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		set, _ := reg.Get(name)
		out = append(out, PresetInfo{Name: name, Settings: camera.ToWire(set)})
	}
	return c.JSON(fiber.Map{"presets": out})
}

// handleListAudit returns the latest control transactions
func (s *Server) handleListAudit(c *fiber.Ctx) error {
	if s.audit == nil {
		return c.Status(fiber.StatusNotFound).JSON(failure(msgAuditDisabled))
	}
	entries, err := s.audit.List(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(failure(msgAuditFailed))
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// handleStatusWS pushes stream status and settings events
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.hub, c)
	if client == nil {
		return
	}
	client.Run()
}
