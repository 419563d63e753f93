package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"

	"github.com/your-org/attendance/pkg/dto"
)

// Controller forwards reader commands to the ingestor.
type Controller interface {
	Send(ctx context.Context, cmd dto.ReaderCommand) (dto.ReaderReply, error)
}

type ReaderHandler struct {
	control Controller
}

func NewReaderHandler(control Controller) *ReaderHandler {
	return &ReaderHandler{control: control}
}

// send issues cmd and writes a 503 when the ingestor cannot be reached.
func send(c *gin.Context, control Controller, cmd dto.ReaderCommand) (dto.ReaderReply, bool) {
	reply, err := control.Send(c.Request.Context(), cmd)
	if err != nil {
		slog.Error("reader command failed", "action", cmd.Action, "error", err)
		msg := "ingestor unavailable"
		if errors.Is(err, nats.ErrNoResponders) {
			msg = "ingestor is not running"
		}
		c.JSON(http.StatusServiceUnavailable, dto.ActionResponse{Success: false, Message: msg})
		return reply, false
	}
	return reply, true
}

func (h *ReaderHandler) Status(c *gin.Context) {
	reply, ok := send(c, h.control, dto.ReaderCommand{Action: dto.ActionStatus})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.ReaderStatusResponse{Running: reply.Running})
}

func (h *ReaderHandler) Start(c *gin.Context) {
	h.action(c, dto.ActionStart)
}

func (h *ReaderHandler) Stop(c *gin.Context) {
	h.action(c, dto.ActionStop)
}

func (h *ReaderHandler) action(c *gin.Context, action string) {
	reply, ok := send(c, h.control, dto.ReaderCommand{Action: action})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.ActionResponse{Success: reply.Success, Message: reply.Message})
}

// Scan injects a tag read as if the reader had reported it.
func (h *ReaderHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reply, ok := send(c, h.control, dto.ReaderCommand{Action: dto.ActionScan, RFIDUID: req.RFIDUID, DeviceID: req.DeviceID})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, reply)
}
