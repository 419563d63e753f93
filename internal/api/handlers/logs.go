package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

const maxLogLimit = 500

type LogHandler struct {
	db storage.Store
}

func NewLogHandler(db storage.Store) *LogHandler {
	return &LogHandler{db: db}
}

// List returns scan log entries newest first.
func (h *LogHandler) List(c *gin.Context) {
	var q dto.ScanLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > maxLogLimit {
		q.Limit = maxLogLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	filter := models.ScanLogFilter{RFIDUID: q.RFIDUID, Limit: q.Limit, Offset: q.Offset}
	if q.EventType != "" {
		ev, err := models.ParseEventType(q.EventType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.EventType = &ev
	}

	entries, err := h.db.ListScanLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ScanLogResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, dto.NewScanLogResponse(&entries[i]))
	}
	c.JSON(http.StatusOK, dto.ScanLogListResponse{Logs: resp, Total: len(resp), Limit: q.Limit, Offset: q.Offset})
}
