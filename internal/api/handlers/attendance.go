package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

type AttendanceHandler struct {
	db      storage.Store
	control Controller
	loc     *time.Location
	Now     func() time.Time
}

// NewAttendanceHandler serves the dashboard overview. Days and times are
// rendered in loc, the engine's timezone.
func NewAttendanceHandler(db storage.Store, control Controller, loc *time.Location) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{db: db, control: control, loc: loc, Now: time.Now}
}

func (h *AttendanceHandler) Today(c *gin.Context) {
	date := h.Now().In(h.loc).Format(attendance.DateLayout)
	if q := c.Query("date"); q != "" {
		if _, err := time.Parse(attendance.DateLayout, q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = q
	}

	rows, err := h.db.TodayOverview(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.TodayAttendanceResponse{Date: date, Employees: make([]dto.EmployeeAttendance, 0, len(rows))}
	for _, r := range rows {
		row := attendanceToResponse(r, h.loc)
		if row.Status == dto.StatusPresent {
			resp.Present++
		} else {
			resp.Absent++
		}
		resp.Employees = append(resp.Employees, row)
	}
	c.JSON(http.StatusOK, resp)
}

// ClearToday resets today's attendance through the ingestor so the reset is
// serialized with in-flight scans.
func (h *AttendanceHandler) ClearToday(c *gin.Context) {
	reply, ok := send(c, h.control, dto.ReaderCommand{Action: dto.ActionClearToday})
	if !ok {
		return
	}
	status := http.StatusOK
	if !reply.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, dto.ClearTodayResponse{Success: reply.Success, Message: reply.Message, Cleared: reply.Cleared})
}

func attendanceToResponse(d models.DailyAttendance, loc *time.Location) dto.EmployeeAttendance {
	out := dto.EmployeeAttendance{
		ID:           d.EmployeeID,
		EmployeeCode: d.EmployeeCode,
		Name:         d.Name,
		RFIDUIDs:     d.RFIDUIDs,
		Status:       dto.StatusAbsent,
	}
	if out.RFIDUIDs == nil {
		out.RFIDUIDs = []string{}
	}
	if d.CheckInTime != nil {
		out.CheckInTime = d.CheckInTime.In(loc).Format("15:04:05")
		out.Status = dto.StatusPresent
	}
	if d.CheckOutTime != nil {
		out.CheckOutTime = d.CheckOutTime.In(loc).Format("15:04:05")
	}
	return out
}
