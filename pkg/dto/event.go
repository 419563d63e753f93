package dto

import "github.com/your-org/attendance/internal/models"

// WSEvent is a WebSocket message for real-time dashboard updates.
type WSEvent struct {
	Type         string `json:"type"` // employee_status_update
	Name         string `json:"name"`
	EmployeeCode string `json:"employee_code"`
	Action       string `json:"action"` // checked in, checked out
	Time         string `json:"time"`   // HH:MM:SS
	Message      string `json:"message"`
	DeviceID     string `json:"device_id"`
}

func NewWSEvent(ev models.AttendanceEvent) WSEvent {
	return WSEvent{
		Type:         ev.Type,
		Name:         ev.Name,
		EmployeeCode: ev.EmployeeCode,
		Action:       ev.Action,
		Time:         ev.Time,
		Message:      ev.Message,
		DeviceID:     ev.DeviceID,
	}
}
