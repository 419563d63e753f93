package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
)

// Placeholders for scans whose tag did not resolve to an employee.
const (
	UnknownEmployeeName = "Unknown"
	UnknownEmployeeCode = "N/A"
)

type ScanLogResponse struct {
	ID           uuid.UUID `json:"id"`
	RFIDUID      string    `json:"rfid_uid"`
	EmployeeName string    `json:"employee_name"`
	EmployeeCode string    `json:"employee_code"`
	ScanTime     string    `json:"scan_time"`
	EventType    string    `json:"event_type"`
	DeviceID     string    `json:"device_id"`
	Status       string    `json:"status"`
	Note         string    `json:"note,omitempty"`
}

type ScanLogListResponse struct {
	Logs   []ScanLogResponse `json:"logs"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type ScanLogQuery struct {
	EventType string `form:"event_type"`
	RFIDUID   string `form:"rfid_uid"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// NewScanLogResponse renders e for the dashboard. Unresolved employees show
// as UnknownEmployeeName / UnknownEmployeeCode.
func NewScanLogResponse(e *models.ScanLogEntry) ScanLogResponse {
	out := ScanLogResponse{
		ID:           e.ID,
		RFIDUID:      e.RFIDUID,
		EmployeeName: UnknownEmployeeName,
		EmployeeCode: UnknownEmployeeCode,
		ScanTime:     e.ScanTime.Format(time.RFC3339),
		EventType:    e.EventType.String(),
		DeviceID:     e.DeviceID,
		Status:       string(e.Status),
		Note:         e.Note,
	}
	if e.EmployeeName != nil {
		out.EmployeeName = *e.EmployeeName
	}
	if e.EmployeeCode != nil {
		out.EmployeeCode = *e.EmployeeCode
	}
	return out
}
