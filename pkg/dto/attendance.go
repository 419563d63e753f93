package dto

import "github.com/google/uuid"

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// EmployeeAttendance is one row of GET /v1/attendance/today.
type EmployeeAttendance struct {
	ID           uuid.UUID `json:"id"`
	EmployeeCode string    `json:"employee_code"`
	Name         string    `json:"name"`
	RFIDUIDs     []string  `json:"rfid_uids"`
	CheckInTime  string    `json:"check_in_time,omitempty"`
	CheckOutTime string    `json:"check_out_time,omitempty"`
	Status       string    `json:"status"`
}

type TodayAttendanceResponse struct {
	Date      string               `json:"date"`
	Employees []EmployeeAttendance `json:"employees"`
	Present   int                  `json:"present"`
	Absent    int                  `json:"absent"`
}

type ClearTodayResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Cleared int    `json:"cleared"`
}
