package models

import (
	"time"

	"github.com/google/uuid"
)

// Employee is the directory view of a person who can scan a tag.
type Employee struct {
	ID           uuid.UUID `json:"id" db:"id"`
	EmployeeCode string    `json:"employee_code" db:"employee_code"`
	Name         string    `json:"name" db:"name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
}

// AttendanceRecord is the state of one employee on one calendar day.
// CheckOutTime is only ever set after CheckInTime.
type AttendanceRecord struct {
	EmployeeID   uuid.UUID  `json:"employee_id" db:"employee_id"`
	Date         string     `json:"date" db:"work_date"` // 2006-01-02 in the engine's location
	CheckInTime  *time.Time `json:"check_in_time,omitempty" db:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty" db:"check_out_time"`
}

// CheckedIn reports whether a check-in has been recorded.
func (r *AttendanceRecord) CheckedIn() bool {
	return r != nil && r.CheckInTime != nil
}

// CheckedOut reports whether a check-out has been recorded.
func (r *AttendanceRecord) CheckedOut() bool {
	return r != nil && r.CheckOutTime != nil
}

// DailyAttendance is one row of the dashboard's "today" overview.
type DailyAttendance struct {
	EmployeeID   uuid.UUID  `json:"id"`
	EmployeeCode string     `json:"employee_code"`
	Name         string     `json:"name"`
	RFIDUIDs     []string   `json:"rfid_uids"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
}

// Present reports whether the employee checked in on that day.
func (d DailyAttendance) Present() bool {
	return d.CheckInTime != nil
}
