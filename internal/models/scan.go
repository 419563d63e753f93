package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TagReading is a single raw read produced by the reader device.
type TagReading struct {
	RFIDUID    string    `json:"rfid_uid"`
	DeviceID   string    `json:"device_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// EventType is the business classification of a scan.
type EventType uint8

const (
	EventIgnored EventType = iota
	EventCheckIn
	EventCheckOut
	EventUnknownEmployee
	EventOutsideHours
	EventRecentScan
	EventAlreadyCheckedIn
	EventAlreadyCheckedOut
	EventNoCheckIn

	eventTypeCount
)

var eventTypeNames = [eventTypeCount]string{
	EventIgnored:           "ignored",
	EventCheckIn:           "checkin",
	EventCheckOut:          "checkout",
	EventUnknownEmployee:   "unknown_employee",
	EventOutsideHours:      "outside_hours",
	EventRecentScan:        "recent_scan",
	EventAlreadyCheckedIn:  "already_checked_in",
	EventAlreadyCheckedOut: "already_checked_out",
	EventNoCheckIn:         "no_checkin",
}

func (t EventType) String() string {
	if t < eventTypeCount {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("EventType(%d)", uint8(t))
}

// Mutates reports whether the classification changes attendance state.
func (t EventType) Mutates() bool {
	return t == EventCheckIn || t == EventCheckOut
}

// ParseEventType maps a stored name back to its EventType.
func ParseEventType(s string) (EventType, error) {
	for i, name := range eventTypeNames {
		if name == s {
			return EventType(i), nil
		}
	}
	return EventIgnored, fmt.Errorf("unknown event type %q", s)
}

func (t EventType) MarshalText() ([]byte, error) {
	if t >= eventTypeCount {
		return nil, fmt.Errorf("invalid event type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(b []byte) error {
	parsed, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ScanStatus is the technical health of a scan, orthogonal to EventType.
type ScanStatus string

const (
	ScanStatusSuccess ScanStatus = "success"
	ScanStatusError   ScanStatus = "error"
)

// ScanLogEntry is the append-only audit record written for every scan.
type ScanLogEntry struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	RFIDUID      string     `json:"rfid_uid" db:"rfid_uid"`
	EmployeeID   *uuid.UUID `json:"employee_id,omitempty" db:"employee_id"`
	EmployeeName *string    `json:"employee_name" db:"employee_name"`
	EmployeeCode *string    `json:"employee_code" db:"employee_code"`
	ScanTime     time.Time  `json:"scan_time" db:"scan_time"`
	EventType    EventType  `json:"event_type" db:"event_type"`
	DeviceID     string     `json:"device_id" db:"device_id"`
	Status       ScanStatus `json:"status" db:"status"`
	Note         string     `json:"note,omitempty" db:"note"`
}

// ScanLogFilter narrows a scan log listing.
type ScanLogFilter struct {
	EventType *EventType
	RFIDUID   string
	Limit     int
	Offset    int
}

// AttendanceEvent is the real-time notification published on check-in/out.
type AttendanceEvent struct {
	Type         string    `json:"type"` // employee_status_update
	EmployeeID   uuid.UUID `json:"employee_id"`
	EmployeeCode string    `json:"employee_code"`
	Name         string    `json:"name"`
	Action       string    `json:"action"` // checked in, checked out
	Time         string    `json:"time"`   // 15:04:05
	Message      string    `json:"message"`
	DeviceID     string    `json:"device_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

const AttendanceEventType = "employee_status_update"
