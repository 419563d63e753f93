package attendance

import (
	"time"

	"github.com/your-org/attendance/internal/models"
)

// Mutation is the attendance change a classification asks for.
type Mutation uint8

const (
	MutationNone Mutation = iota
	MutationCheckIn
	MutationCheckOut
)

// Input is everything the classifier looks at. Now must already be in the
// location the policy windows are expressed in.
type Input struct {
	Employee     *models.Employee         // nil when the tag is not registered
	Record       *models.AttendanceRecord // nil when nothing was recorded today
	LastAccepted time.Time                // zero when the tag has no cooldown entry
	Policy       Policy
	Now          time.Time
}

// Decision is the classifier's verdict.
type Decision struct {
	Event    models.EventType
	Mutation Mutation
	// Accepted is set once the scan got past the cooldown check; the caller
	// refreshes the tag's cooldown entry for accepted scans.
	Accepted bool
}

// Classify maps a scan and the current state to an event type. It has no
// side effects. Rules are evaluated in order and the first match wins; the
// check-in window is tested before the check-out window.
func Classify(in Input) Decision {
	if in.Employee == nil {
		return Decision{Event: models.EventUnknownEmployee}
	}

	if !in.LastAccepted.IsZero() && in.Now.Sub(in.LastAccepted) < in.Policy.Cooldown {
		return Decision{Event: models.EventRecentScan}
	}

	tod := ClockOf(in.Now)
	switch {
	case in.Policy.CheckIn.Contains(tod):
		if in.Record.CheckedIn() {
			return Decision{Event: models.EventAlreadyCheckedIn, Accepted: true}
		}
		return Decision{Event: models.EventCheckIn, Mutation: MutationCheckIn, Accepted: true}

	case in.Policy.CheckOut.Contains(tod):
		switch {
		case in.Record.CheckedOut():
			return Decision{Event: models.EventAlreadyCheckedOut, Accepted: true}
		case in.Record.CheckedIn():
			return Decision{Event: models.EventCheckOut, Mutation: MutationCheckOut, Accepted: true}
		default:
			return Decision{Event: models.EventNoCheckIn, Accepted: true}
		}

	case in.Policy.wellFormed():
		return Decision{Event: models.EventOutsideHours, Accepted: true}

	default:
		return Decision{Event: models.EventIgnored, Accepted: true}
	}
}

// apply returns the record that results from m. The input is not modified.
func apply(rec *models.AttendanceRecord, m Mutation, employee *models.Employee, date string, now time.Time) *models.AttendanceRecord {
	next := models.AttendanceRecord{EmployeeID: employee.ID, Date: date}
	if rec != nil {
		next = *rec
	}
	at := now
	switch m {
	case MutationCheckIn:
		next.CheckInTime = &at
	case MutationCheckOut:
		next.CheckOutTime = &at
	}
	return &next
}
