package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

// ErrStopped is reported on log entries for scans that arrive while the
// engine is not accepting reads.
var ErrStopped = errors.New("engine stopped")

// DateLayout is the calendar day key for attendance records.
const DateLayout = "2006-01-02"

// Directory resolves tags to active employees. A nil employee with a nil
// error means the tag is not registered.
type Directory interface {
	LookupTag(ctx context.Context, rfidUID string) (*models.Employee, error)
}

// Store holds one attendance record per employee and day. GetAttendance
// returns (nil, nil) when no record exists.
type Store interface {
	GetAttendance(ctx context.Context, employeeID uuid.UUID, date string) (*models.AttendanceRecord, error)
	PutAttendance(ctx context.Context, rec *models.AttendanceRecord) error
	ListAttendance(ctx context.Context, date string) ([]models.AttendanceRecord, error)
	ClearAttendance(ctx context.Context, date string) (int, error)
}

// LogSink appends scan log entries.
type LogSink interface {
	AppendScanLog(ctx context.Context, entry *models.ScanLogEntry) error
}

// Publisher delivers attendance notifications. Implementations must not
// block on subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev models.AttendanceEvent) error
}

// PolicySource hands out policy snapshots.
type PolicySource interface {
	Current() Policy
}

// Archiver keeps a copy of attendance records before a day is cleared.
type Archiver interface {
	ArchiveDay(ctx context.Context, date string, records []models.AttendanceRecord) error
}

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Deps are the collaborators of an Engine. Archiver is optional.
type Deps struct {
	Directory Directory
	Store     Store
	Log       LogSink
	Publisher Publisher
	Policy    PolicySource
	Clock     Clock
	Archiver  Archiver
}

// Options tune an Engine.
type Options struct {
	// Location decides the calendar day of a scan. Defaults to time.Local.
	Location *time.Location
	// ScanTimeout bounds the store work of one scan. Defaults to 3s.
	ScanTimeout time.Duration
}

// Status is the reader-facing state of the engine.
type Status struct {
	Running bool `json:"running"`
}

// Engine turns tag readings into attendance changes. Scans for the same tag
// or the same employee-day are serialized; everything else runs concurrently.
type Engine struct {
	dir      Directory
	store    Store
	logs     LogSink
	pub      Publisher
	policy   PolicySource
	clock    Clock
	archiver Archiver

	loc         *time.Location
	scanTimeout time.Duration

	running  atomic.Bool
	days     *keyedLocks
	keys     *keyedLocks
	cooldown *cooldownCache
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 3 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = ClockFunc(time.Now)
	}
	return &Engine{
		dir:         deps.Directory,
		store:       deps.Store,
		logs:        deps.Log,
		pub:         deps.Publisher,
		policy:      deps.Policy,
		clock:       deps.Clock,
		archiver:    deps.Archiver,
		loc:         opts.Location,
		scanTimeout: opts.ScanTimeout,
		days:        newKeyedLocks(dayGateWeight),
		keys:        newKeyedLocks(1),
		cooldown:    newCooldownCache(),
	}
}

// Start makes the engine accept scans. It reports whether the state changed.
func (e *Engine) Start() bool {
	changed := e.running.CompareAndSwap(false, true)
	if changed {
		observability.ReaderRunning.Set(1)
	}
	return changed
}

// Stop makes the engine reject new scans. Scans already in flight finish.
func (e *Engine) Stop() bool {
	changed := e.running.CompareAndSwap(true, false)
	if changed {
		observability.ReaderRunning.Set(0)
	}
	return changed
}

func (e *Engine) Status() Status {
	return Status{Running: e.running.Load()}
}

// Today returns the current day key in the engine's location.
func (e *Engine) Today() string {
	return e.clock.Now().In(e.loc).Format(DateLayout)
}

// HandleScan classifies one reading, applies any attendance change and
// always appends a log entry. The returned error is non-nil only when the
// log entry itself could not be written; infrastructure failures during
// classification are reported through entry.Status.
func (e *Engine) HandleScan(ctx context.Context, r models.TagReading) (*models.ScanLogEntry, error) {
	started := time.Now()
	policy := e.policy.Current()
	now := e.clock.Now().In(e.loc)

	entry := &models.ScanLogEntry{
		ID:        uuid.New(),
		RFIDUID:   r.RFIDUID,
		ScanTime:  now,
		EventType: models.EventIgnored,
		DeviceID:  r.DeviceID,
		Status:    models.ScanStatusSuccess,
	}
	if entry.DeviceID == "" {
		entry.DeviceID = policy.DeviceID
	}

	var (
		event *models.AttendanceEvent
		err   error
	)
	if !e.running.Load() {
		e.markFailed(entry, ErrStopped)
		err = e.appendLog(ctx, entry)
	} else {
		event, err = e.process(ctx, policy, now, entry)
	}

	observability.ScanDuration.Observe(time.Since(started).Seconds())
	observability.ScansTotal.WithLabelValues(entry.EventType.String(), string(entry.Status)).Inc()
	logScan(entry, policy)

	if event != nil {
		if perr := e.pub.Publish(ctx, *event); perr != nil {
			slog.Warn("publish attendance event", "rfid_uid", entry.RFIDUID, "action", event.Action, "error", perr)
		}
	}
	return entry, err
}

// process runs the classification under the scan's exclusive sections and
// writes the log entry before releasing them, so log order per tag follows
// scan order.
func (e *Engine) process(ctx context.Context, policy Policy, now time.Time, entry *models.ScanLogEntry) (*models.AttendanceEvent, error) {
	scanCtx, cancel := context.WithTimeout(ctx, e.scanTimeout)
	defer cancel()

	date := now.Format(DateLayout)

	releaseDay, err := e.days.Acquire(scanCtx, date, 1)
	if err != nil {
		e.markFailed(entry, fmt.Errorf("acquire day %s: %w", date, err))
		return nil, e.appendLog(ctx, entry)
	}
	defer releaseDay()

	releaseTag, err := e.keys.Acquire(scanCtx, "tag:"+entry.RFIDUID, 1)
	if err != nil {
		e.markFailed(entry, fmt.Errorf("acquire tag: %w", err))
		return nil, e.appendLog(ctx, entry)
	}
	defer releaseTag()

	emp, err := e.dir.LookupTag(scanCtx, entry.RFIDUID)
	if err != nil {
		// Lookup failures classify as unknown but are logged as errors.
		entry.EventType = Classify(Input{Policy: policy, Now: now}).Event
		e.markFailed(entry, fmt.Errorf("lookup tag: %w", err))
		return nil, e.appendLog(ctx, entry)
	}
	if emp == nil {
		entry.EventType = Classify(Input{Policy: policy, Now: now}).Event
		entry.Note = noteFor(entry.EventType)
		return nil, e.appendLog(ctx, entry)
	}

	entry.EmployeeID = &emp.ID
	entry.EmployeeName = &emp.Name
	entry.EmployeeCode = &emp.EmployeeCode

	releaseEmp, err := e.keys.Acquire(scanCtx, "emp:"+emp.ID.String()+":"+date, 1)
	if err != nil {
		e.markFailed(entry, fmt.Errorf("acquire employee: %w", err))
		return nil, e.appendLog(ctx, entry)
	}
	defer releaseEmp()

	rec, err := e.store.GetAttendance(scanCtx, emp.ID, date)
	if err != nil {
		e.markFailed(entry, fmt.Errorf("get attendance: %w", err))
		return nil, e.appendLog(ctx, entry)
	}

	d := Classify(Input{
		Employee:     emp,
		Record:       rec,
		LastAccepted: e.cooldown.Get(entry.RFIDUID),
		Policy:       policy,
		Now:          now,
	})
	entry.EventType = d.Event
	entry.Note = noteFor(d.Event)

	if d.Mutation != MutationNone {
		next := apply(rec, d.Mutation, emp, date, now)
		if err := e.store.PutAttendance(scanCtx, next); err != nil {
			e.markFailed(entry, fmt.Errorf("put attendance: %w", err))
			return nil, e.appendLog(ctx, entry)
		}
		observability.AttendanceMutations.WithLabelValues(d.Event.String()).Inc()
	}
	if d.Accepted {
		e.cooldown.Set(entry.RFIDUID, now)
	}

	var event *models.AttendanceEvent
	if d.Event.Mutates() {
		event = notification(emp, d.Event, entry.DeviceID, now)
	}
	return event, e.appendLog(ctx, entry)
}

// appendLog writes entry even if the scan's own deadline has passed.
func (e *Engine) appendLog(ctx context.Context, entry *models.ScanLogEntry) error {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.scanTimeout)
	defer cancel()
	if err := e.logs.AppendScanLog(logCtx, entry); err != nil {
		slog.Error("append scan log", "rfid_uid", entry.RFIDUID, "event_type", entry.EventType.String(), "error", err)
		return fmt.Errorf("append scan log: %w", err)
	}
	return nil
}

func (e *Engine) markFailed(entry *models.ScanLogEntry, err error) {
	entry.Status = models.ScanStatusError
	entry.Note = err.Error()
}

// ClearDay resets all attendance records of date. It waits for in-flight
// scans of that day and blocks new ones until done. When an Archiver is
// configured the records are archived first and a failed archive aborts
// the clear.
func (e *Engine) ClearDay(ctx context.Context, date string) (int, error) {
	release, err := e.days.Acquire(ctx, date, dayGateWeight)
	if err != nil {
		return 0, fmt.Errorf("acquire day %s: %w", date, err)
	}
	defer release()

	if e.archiver != nil {
		records, err := e.store.ListAttendance(ctx, date)
		if err != nil {
			return 0, fmt.Errorf("list attendance: %w", err)
		}
		if len(records) > 0 {
			if err := e.archiver.ArchiveDay(ctx, date, records); err != nil {
				return 0, fmt.Errorf("archive day %s: %w", date, err)
			}
		}
	}

	n, err := e.store.ClearAttendance(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("clear attendance: %w", err)
	}
	e.cooldown.Reset()

	slog.Info("cleared attendance", "date", date, "records", n)
	return n, nil
}

func notification(emp *models.Employee, ev models.EventType, deviceID string, now time.Time) *models.AttendanceEvent {
	out := &models.AttendanceEvent{
		Type:         models.AttendanceEventType,
		EmployeeID:   emp.ID,
		EmployeeCode: emp.EmployeeCode,
		Name:         emp.Name,
		Time:         now.Format("15:04:05"),
		DeviceID:     deviceID,
		OccurredAt:   now,
	}
	switch ev {
	case models.EventCheckIn:
		out.Action = "checked in"
		out.Message = "Check-in recorded successfully"
	case models.EventCheckOut:
		out.Action = "checked out"
		out.Message = "Check-out recorded successfully"
	}
	return out
}

func noteFor(ev models.EventType) string {
	switch ev {
	case models.EventCheckIn:
		return "Successful check-in"
	case models.EventCheckOut:
		return "Successful check-out"
	case models.EventUnknownEmployee:
		return "Unknown RFID UID"
	case models.EventRecentScan:
		return "Recent scan detected"
	case models.EventAlreadyCheckedIn:
		return "Already checked in today"
	case models.EventAlreadyCheckedOut:
		return "Already checked out today"
	case models.EventNoCheckIn:
		return "No check-in found for today"
	case models.EventOutsideHours:
		return "Scan outside valid hours"
	case models.EventIgnored:
		return "Policy misconfigured"
	default:
		return ""
	}
}

func logScan(entry *models.ScanLogEntry, policy Policy) {
	attrs := []any{
		"rfid_uid", entry.RFIDUID,
		"event_type", entry.EventType.String(),
		"status", string(entry.Status),
		"device_id", entry.DeviceID,
		"policy_version", policy.Version,
	}
	if entry.EmployeeCode != nil {
		attrs = append(attrs, "employee_code", *entry.EmployeeCode)
	}
	if entry.Status == models.ScanStatusError {
		slog.Warn("scan failed", append(attrs, "note", entry.Note)...)
		return
	}
	slog.Info("scan handled", attrs...)
}
