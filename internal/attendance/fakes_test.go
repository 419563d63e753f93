package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
)

var errUnavailable = errors.New("unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeDirectory struct {
	mu   sync.Mutex
	tags map[string]*models.Employee
	err  error
}

func (d *fakeDirectory) LookupTag(ctx context.Context, rfidUID string) (*models.Employee, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	emp, ok := d.tags[rfidUID]
	if !ok {
		return nil, nil
	}
	cp := *emp
	return &cp, nil
}

func (d *fakeDirectory) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type recordKey struct {
	employee uuid.UUID
	date     string
}

type fakeStore struct {
	mu      sync.Mutex
	records map[recordKey]models.AttendanceRecord
	puts    int
	getErr  error
	putErr  error
	// getGate, when set, blocks GetAttendance until closed or ctx is done.
	getGate chan struct{}
	entered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[recordKey]models.AttendanceRecord)}
}

func (s *fakeStore) GetAttendance(ctx context.Context, employeeID uuid.UUID, date string) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	gate, entered := s.getGate, s.entered
	s.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[recordKey{employeeID, date}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeStore) PutAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.records[recordKey{rec.EmployeeID, rec.Date}] = *rec
	return nil
}

func (s *fakeStore) ListAttendance(ctx context.Context, date string) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AttendanceRecord
	for k, rec := range s.records {
		if k.date == date {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) ClearAttendance(ctx context.Context, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.records {
		if k.date == date {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) record(employeeID uuid.UUID, date string) (models.AttendanceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey{employeeID, date}]
	return rec, ok
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *fakeStore) set(fn func(s *fakeStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

type fakeLog struct {
	mu      sync.Mutex
	entries []models.ScanLogEntry
	err     error
}

func (l *fakeLog) AppendScanLog(ctx context.Context, entry *models.ScanLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *fakeLog) all() []models.ScanLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ScanLogEntry(nil), l.entries...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AttendanceEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, ev models.AttendanceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) all() []models.AttendanceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.AttendanceEvent(nil), p.events...)
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived map[string][]models.AttendanceRecord
	err      error
}

func (a *fakeArchiver) ArchiveDay(ctx context.Context, date string, records []models.AttendanceRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.archived == nil {
		a.archived = make(map[string][]models.AttendanceRecord)
	}
	a.archived[date] = append(a.archived[date], records...)
	return nil
}
