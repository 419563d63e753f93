package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
)

type attendanceKey struct {
	employeeID uuid.UUID
	date       string
}

type memoryTag struct {
	employeeID uuid.UUID
	active     bool
}

// MemoryStore is a process-local Store for development and tests. Nothing
// survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	employees  map[uuid.UUID]models.Employee
	tags       map[string]memoryTag
	attendance map[attendanceKey]models.AttendanceRecord
	logs       []models.ScanLogEntry
	config     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees:  make(map[uuid.UUID]models.Employee),
		tags:       make(map[string]memoryTag),
		attendance: make(map[attendanceKey]models.AttendanceRecord),
		config:     make(map[string]string),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) LookupTag(ctx context.Context, rfidUID string) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[rfidUID]
	if !ok || !t.active {
		return nil, nil
	}
	e, ok := s.employees[t.employeeID]
	if !ok || !e.IsActive {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) EmployeeByCode(ctx context.Context, code string) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.EmployeeCode == code {
			return &e, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateEmployee(ctx context.Context, code, name string) (*models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.employees {
		if e.EmployeeCode == code {
			return nil, fmt.Errorf("create employee: code %q already exists", code)
		}
	}
	e := models.Employee{ID: uuid.New(), EmployeeCode: code, Name: name, IsActive: true}
	s.employees[e.ID] = e
	return &e, nil
}

func (s *MemoryStore) SetEmployeeActive(ctx context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	e.IsActive = active
	s.employees[id] = e
	return nil
}

func (s *MemoryStore) AssignTag(ctx context.Context, employeeID uuid.UUID, rfidUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.employees[employeeID]; !ok {
		return fmt.Errorf("employee %s: %w", employeeID, ErrNotFound)
	}
	s.tags[rfidUID] = memoryTag{employeeID: employeeID, active: true}
	return nil
}

func (s *MemoryStore) GetAttendance(ctx context.Context, employeeID uuid.UUID, date string) (*models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.attendance[attendanceKey{employeeID, date}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemoryStore) PutAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance[attendanceKey{rec.EmployeeID, rec.Date}] = *rec
	return nil
}

func (s *MemoryStore) ListAttendance(ctx context.Context, date string) ([]models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AttendanceRecord
	for k, r := range s.attendance {
		if k.date == date {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EmployeeID.String() < out[j].EmployeeID.String()
	})
	return out, nil
}

func (s *MemoryStore) ClearAttendance(ctx context.Context, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.attendance {
		if k.date == date {
			delete(s.attendance, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) TodayOverview(ctx context.Context, date string) ([]models.DailyAttendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tagsOf := make(map[uuid.UUID][]string)
	for uid, t := range s.tags {
		if t.active {
			tagsOf[t.employeeID] = append(tagsOf[t.employeeID], uid)
		}
	}

	var out []models.DailyAttendance
	for _, e := range s.employees {
		if !e.IsActive {
			continue
		}
		d := models.DailyAttendance{
			EmployeeID:   e.ID,
			EmployeeCode: e.EmployeeCode,
			Name:         e.Name,
			RFIDUIDs:     append([]string{}, tagsOf[e.ID]...),
		}
		sort.Strings(d.RFIDUIDs)
		if r, ok := s.attendance[attendanceKey{e.ID, date}]; ok {
			d.CheckInTime = r.CheckInTime
			d.CheckOutTime = r.CheckOutTime
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) AppendScanLog(ctx context.Context, entry *models.ScanLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *entry
	e.EmployeeName = copyString(entry.EmployeeName)
	e.EmployeeCode = copyString(entry.EmployeeCode)
	s.logs = append(s.logs, e)
	return nil
}

// ListScanLogs returns entries newest first. Entries with equal scan times
// keep reverse append order.
func (s *MemoryStore) ListScanLogs(ctx context.Context, f models.ScanLogFilter) ([]models.ScanLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.ScanLogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if f.EventType != nil && e.EventType != *f.EventType {
			continue
		}
		if f.RFIDUID != "" && e.RFIDUID != f.RFIDUID {
			continue
		}
		e.EmployeeName = copyString(e.EmployeeName)
		e.EmployeeCode = copyString(e.EmployeeCode)
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ScanTime.After(matched[j].ScanTime)
	})

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if limit := logLimit(f.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) ConfigValues(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.config))
	for k, v := range s.config {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SetConfigValues(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.config[k] = v
	}
	return nil
}

func (s *MemoryStore) SeedConfig(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		if _, ok := s.config[k]; !ok {
			s.config[k] = v
		}
	}
	return nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
