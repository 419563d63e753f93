package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/your-org/attendance/internal/models"
)

// SQLiteStore keeps everything in a single database file. It serves
// single-box deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
//
// The connection is configured with:
//   - WAL mode so dashboard reads do not block scans
//   - a 5-second busy timeout
//   - foreign key enforcement
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	ddl, err := schema("sqlite.sql")
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", ns.String, err)
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// --- Directory ---

func (s *SQLiteStore) LookupTag(ctx context.Context, rfidUID string) (*models.Employee, error) {
	var (
		e  models.Employee
		id string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT e.id, e.employee_code, e.name, e.is_active
		   FROM rfid_tags t JOIN employees e ON e.id = t.employee_id
		  WHERE t.rfid_uid = ? AND t.is_active = 1 AND e.is_active = 1`, rfidUID,
	).Scan(&id, &e.EmployeeCode, &e.Name, &e.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup tag: %w", err)
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse employee id: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) EmployeeByCode(ctx context.Context, code string) (*models.Employee, error) {
	var (
		e  models.Employee
		id string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, employee_code, name, is_active FROM employees WHERE employee_code = ?`, code,
	).Scan(&id, &e.EmployeeCode, &e.Name, &e.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee %s: %w", code, err)
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse employee id: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) CreateEmployee(ctx context.Context, code, name string) (*models.Employee, error) {
	e := &models.Employee{ID: uuid.New(), EmployeeCode: code, Name: name, IsActive: true}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employees (id, employee_code, name, is_active, created_at) VALUES (?, ?, ?, 1, ?)`,
		e.ID.String(), code, name, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) SetEmployeeActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE employees SET is_active = ? WHERE id = ?`, active, id.String())
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) AssignTag(ctx context.Context, employeeID uuid.UUID, rfidUID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rfid_tags (rfid_uid, employee_id, is_active, assigned_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT (rfid_uid) DO UPDATE SET employee_id = excluded.employee_id, is_active = 1, assigned_at = excluded.assigned_at`,
		rfidUID, employeeID.String(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("assign tag: %w", err)
	}
	return nil
}

// --- Attendance ---

func scanRecord(sc interface{ Scan(...any) error }) (*models.AttendanceRecord, error) {
	var (
		r       models.AttendanceRecord
		id      string
		in, out sql.NullString
	)
	if err := sc.Scan(&id, &r.Date, &in, &out); err != nil {
		return nil, err
	}
	var err error
	if r.EmployeeID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse employee id: %w", err)
	}
	if r.CheckInTime, err = parseTimePtr(in); err != nil {
		return nil, err
	}
	if r.CheckOutTime, err = parseTimePtr(out); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) GetAttendance(ctx context.Context, employeeID uuid.UUID, date string) (*models.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT employee_id, work_date, check_in_time, check_out_time
		   FROM attendance_records WHERE employee_id = ? AND work_date = ?`,
		employeeID.String(), date)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) PutAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_records (employee_id, work_date, check_in_time, check_out_time, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (employee_id, work_date) DO UPDATE
		   SET check_in_time = excluded.check_in_time,
		       check_out_time = excluded.check_out_time,
		       updated_at = excluded.updated_at`,
		rec.EmployeeID.String(), rec.Date, formatTimePtr(rec.CheckInTime), formatTimePtr(rec.CheckOutTime),
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("put attendance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAttendance(ctx context.Context, date string) ([]models.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT employee_id, work_date, check_in_time, check_out_time
		   FROM attendance_records WHERE work_date = ? ORDER BY check_in_time`, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) ClearAttendance(ctx context.Context, date string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE work_date = ?`, date)
	if err != nil {
		return 0, fmt.Errorf("clear attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear attendance: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) TodayOverview(ctx context.Context, date string) ([]models.DailyAttendance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.employee_code, e.name,
		        COALESCE((SELECT group_concat(t.rfid_uid, ',') FROM rfid_tags t
		                   WHERE t.employee_id = e.id AND t.is_active = 1), ''),
		        a.check_in_time, a.check_out_time
		   FROM employees e
		   LEFT JOIN attendance_records a ON a.employee_id = e.id AND a.work_date = ?
		  WHERE e.is_active = 1
		  ORDER BY e.name`, date)
	if err != nil {
		return nil, fmt.Errorf("today overview: %w", err)
	}
	defer rows.Close()

	var out []models.DailyAttendance
	for rows.Next() {
		var (
			d       models.DailyAttendance
			id      string
			tags    string
			in, off sql.NullString
		)
		if err := rows.Scan(&id, &d.EmployeeCode, &d.Name, &tags, &in, &off); err != nil {
			return nil, fmt.Errorf("scan overview: %w", err)
		}
		if d.EmployeeID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse employee id: %w", err)
		}
		d.RFIDUIDs = []string{}
		if tags != "" {
			d.RFIDUIDs = strings.Split(tags, ",")
			sort.Strings(d.RFIDUIDs)
		}
		if d.CheckInTime, err = parseTimePtr(in); err != nil {
			return nil, err
		}
		if d.CheckOutTime, err = parseTimePtr(off); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Scan log ---

func (s *SQLiteStore) AppendScanLog(ctx context.Context, entry *models.ScanLogEntry) error {
	var employeeID sql.NullString
	if entry.EmployeeID != nil {
		employeeID = sql.NullString{String: entry.EmployeeID.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_logs (id, rfid_uid, employee_id, employee_name, employee_code,
		                        scan_time, event_type, device_id, status, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.RFIDUID, employeeID, nullString(entry.EmployeeName), nullString(entry.EmployeeCode),
		formatTime(entry.ScanTime),
		entry.EventType.String(), entry.DeviceID, string(entry.Status), entry.Note)
	if err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListScanLogs(ctx context.Context, f models.ScanLogFilter) ([]models.ScanLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EventType != nil {
		where = append(where, "l.event_type = ?")
		args = append(args, f.EventType.String())
	}
	if f.RFIDUID != "" {
		where = append(where, "l.rfid_uid = ?")
		args = append(args, f.RFIDUID)
	}

	query := `SELECT l.id, l.rfid_uid, l.employee_id, l.employee_name, l.employee_code,
	                 l.scan_time, l.event_type, l.device_id, l.status, l.note
	            FROM scan_logs l`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY l.scan_time DESC, l.seq DESC LIMIT ? OFFSET ?"
	args = append(args, logLimit(f.Limit), f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}
	defer rows.Close()

	var entries []models.ScanLogEntry
	for rows.Next() {
		var (
			e            models.ScanLogEntry
			id, scanTime string
			eventType    string
			status       string
			employeeID   sql.NullString
			name, code   sql.NullString
		)
		if err := rows.Scan(&id, &e.RFIDUID, &employeeID, &name, &code,
			&scanTime, &eventType, &e.DeviceID, &status, &e.Note); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse log id: %w", err)
		}
		if employeeID.Valid {
			eid, err := uuid.Parse(employeeID.String)
			if err != nil {
				return nil, fmt.Errorf("parse employee id: %w", err)
			}
			e.EmployeeID = &eid
		}
		if name.Valid {
			e.EmployeeName = &name.String
		}
		if code.Valid {
			e.EmployeeCode = &code.String
		}
		if e.ScanTime, err = time.Parse(timeLayout, scanTime); err != nil {
			return nil, fmt.Errorf("parse scan time: %w", err)
		}
		if e.EventType, err = models.ParseEventType(eventType); err != nil {
			return nil, err
		}
		e.Status = models.ScanStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- System config ---

func (s *SQLiteStore) ConfigValues(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("read system config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan system config: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

func (s *SQLiteStore) SetConfigValues(ctx context.Context, values map[string]string) error {
	return s.writeConfig(ctx, values,
		`INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
}

func (s *SQLiteStore) SeedConfig(ctx context.Context, values map[string]string) error {
	return s.writeConfig(ctx, values,
		`INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO NOTHING`)
}

func (s *SQLiteStore) writeConfig(ctx context.Context, values map[string]string, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, stmt, k, v, now); err != nil {
			return fmt.Errorf("write system config %s: %w", k, err)
		}
	}
	return tx.Commit()
}
