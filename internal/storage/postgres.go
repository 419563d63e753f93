package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates missing tables. It is safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl, err := schema("postgres.sql")
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Directory ---

func (s *PostgresStore) LookupTag(ctx context.Context, rfidUID string) (*models.Employee, error) {
	e := &models.Employee{}
	err := s.pool.QueryRow(ctx,
		`SELECT e.id, e.employee_code, e.name, e.is_active
		   FROM rfid_tags t JOIN employees e ON e.id = t.employee_id
		  WHERE t.rfid_uid = $1 AND t.is_active AND e.is_active`, rfidUID,
	).Scan(&e.ID, &e.EmployeeCode, &e.Name, &e.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup tag: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) EmployeeByCode(ctx context.Context, code string) (*models.Employee, error) {
	e := &models.Employee{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, employee_code, name, is_active FROM employees WHERE employee_code = $1`, code,
	).Scan(&e.ID, &e.EmployeeCode, &e.Name, &e.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee %s: %w", code, err)
	}
	return e, nil
}

func (s *PostgresStore) CreateEmployee(ctx context.Context, code, name string) (*models.Employee, error) {
	e := &models.Employee{ID: uuid.New(), EmployeeCode: code, Name: name, IsActive: true}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO employees (id, employee_code, name, is_active) VALUES ($1, $2, $3, TRUE)`,
		e.ID, e.EmployeeCode, e.Name)
	if err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) SetEmployeeActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE employees SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AssignTag(ctx context.Context, employeeID uuid.UUID, rfidUID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rfid_tags (rfid_uid, employee_id, is_active) VALUES ($1, $2, TRUE)
		 ON CONFLICT (rfid_uid) DO UPDATE SET employee_id = EXCLUDED.employee_id, is_active = TRUE, assigned_at = now()`,
		rfidUID, employeeID)
	if err != nil {
		return fmt.Errorf("assign tag: %w", err)
	}
	return nil
}

// --- Attendance ---

func (s *PostgresStore) GetAttendance(ctx context.Context, employeeID uuid.UUID, date string) (*models.AttendanceRecord, error) {
	r := &models.AttendanceRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT employee_id, to_char(work_date, 'YYYY-MM-DD'), check_in_time, check_out_time
		   FROM attendance_records WHERE employee_id = $1 AND work_date = $2::date`,
		employeeID, date,
	).Scan(&r.EmployeeID, &r.Date, &r.CheckInTime, &r.CheckOutTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) PutAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attendance_records (employee_id, work_date, check_in_time, check_out_time, updated_at)
		 VALUES ($1, $2::date, $3, $4, now())
		 ON CONFLICT (employee_id, work_date) DO UPDATE
		   SET check_in_time = EXCLUDED.check_in_time,
		       check_out_time = EXCLUDED.check_out_time,
		       updated_at = now()`,
		rec.EmployeeID, rec.Date, rec.CheckInTime, rec.CheckOutTime)
	if err != nil {
		return fmt.Errorf("put attendance: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttendance(ctx context.Context, date string) ([]models.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT employee_id, to_char(work_date, 'YYYY-MM-DD'), check_in_time, check_out_time
		   FROM attendance_records WHERE work_date = $1::date ORDER BY check_in_time NULLS LAST`, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		var r models.AttendanceRecord
		if err := rows.Scan(&r.EmployeeID, &r.Date, &r.CheckInTime, &r.CheckOutTime); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) ClearAttendance(ctx context.Context, date string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attendance_records WHERE work_date = $1::date`, date)
	if err != nil {
		return 0, fmt.Errorf("clear attendance: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) TodayOverview(ctx context.Context, date string) ([]models.DailyAttendance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.employee_code, e.name,
		        COALESCE(array_agg(t.rfid_uid ORDER BY t.rfid_uid) FILTER (WHERE t.rfid_uid IS NOT NULL), '{}'),
		        a.check_in_time, a.check_out_time
		   FROM employees e
		   LEFT JOIN rfid_tags t ON t.employee_id = e.id AND t.is_active
		   LEFT JOIN attendance_records a ON a.employee_id = e.id AND a.work_date = $1::date
		  WHERE e.is_active
		  GROUP BY e.id, e.employee_code, e.name, a.check_in_time, a.check_out_time
		  ORDER BY e.name`, date)
	if err != nil {
		return nil, fmt.Errorf("today overview: %w", err)
	}
	defer rows.Close()

	var out []models.DailyAttendance
	for rows.Next() {
		var d models.DailyAttendance
		if err := rows.Scan(&d.EmployeeID, &d.EmployeeCode, &d.Name, &d.RFIDUIDs, &d.CheckInTime, &d.CheckOutTime); err != nil {
			return nil, fmt.Errorf("scan overview: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Scan log ---

func (s *PostgresStore) AppendScanLog(ctx context.Context, entry *models.ScanLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_logs (id, rfid_uid, employee_id, employee_name, employee_code,
		                        scan_time, event_type, device_id, status, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.RFIDUID, entry.EmployeeID, entry.EmployeeName, entry.EmployeeCode, entry.ScanTime,
		entry.EventType.String(), entry.DeviceID, string(entry.Status), entry.Note)
	if err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListScanLogs(ctx context.Context, f models.ScanLogFilter) ([]models.ScanLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EventType != nil {
		args = append(args, f.EventType.String())
		where = append(where, fmt.Sprintf("l.event_type = $%d", len(args)))
	}
	if f.RFIDUID != "" {
		args = append(args, f.RFIDUID)
		where = append(where, fmt.Sprintf("l.rfid_uid = $%d", len(args)))
	}

	query := `SELECT l.id, l.rfid_uid, l.employee_id, l.employee_name, l.employee_code,
	                 l.scan_time, l.event_type, l.device_id, l.status, l.note
	            FROM scan_logs l`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, logLimit(f.Limit), f.Offset)
	query += fmt.Sprintf(" ORDER BY l.scan_time DESC, l.seq DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}
	defer rows.Close()

	var entries []models.ScanLogEntry
	for rows.Next() {
		var (
			e         models.ScanLogEntry
			eventType string
			status    string
		)
		if err := rows.Scan(&e.ID, &e.RFIDUID, &e.EmployeeID, &e.EmployeeName, &e.EmployeeCode,
			&e.ScanTime, &eventType, &e.DeviceID, &status, &e.Note); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
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

func (s *PostgresStore) ConfigValues(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM system_config`)
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

func (s *PostgresStore) SetConfigValues(ctx context.Context, values map[string]string) error {
	return s.writeConfig(ctx, values,
		`INSERT INTO system_config (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`)
}

func (s *PostgresStore) SeedConfig(ctx context.Context, values map[string]string) error {
	return s.writeConfig(ctx, values,
		`INSERT INTO system_config (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO NOTHING`)
}

// writeConfig applies all values in one transaction so readers never see a
// half-updated policy.
func (s *PostgresStore) writeConfig(ctx context.Context, values map[string]string, stmt string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	batch := &pgx.Batch{}
	for k, v := range values {
		batch.Queue(stmt, k, v, now)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write system config: %w", err)
	}
	return tx.Commit(ctx)
}
