package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// ErrNotFound is returned by writes that reference a missing row.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface shared by the binaries. Single-row reads
// return (nil, nil) when nothing matches.
type Store interface {
	attendance.Directory
	attendance.Store
	attendance.LogSink
	attendance.ConfigSource

	SetConfigValues(ctx context.Context, values map[string]string) error
	// SeedConfig writes values whose keys are not stored yet.
	SeedConfig(ctx context.Context, values map[string]string) error

	ListScanLogs(ctx context.Context, f models.ScanLogFilter) ([]models.ScanLogEntry, error)
	TodayOverview(ctx context.Context, date string) ([]models.DailyAttendance, error)

	// Directory writes used by SeedEmployees.
	EmployeeByCode(ctx context.Context, code string) (*models.Employee, error)
	CreateEmployee(ctx context.Context, code, name string) (*models.Employee, error)
	SetEmployeeActive(ctx context.Context, id uuid.UUID, active bool) error
	AssignTag(ctx context.Context, employeeID uuid.UUID, rfidUID string) error

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Driver and applies the schema.
// The memory backend lives inside the calling process, so it cannot be shared
// between the ingestor and the API.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		return OpenSQLite(cfg.Path)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func schema(name string) (string, error) {
	b, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return "", fmt.Errorf("read schema %s: %w", name, err)
	}
	return string(b), nil
}

const defaultLogLimit = 100

func logLimit(n int) int {
	if n <= 0 {
		return defaultLogLimit
	}
	return n
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
