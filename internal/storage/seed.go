package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/your-org/attendance/internal/config"
)

// SeedEmployees creates the employees whose code is not stored yet and
// assigns their tags. Existing employees keep their name; their active flag
// follows seed.Active when it is set. It returns the number of employees
// created.
func SeedEmployees(ctx context.Context, s Store, seeds []config.SeedEmployee) (int, error) {
	created := 0
	for _, seed := range seeds {
		emp, err := s.EmployeeByCode(ctx, seed.Code)
		if err != nil {
			return created, err
		}
		if emp == nil {
			if emp, err = s.CreateEmployee(ctx, seed.Code, seed.Name); err != nil {
				return created, err
			}
			created++
			slog.Info("seeded employee", "employee_code", seed.Code)
		}
		if seed.Active != nil && *seed.Active != emp.IsActive {
			if err := s.SetEmployeeActive(ctx, emp.ID, *seed.Active); err != nil {
				return created, err
			}
		}
		for _, tag := range seed.Tags {
			uid := strings.ToUpper(strings.TrimSpace(tag))
			if uid == "" {
				continue
			}
			if err := s.AssignTag(ctx, emp.ID, uid); err != nil {
				return created, fmt.Errorf("seed tag %s for %s: %w", uid, seed.Code, err)
			}
		}
	}
	return created, nil
}
