package identity

import (
	"context"
	"errors"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

// DemoPeople are the accounts a demo deployment starts with.
var DemoPeople = []RegisterParams{
	{ID: "admin1", Name: "Dr. Admin", Email: "admin@school.com", Password: "admin123", Role: attendance.RoleAdmin, Department: "Administration"},
	{ID: "std1", Name: "Alice Johnson", Email: "alice@school.com", Password: "pass123", Role: attendance.RoleStudent, Department: "Computer Science"},
	{ID: "std2", Name: "Bob Smith", Email: "bob@school.com", Password: "pass123", Role: attendance.RoleStudent, Department: "Computer Science"},
	{ID: "std3", Name: "Carol White", Email: "carol@school.com", Password: "pass123", Role: attendance.RoleStudent, Department: "Mathematics"},
	{ID: "emp1", Name: "John Doe", Email: "john@company.com", Password: "pass123", Role: attendance.RoleEmployee, Department: "Engineering"},
}

// SeedDemo registers DemoPeople, skipping accounts that already exist.
func (d *Directory) SeedDemo(ctx context.Context) (int, error) {
	added := 0
	for _, p := range DemoPeople {
		if _, err := d.Register(ctx, p); err != nil {
			if errors.Is(err, shared.ErrPersonAlreadyExists) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}
