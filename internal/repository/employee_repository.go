package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
)

// EmployeeRepository reads the employee/department directory.
type EmployeeRepository struct {
	db database.Querier
}

// NewEmployeeRepository creates a new EmployeeRepository.
func NewEmployeeRepository(db database.Querier) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `
	id, first_name, last_name, middle_name, department_id, status, is_active
`

// GetEmployee retrieves an employee by primary key.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	query := `SELECT` + employeeColumns + `FROM employees WHERE id = $1`

	emp, err := r.scanEmployee(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("employee", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get employee")
	}
	return emp, nil
}

// GetDepartment retrieves a department by primary key.
func (r *EmployeeRepository) GetDepartment(ctx context.Context, id string) (*Department, error) {
	query := `
		SELECT id, name, code, head_id
		FROM departments
		WHERE id = $1
	`

	d := &Department{}
	err := r.db.QueryRow(ctx, query, id).Scan(&d.ID, &d.Name, &d.Code, &d.HeadID)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("department", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get department")
	}
	return d, nil
}

// departmentEmployeesQuery orders names bytewise so the peer fallback picks the
// same employee whatever the database collation.
func departmentEmployeesQuery(activeOnly bool) string {
	query := `SELECT` + employeeColumns + `FROM employees WHERE department_id = $1`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	return query + ` ORDER BY last_name COLLATE "C" ASC, first_name COLLATE "C" ASC, id ASC`
}

// ListDepartmentEmployees returns the members of a department in deterministic
// order (last name, first name, id).
func (r *EmployeeRepository) ListDepartmentEmployees(ctx context.Context, departmentID string, activeOnly bool) ([]*Employee, error) {
	rows, err := r.db.Query(ctx, departmentEmployeesQuery(activeOnly), departmentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list department employees")
	}
	defer rows.Close()

	var employees []*Employee
	for rows.Next() {
		emp, err := r.scanEmployee(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan employee")
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// UpdateEmployeeStatus sets an employee's employment status.
func (r *EmployeeRepository) UpdateEmployeeStatus(ctx context.Context, employeeID string, status EmployeeStatus) error {
	query := `
		UPDATE employees
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, employeeID, status)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update employee status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("employee", employeeID)
	}
	return nil
}

type employeeScanner interface {
	Scan(dest ...any) error
}

func (r *EmployeeRepository) scanEmployee(row employeeScanner) (*Employee, error) {
	e := &Employee{}
	err := row.Scan(
		&e.ID,
		&e.FirstName,
		&e.LastName,
		&e.MiddleName,
		&e.DepartmentID,
		&e.Status,
		&e.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}
