package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepartmentEmployeesQuery(t *testing.T) {
	q := departmentEmployeesQuery(true)
	assert.Contains(t, q, "AND is_active = TRUE")
	assert.Contains(t, q, `ORDER BY last_name COLLATE "C" ASC, first_name COLLATE "C" ASC, id ASC`)

	assert.NotContains(t, departmentEmployeesQuery(false), "is_active = TRUE")
}
