package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

func TestStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx repository.Tx) error {
		doc := &repository.Document{Title: "x", Status: repository.StatusDraft}
		require.NoError(t, tx.CreateDocument(ctx, doc))
		_, err := tx.CreateApproval(ctx, &repository.Approval{DocumentID: doc.ID, ApproverID: "a", Step: 1, Cycle: 1, Decision: repository.DecisionPending})
		require.NoError(t, err)
		_, err = tx.NextRegistrationSequence(ctx, 2026, 3)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.ApprovalCount())

	err = s.InTx(ctx, func(tx repository.Tx) error {
		seq, err := tx.NextRegistrationSequence(ctx, 2026, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, seq)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_Approvals(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		doc := &repository.Document{Title: "x"}
		require.NoError(t, tx.CreateDocument(ctx, doc))

		first := &repository.Approval{DocumentID: doc.ID, ApproverID: "b", Step: 2, Cycle: 1, Decision: repository.DecisionPending}
		created, err := tx.CreateApproval(ctx, first)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = tx.CreateApproval(ctx, &repository.Approval{DocumentID: doc.ID, ApproverID: "b", Step: 2, Cycle: 1, Decision: repository.DecisionPending})
		require.NoError(t, err)
		assert.False(t, created, "same approver, step and cycle")

		a := &repository.Approval{DocumentID: doc.ID, ApproverID: "a", Step: 1, Cycle: 1, Decision: repository.DecisionPending}
		_, err = tx.CreateApproval(ctx, a)
		require.NoError(t, err)

		list, err := tx.ListApprovals(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].ApproverID)

		n, err := tx.ClosePendingApprovals(ctx, doc.ID, 1, a.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		pending, err := tx.ListPendingForApprover(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, pending, 1)
		pending, err = tx.ListPendingForApprover(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, pending)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_DepartmentOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	dept := s.AddDepartment(repository.Department{Name: "Finance"})
	s.AddEmployee(repository.Employee{ID: "3", LastName: "Petrov", FirstName: "Ivan", DepartmentID: &dept, IsActive: true})
	s.AddEmployee(repository.Employee{ID: "1", LastName: "Ivanov", FirstName: "Petr", DepartmentID: &dept, IsActive: true})
	s.AddEmployee(repository.Employee{ID: "2", LastName: "Ivanov", FirstName: "Anna", DepartmentID: &dept, IsActive: true})
	s.AddEmployee(repository.Employee{ID: "4", LastName: "Abramov", DepartmentID: &dept, IsActive: false})

	err := s.InTx(ctx, func(tx repository.Tx) error {
		emps, err := tx.ListDepartmentEmployees(ctx, dept, true)
		require.NoError(t, err)
		var ids []string
		for _, e := range emps {
			ids = append(ids, e.ID)
		}
		assert.Equal(t, []string{"2", "1", "3"}, ids)

		all, err := tx.ListDepartmentEmployees(ctx, dept, false)
		require.NoError(t, err)
		assert.Len(t, all, 4)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_DepartmentOrderingIsBytewise(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	dept := s.AddDepartment(repository.Department{Name: "Бухгалтерия"})
	s.AddEmployee(repository.Employee{ID: "1", LastName: "Егоров", DepartmentID: &dept, IsActive: true})
	s.AddEmployee(repository.Employee{ID: "2", LastName: "Ёлкин", DepartmentID: &dept, IsActive: true})
	s.AddEmployee(repository.Employee{ID: "3", LastName: "Smith", DepartmentID: &dept, IsActive: true})

	err := s.InTx(ctx, func(tx repository.Tx) error {
		emps, err := tx.ListDepartmentEmployees(ctx, dept, true)
		require.NoError(t, err)
		var ids []string
		for _, e := range emps {
			ids = append(ids, e.ID)
		}
		// Latin before Cyrillic, Ё (U+0401) before Е (U+0415).
		assert.Equal(t, []string{"3", "2", "1"}, ids)
		return nil
	})
	require.NoError(t, err)
}
