package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/clock"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/repository/memory"
)

var fixedNow = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) take() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notes
	r.notes = nil
	return out
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	notifier  *recordingNotifier
	workflow  *WorkflowService
	directory *DirectoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pinClock(t, fixedNow)

	store := memory.NewStore()
	notifier := &recordingNotifier{}
	return &fixture{
		ctx:       context.Background(),
		store:     store,
		notifier:  notifier,
		workflow:  NewWorkflowService(store, notifier, logger.Nop()),
		directory: NewDirectoryService(store, logger.Nop()),
	}
}

// pinClock fixes clock.Now and restores it when the test ends.
func pinClock(t *testing.T, now time.Time) {
	t.Helper()
	prevNow, prevLoc := clock.NowFunc, clock.Location
	clock.NowFunc = func() time.Time { return now }
	clock.Location = time.UTC
	t.Cleanup(func() {
		clock.NowFunc = prevNow
		clock.Location = prevLoc
	})
}

func (f *fixture) department(name string) string {
	return f.store.AddDepartment(repository.Department{Name: name, Code: name})
}

func (f *fixture) setHead(t *testing.T, deptID, headID string) {
	t.Helper()
	f.store.AddDepartment(repository.Department{ID: deptID, Name: deptID, Code: deptID, HeadID: &headID})
}

func (f *fixture) employee(lastName string, deptID string) string {
	e := repository.Employee{LastName: lastName, FirstName: "Test", IsActive: true}
	if deptID != "" {
		e.DepartmentID = &deptID
	}
	return f.store.AddEmployee(e)
}

func (f *fixture) employeeWithStatus(lastName, deptID string, status repository.EmployeeStatus) string {
	e := repository.Employee{LastName: lastName, FirstName: "Test", IsActive: true, Status: status}
	if deptID != "" {
		e.DepartmentID = &deptID
	}
	return f.store.AddEmployee(e)
}

// routeTemplate creates a document type with one active template and returns
// the document type id.
func (f *fixture) routeTemplate(t *testing.T, code string, order repository.ApprovalOrder, steps ...repository.RouteStep) string {
	t.Helper()
	dt := &repository.DocumentType{Code: code, Name: code}
	err := f.store.InTx(f.ctx, func(tx repository.Tx) error {
		if err := tx.UpsertDocumentType(f.ctx, dt); err != nil {
			return err
		}
		return tx.UpsertRouteTemplate(f.ctx, &repository.RouteTemplate{
			DocumentTypeID: dt.ID,
			Name:           "default",
			ApprovalOrder:  order,
			IsActive:       true,
			Steps:          steps,
		})
	})
	require.NoError(t, err)
	return dt.ID
}

func step(n int, target repository.Target) repository.RouteStep {
	return repository.RouteStep{StepNumber: n, Target: target}
}

func (f *fixture) submit(t *testing.T, req *SubmitRequest) *Result {
	t.Helper()
	if req.Title == "" {
		req.Title = "Invoice"
	}
	res, err := f.workflow.Submit(f.ctx, req)
	require.NoError(t, err)
	return res
}

func (f *fixture) decide(t *testing.T, documentID, actorID string, kind DecisionKind, comment string) *Result {
	t.Helper()
	res, err := f.workflow.RecordDecision(f.ctx, &DecisionRequest{
		DocumentID: documentID,
		ActorID:    actorID,
		Kind:       kind,
		Comment:    comment,
	})
	require.NoError(t, err)
	return res
}

func recipients(notes []Notification) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.RecipientID)
	}
	return out
}

func approversOf(approvals []*repository.Approval, cycle int) []string {
	var out []string
	for _, a := range approvals {
		if a.Cycle == cycle {
			out = append(out, a.ApproverID)
		}
	}
	return out
}

func findApproval(approvals []*repository.Approval, approverID string, cycle int) *repository.Approval {
	for _, a := range approvals {
		if a.ApproverID == approverID && a.Cycle == cycle {
			return a
		}
	}
	return nil
}
