// Package memory is an in-process implementation of repository.Store. Units of
// work are serialised by a mutex and applied copy-on-commit, so a callback that
// returns an error leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/clock"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

type approvalRow struct {
	seq int64
	repository.Approval
}

type logRow struct {
	seq int64
	repository.ActionLogEntry
}

type seqKey struct{ year, month int }

type state struct {
	employees     map[string]repository.Employee
	departments   map[string]repository.Department
	replacements  map[string]repository.Replacement
	documentTypes map[string]repository.DocumentType
	templates     map[string]repository.RouteTemplate
	documents     map[string]repository.Document
	statuses      map[repository.StatusCode]repository.DocumentStatus
	approvals     []approvalRow
	actionLog     []logRow
	sequences     map[seqKey]int
	nextSeq       int64
}

func newState() *state {
	return &state{
		employees:     map[string]repository.Employee{},
		departments:   map[string]repository.Department{},
		replacements:  map[string]repository.Replacement{},
		documentTypes: map[string]repository.DocumentType{},
		templates:     map[string]repository.RouteTemplate{},
		documents:     map[string]repository.Document{},
		statuses:      map[repository.StatusCode]repository.DocumentStatus{},
		sequences:     map[seqKey]int{},
	}
}

func (s *state) clone() *state {
	c := &state{
		employees:     make(map[string]repository.Employee, len(s.employees)),
		departments:   make(map[string]repository.Department, len(s.departments)),
		replacements:  make(map[string]repository.Replacement, len(s.replacements)),
		documentTypes: make(map[string]repository.DocumentType, len(s.documentTypes)),
		templates:     make(map[string]repository.RouteTemplate, len(s.templates)),
		documents:     make(map[string]repository.Document, len(s.documents)),
		statuses:      make(map[repository.StatusCode]repository.DocumentStatus, len(s.statuses)),
		approvals:     append([]approvalRow(nil), s.approvals...),
		actionLog:     append([]logRow(nil), s.actionLog...),
		sequences:     make(map[seqKey]int, len(s.sequences)),
		nextSeq:       s.nextSeq,
	}
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	for k, v := range s.replacements {
		c.replacements[k] = v
	}
	for k, v := range s.documentTypes {
		c.documentTypes[k] = v
	}
	for k, v := range s.templates {
		v.Steps = append([]repository.RouteStep(nil), v.Steps...)
		c.templates[k] = v
	}
	for k, v := range s.documents {
		c.documents[k] = v
	}
	for k, v := range s.statuses {
		c.statuses[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// Store is the in-memory repository.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a private copy of the data and publishes it only when
// fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// AddDepartment stores a department, assigning an id when empty.
func (s *Store) AddDepartment(d repository.Department) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.state.departments[d.ID] = d
	return d.ID
}

// AddEmployee stores an employee, assigning an id when empty.
func (s *Store) AddEmployee(e repository.Employee) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = repository.EmployeeWorking
	}
	s.state.employees[e.ID] = e
	return e.ID
}

// Status returns the stored vocabulary row for code.
func (s *Store) Status(code repository.StatusCode) (repository.DocumentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.statuses[code]
	return st, ok
}

// ApprovalCount returns the number of ledger rows across all documents.
func (s *Store) ApprovalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.approvals)
}

// tx implements repository.Tx over a working copy.
type tx struct {
	st *state
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) seq() int64 {
	t.st.nextSeq++
	return t.st.nextSeq
}

// ── Directory ───────────────────────────────────────────────────────────────

func (t *tx) GetEmployee(_ context.Context, id string) (*repository.Employee, error) {
	e, ok := t.st.employees[id]
	if !ok {
		return nil, errors.NotFound("employee", id)
	}
	return &e, nil
}

func (t *tx) GetDepartment(_ context.Context, id string) (*repository.Department, error) {
	d, ok := t.st.departments[id]
	if !ok {
		return nil, errors.NotFound("department", id)
	}
	return &d, nil
}

func (t *tx) ListDepartmentEmployees(_ context.Context, departmentID string, activeOnly bool) ([]*repository.Employee, error) {
	var out []*repository.Employee
	for _, e := range t.st.employees {
		if e.DepartmentID == nil || *e.DepartmentID != departmentID {
			continue
		}
		if activeOnly && !e.IsActive {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (t *tx) ActiveReplacementsFor(_ context.Context, absentEmployeeID string, day time.Time) ([]*repository.Replacement, error) {
	var out []*repository.Replacement
	for _, r := range t.st.replacements {
		if r.AbsentEmployeeID != absentEmployeeID || !r.IsActive || !r.ActiveOn(day) {
			continue
		}
		sub, ok := t.st.employees[r.ReplacementEmployeeID]
		if !ok || !sub.IsAvailable() {
			continue
		}
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ── Replacements ────────────────────────────────────────────────────────────

func (t *tx) CreateReplacement(_ context.Context, r *repository.Replacement) error {
	r.ID = uuid.NewString()
	r.CreatedAt = clock.Now()
	t.st.replacements[r.ID] = *r
	return nil
}

func (t *tx) GetReplacement(_ context.Context, id string) (*repository.Replacement, error) {
	r, ok := t.st.replacements[id]
	if !ok {
		return nil, errors.NotFound("replacement", id)
	}
	return &r, nil
}

func (t *tx) DeleteReplacement(_ context.Context, id string) error {
	if _, ok := t.st.replacements[id]; !ok {
		return errors.NotFound("replacement", id)
	}
	delete(t.st.replacements, id)
	return nil
}

func (t *tx) ListReplacements(_ context.Context) ([]*repository.Replacement, error) {
	out := make([]*repository.Replacement, 0, len(t.st.replacements))
	for _, r := range t.st.replacements {
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) SetReplacementActive(_ context.Context, id string, active bool) error {
	r, ok := t.st.replacements[id]
	if !ok {
		return errors.NotFound("replacement", id)
	}
	r.IsActive = active
	t.st.replacements[id] = r
	return nil
}

func (t *tx) HasActiveReplacement(_ context.Context, absentEmployeeID string) (bool, error) {
	for _, r := range t.st.replacements {
		if r.AbsentEmployeeID == absentEmployeeID && r.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) UpdateEmployeeStatus(_ context.Context, employeeID string, status repository.EmployeeStatus) error {
	e, ok := t.st.employees[employeeID]
	if !ok {
		return errors.NotFound("employee", employeeID)
	}
	e.Status = status
	t.st.employees[employeeID] = e
	return nil
}

// ── Routes ──────────────────────────────────────────────────────────────────

func (t *tx) ActiveRouteTemplate(_ context.Context, documentTypeID string) (*repository.RouteTemplate, error) {
	var candidates []repository.RouteTemplate
	for _, tpl := range t.st.templates {
		if tpl.DocumentTypeID == documentTypeID && tpl.IsActive && len(tpl.Steps) > 0 {
			candidates = append(candidates, tpl)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	tpl := candidates[0]
	tpl.Steps = append([]repository.RouteStep(nil), tpl.Steps...)
	sort.SliceStable(tpl.Steps, func(i, j int) bool { return tpl.Steps[i].StepNumber < tpl.Steps[j].StepNumber })
	return &tpl, nil
}

func (t *tx) ReassignRouteSteps(_ context.Context, fromEmployeeID, toEmployeeID string) (int64, error) {
	var n int64
	for id, tpl := range t.st.templates {
		for i := range tpl.Steps {
			step := &tpl.Steps[i]
			if step.Target.Kind == repository.TargetUser && step.Target.ID == fromEmployeeID {
				step.Target.ID = toEmployeeID
				n++
			}
		}
		t.st.templates[id] = tpl
	}
	return n, nil
}

func (t *tx) UpsertDocumentType(_ context.Context, dt *repository.DocumentType) error {
	for id, existing := range t.st.documentTypes {
		if existing.Code == dt.Code {
			dt.ID = id
			t.st.documentTypes[id] = *dt
			return nil
		}
	}
	if dt.ID == "" {
		dt.ID = uuid.NewString()
	}
	t.st.documentTypes[dt.ID] = *dt
	return nil
}

func (t *tx) UpsertRouteTemplate(_ context.Context, tpl *repository.RouteTemplate) error {
	tpl.ID = ""
	for id, existing := range t.st.templates {
		if existing.DocumentTypeID == tpl.DocumentTypeID && existing.Name == tpl.Name {
			tpl.ID = id
			break
		}
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	for i := range tpl.Steps {
		step := &tpl.Steps[i]
		switch step.Target.Kind {
		case repository.TargetUser, repository.TargetDepartment:
		default:
			return errors.InvalidInput("steps", fmt.Sprintf("unknown target type %q", step.Target.Kind))
		}
		step.TemplateID = tpl.ID
		step.ID = uuid.NewString()
	}
	stored := *tpl
	stored.Steps = append([]repository.RouteStep(nil), tpl.Steps...)
	t.st.templates[tpl.ID] = stored
	return nil
}

// ── Documents ───────────────────────────────────────────────────────────────

func (t *tx) CreateDocument(_ context.Context, doc *repository.Document) error {
	now := clock.Now()
	doc.ID = uuid.NewString()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	t.st.documents[doc.ID] = *doc
	return nil
}

func (t *tx) GetDocument(_ context.Context, id string) (*repository.Document, error) {
	doc, ok := t.st.documents[id]
	if !ok {
		return nil, errors.NotFound("document", id)
	}
	doc.ManualRoute = append([]repository.Target(nil), doc.ManualRoute...)
	return &doc, nil
}

// LockDocument is GetDocument: the whole unit of work already holds the store lock.
func (t *tx) LockDocument(ctx context.Context, id string) (*repository.Document, error) {
	return t.GetDocument(ctx, id)
}

func (t *tx) UpdateDocument(_ context.Context, doc *repository.Document) error {
	if _, ok := t.st.documents[doc.ID]; !ok {
		return errors.NotFound("document", doc.ID)
	}
	doc.UpdatedAt = clock.Now()
	stored := *doc
	stored.ManualRoute = append([]repository.Target(nil), doc.ManualRoute...)
	t.st.documents[doc.ID] = stored
	return nil
}

func (t *tx) NextRegistrationSequence(_ context.Context, year, month int) (int, error) {
	key := seqKey{year, month}
	t.st.sequences[key]++
	return t.st.sequences[key], nil
}

// ── Approvals ───────────────────────────────────────────────────────────────

func (t *tx) ListApprovals(_ context.Context, documentID string) ([]*repository.Approval, error) {
	var rows []approvalRow
	for _, row := range t.st.approvals {
		if row.DocumentID == documentID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Cycle != b.Cycle {
			return a.Cycle < b.Cycle
		}
		if a.Step != b.Step {
			return a.Step < b.Step
		}
		return a.seq < b.seq
	})
	out := make([]*repository.Approval, len(rows))
	for i := range rows {
		a := rows[i].Approval
		out[i] = &a
	}
	return out, nil
}

func (t *tx) CreateApproval(_ context.Context, a *repository.Approval) (bool, error) {
	for _, row := range t.st.approvals {
		if row.DocumentID == a.DocumentID && row.ApproverID == a.ApproverID &&
			row.Step == a.Step && row.Cycle == a.Cycle {
			return false, nil
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = clock.Now()
	t.st.approvals = append(t.st.approvals, approvalRow{seq: t.seq(), Approval: *a})
	return true, nil
}

func (t *tx) UpdateApprovalDecision(_ context.Context, a *repository.Approval) error {
	for i := range t.st.approvals {
		row := &t.st.approvals[i]
		if row.ID == a.ID {
			row.Decision = a.Decision
			row.Comment = a.Comment
			row.DecidedAt = a.DecidedAt
			return nil
		}
	}
	return errors.NotFound("approval", a.ID)
}

func (t *tx) ClosePendingApprovals(_ context.Context, documentID string, cycle int, exceptID string, decidedAt time.Time) (int64, error) {
	var n int64
	for i := range t.st.approvals {
		row := &t.st.approvals[i]
		if row.DocumentID != documentID || row.Cycle != cycle || row.ID == exceptID || !row.IsPending() {
			continue
		}
		at := decidedAt
		row.Decision = repository.DecisionReturned
		row.DecidedAt = &at
		n++
	}
	return n, nil
}

func (t *tx) ListPendingForApprover(_ context.Context, approverID string) ([]*repository.Approval, error) {
	maxCycle := map[string]int{}
	for _, row := range t.st.approvals {
		if row.Cycle > maxCycle[row.DocumentID] {
			maxCycle[row.DocumentID] = row.Cycle
		}
	}

	var rows []approvalRow
	for _, row := range t.st.approvals {
		if row.ApproverID != approverID || !row.IsPending() || row.Cycle != maxCycle[row.DocumentID] {
			continue
		}
		if doc, ok := t.st.documents[row.DocumentID]; !ok || doc.IsArchived {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]*repository.Approval, len(rows))
	for i := range rows {
		a := rows[i].Approval
		out[i] = &a
	}
	return out, nil
}

// ── Status vocabulary ───────────────────────────────────────────────────────

func (t *tx) EnsureStatus(_ context.Context, s repository.DocumentStatus) error {
	t.st.statuses[s.Code] = s
	return nil
}

// ── Action log ──────────────────────────────────────────────────────────────

func (t *tx) AppendActionLog(_ context.Context, entry *repository.ActionLogEntry) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = clock.Now()
	t.st.actionLog = append(t.st.actionLog, logRow{seq: t.seq(), ActionLogEntry: *entry})
	return nil
}

func (t *tx) ListActionLog(_ context.Context, documentID string) ([]*repository.ActionLogEntry, error) {
	var out []*repository.ActionLogEntry
	for _, row := range t.st.actionLog {
		if row.DocumentID == documentID {
			e := row.ActionLogEntry
			out = append(out, &e)
		}
	}
	return out, nil
}
