package repository

import (
	"context"
	"time"
)

// Store opens units of work. Every engine mutation for a document runs inside
// one InTx call; implementations must make the whole callback atomic.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the full data surface available inside a unit of work.
type Tx interface {
	Directory
	ReplacementStore
	RouteStore
	DocumentStore
	ApprovalStore
	StatusStore
	AuditStore
}

// Directory is the read side of the employee/department directory.
type Directory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	GetDepartment(ctx context.Context, id string) (*Department, error)
	// ListDepartmentEmployees returns employees ordered by last name, first
	// name, id.
	ListDepartmentEmployees(ctx context.Context, departmentID string, activeOnly bool) ([]*Employee, error)
	// ActiveReplacementsFor returns active replacements of the absent employee
	// covering day, latest start date first.
	ActiveReplacementsFor(ctx context.Context, absentEmployeeID string, day time.Time) ([]*Replacement, error)
}

// ReplacementStore mutates replacements and employee status.
type ReplacementStore interface {
	CreateReplacement(ctx context.Context, r *Replacement) error
	GetReplacement(ctx context.Context, id string) (*Replacement, error)
	DeleteReplacement(ctx context.Context, id string) error
	ListReplacements(ctx context.Context) ([]*Replacement, error)
	SetReplacementActive(ctx context.Context, id string, active bool) error
	HasActiveReplacement(ctx context.Context, absentEmployeeID string) (bool, error)
	UpdateEmployeeStatus(ctx context.Context, employeeID string, status EmployeeStatus) error
}

// RouteStore reads and maintains route templates.
type RouteStore interface {
	// ActiveRouteTemplate returns the active template with at least one step
	// for the document type, or nil when there is none.
	ActiveRouteTemplate(ctx context.Context, documentTypeID string) (*RouteTemplate, error)
	ReassignRouteSteps(ctx context.Context, fromEmployeeID, toEmployeeID string) (int64, error)
	UpsertDocumentType(ctx context.Context, dt *DocumentType) error
	UpsertRouteTemplate(ctx context.Context, tpl *RouteTemplate) error
}

// DocumentStore persists documents and allocates registration numbers.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	// LockDocument loads the document and holds it exclusively until the unit
	// of work ends.
	LockDocument(ctx context.Context, id string) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	// NextRegistrationSequence returns the next number for (year, month).
	NextRegistrationSequence(ctx context.Context, year, month int) (int, error)
}

// ApprovalStore persists ledger rows.
type ApprovalStore interface {
	// ListApprovals returns every entry of a document ordered by cycle, step,
	// creation.
	ListApprovals(ctx context.Context, documentID string) ([]*Approval, error)
	// CreateApproval inserts the row unless (document, approver, step, cycle)
	// already exists; created reports which happened.
	CreateApproval(ctx context.Context, a *Approval) (created bool, err error)
	UpdateApprovalDecision(ctx context.Context, a *Approval) error
	// ClosePendingApprovals marks every other pending row of the cycle as
	// returned and reports how many were closed.
	ClosePendingApprovals(ctx context.Context, documentID string, cycle int, exceptID string, decidedAt time.Time) (int64, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]*Approval, error)
}

// StatusStore maintains the status vocabulary rows.
type StatusStore interface {
	EnsureStatus(ctx context.Context, s DocumentStatus) error
}

// AuditStore appends and reads the action log.
type AuditStore interface {
	AppendActionLog(ctx context.Context, entry *ActionLogEntry) error
	ListActionLog(ctx context.Context, documentID string) ([]*ActionLogEntry, error)
}
