package repository

import "time"

// ── Domain types for the approval ledger and routes ──────────────────────────

// Decision is the state of a single ledger entry.
type Decision string

const (
	DecisionPending      Decision = "pending"
	DecisionApproved     Decision = "approved"
	DecisionRejected     Decision = "rejected"
	DecisionReturned     Decision = "returned"
	DecisionAcknowledged Decision = "acknowledged"
	DecisionExecuted     Decision = "executed"
)

// IsNegative reports whether the decision collapses its cycle.
func (d Decision) IsNegative() bool {
	return d == DecisionRejected || d == DecisionReturned
}

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionPending, DecisionApproved, DecisionRejected, DecisionReturned,
		DecisionAcknowledged, DecisionExecuted:
		return true
	}
	return false
}

// Approval is one (document, approver, step, cycle) entry of the ledger.
type Approval struct {
	ID         string
	DocumentID string
	ApproverID string
	Step       int
	Cycle      int
	Decision   Decision
	Comment    string
	DecidedAt  *time.Time
	Deadline   *time.Time
	IsRequired bool
	CreatedAt  time.Time
}

// IsPending reports whether the entry still awaits a decision.
func (a *Approval) IsPending() bool {
	return a.Decision == DecisionPending
}

// TargetKind tags a route target.
type TargetKind string

const (
	TargetUser       TargetKind = "user"
	TargetDepartment TargetKind = "department"
)

// Target is either a single employee or a whole department (fan-out). It is
// expanded exactly once by the route expander.
type Target struct {
	Kind TargetKind `json:"type" yaml:"type"`
	ID   string     `json:"id" yaml:"id"`
}

// UserTarget builds a user target.
func UserTarget(employeeID string) Target {
	return Target{Kind: TargetUser, ID: employeeID}
}

// DepartmentTarget builds a department target.
func DepartmentTarget(departmentID string) Target {
	return Target{Kind: TargetDepartment, ID: departmentID}
}

// ApprovalOrder controls which pending entries are actionable.
type ApprovalOrder string

const (
	OrderSequential ApprovalOrder = "sequential"
	OrderParallel   ApprovalOrder = "parallel"
)

// Valid reports whether o is a known order.
func (o ApprovalOrder) Valid() bool {
	return o == OrderSequential || o == OrderParallel
}

// RouteStep is one position of a route template.
type RouteStep struct {
	ID         string
	TemplateID string
	StepNumber int
	Target     Target
}

// RouteTemplate is the configured route for a document type.
type RouteTemplate struct {
	ID             string
	DocumentTypeID string
	Name           string
	ApprovalOrder  ApprovalOrder
	IsActive       bool
	Steps          []RouteStep
}

// DocumentType groups documents sharing a route template.
type DocumentType struct {
	ID   string
	Name string
	Code string
}

// ActionLogEntry is one immutable record in the document history.
type ActionLogEntry struct {
	ID          string
	DocumentID  string
	ActorID     string
	Action      string // created | submitted | approved | rejected | returned | resubmitted | archived | ...
	Description string
	Details     map[string]interface{}
	CreatedAt   time.Time
}
