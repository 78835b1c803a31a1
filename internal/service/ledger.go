package service

import (
	"context"
	"strings"
	"time"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// DecisionKind is what an approver asks the engine to do.
type DecisionKind string

const (
	KindApprove     DecisionKind = "approve"
	KindAcknowledge DecisionKind = "acknowledge"
	KindExecute     DecisionKind = "execute"
	KindReject      DecisionKind = "reject"
	KindReturn      DecisionKind = "return"
)

var kindDecisions = map[DecisionKind]repository.Decision{
	KindApprove:     repository.DecisionApproved,
	KindAcknowledge: repository.DecisionAcknowledged,
	KindExecute:     repository.DecisionExecuted,
	KindReject:      repository.DecisionRejected,
	KindReturn:      repository.DecisionReturned,
}

// Decision returns the ledger decision recorded for k.
func (k DecisionKind) Decision() (repository.Decision, bool) {
	d, ok := kindDecisions[k]
	return d, ok
}

// ── Ordering policy ─────────────────────────────────────────────────────────

// MaxCycle returns the latest cycle in approvals, 0 when there are none.
func MaxCycle(approvals []*repository.Approval) int {
	latest := 0
	for _, a := range approvals {
		if a.Cycle > latest {
			latest = a.Cycle
		}
	}
	return latest
}

// CurrentStep returns the minimum step among pending entries of cycle.
func CurrentStep(approvals []*repository.Approval, cycle int) (int, bool) {
	step, found := 0, false
	for _, a := range approvals {
		if a.Cycle != cycle || !a.IsPending() {
			continue
		}
		if !found || a.Step < step {
			step, found = a.Step, true
		}
	}
	return step, found
}

// treatsAllAsCurrent reports whether every pending entry is actionable at once.
func treatsAllAsCurrent(doc *repository.Document) bool {
	return doc.ApprovalOrder == repository.OrderParallel || doc.ActionType == repository.ActionAcknowledge
}

// IsActionable reports whether the pending entry a may be decided now.
func IsActionable(doc *repository.Document, approvals []*repository.Approval, a *repository.Approval) bool {
	if !a.IsPending() {
		return false
	}
	if treatsAllAsCurrent(doc) {
		return true
	}
	step, ok := CurrentStep(approvals, a.Cycle)
	return ok && a.Step == step
}

// CurrentApprovals returns the actionable pending entries of the latest cycle.
func CurrentApprovals(doc *repository.Document, approvals []*repository.Approval) []*repository.Approval {
	cycle := MaxCycle(approvals)
	var out []*repository.Approval
	for _, a := range approvals {
		if a.Cycle == cycle && IsActionable(doc, approvals, a) {
			out = append(out, a)
		}
	}
	return out
}

// CycleCollapsed reports whether cycle holds a rejected or returned entry.
func CycleCollapsed(approvals []*repository.Approval, cycle int) bool {
	for _, a := range approvals {
		if a.Cycle == cycle && a.Decision.IsNegative() {
			return true
		}
	}
	return false
}

// CycleComplete reports whether cycle has entries, none pending and none negative.
func CycleComplete(approvals []*repository.Approval, cycle int) bool {
	seen := false
	for _, a := range approvals {
		if a.Cycle != cycle {
			continue
		}
		seen = true
		if a.IsPending() || a.Decision.IsNegative() {
			return false
		}
	}
	return seen
}

// ── Ledger ──────────────────────────────────────────────────────────────────

// Ledger writes approval entries for one document.
type Ledger struct {
	store repository.ApprovalStore
}

// NewLedger creates a Ledger over store.
func NewLedger(store repository.ApprovalStore) *Ledger {
	return &Ledger{store: store}
}

// CreateAssignments get-or-creates a pending entry per assignment and returns
// the entries that did not exist before.
func (l *Ledger) CreateAssignments(ctx context.Context, doc *repository.Document, assignments []Assignment) ([]*repository.Approval, error) {
	var created []*repository.Approval
	for _, as := range assignments {
		a := &repository.Approval{
			DocumentID: doc.ID,
			ApproverID: as.ApproverID,
			Step:       as.Step,
			Cycle:      as.Cycle,
			Decision:   repository.DecisionPending,
			Deadline:   doc.Deadline,
			IsRequired: true,
		}
		ok, err := l.store.CreateApproval(ctx, a)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, a)
		}
	}
	return created, nil
}

// DecisionOutcome is what RecordDecision changed.
type DecisionOutcome struct {
	Approval  *repository.Approval
	Closed    int64
	Approvals []*repository.Approval
}

// RecordDecision applies kind for actorID. Only entries of the latest cycle
// count. Positive kinds and reject need the actor's pending entry to be
// current; return takes the actor's latest entry whatever its decision and
// needs a comment. Negative kinds close every other pending entry of the cycle.
func (l *Ledger) RecordDecision(ctx context.Context, doc *repository.Document, actorID string, kind DecisionKind, comment string, now time.Time) (*DecisionOutcome, error) {
	decision, ok := kind.Decision()
	if !ok {
		return nil, errors.InvalidInput("kind", "unknown decision kind: "+string(kind))
	}

	approvals, err := l.store.ListApprovals(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	cycle := MaxCycle(approvals)
	var target *repository.Approval
	if kind == KindReturn {
		target = latestFor(approvals, actorID, cycle)
		if target == nil {
			return nil, ErrNotAnApprover
		}
		if strings.TrimSpace(comment) == "" {
			return nil, ErrMissingComment
		}
	} else {
		target = pendingFor(approvals, actorID, cycle)
		if target == nil {
			return nil, ErrNotAnApprover
		}
		if !IsActionable(doc, approvals, target) {
			return nil, ErrNotCurrentStep
		}
	}

	decidedAt := now
	target.Decision = decision
	target.Comment = comment
	target.DecidedAt = &decidedAt
	if err := l.store.UpdateApprovalDecision(ctx, target); err != nil {
		return nil, err
	}

	out := &DecisionOutcome{Approval: target}
	if decision.IsNegative() {
		out.Closed, err = l.store.ClosePendingApprovals(ctx, doc.ID, target.Cycle, target.ID, decidedAt)
		if err != nil {
			return nil, err
		}
	}

	out.Approvals, err = l.store.ListApprovals(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pendingFor returns the actor's pending entry of cycle with the lowest step.
func pendingFor(approvals []*repository.Approval, actorID string, cycle int) *repository.Approval {
	var best *repository.Approval
	for _, a := range approvals {
		if a.ApproverID != actorID || a.Cycle != cycle || !a.IsPending() {
			continue
		}
		if best == nil || a.Step < best.Step {
			best = a
		}
	}
	return best
}

// latestFor returns the actor's most recently created entry of cycle.
func latestFor(approvals []*repository.Approval, actorID string, cycle int) *repository.Approval {
	var best *repository.Approval
	for _, a := range approvals {
		if a.ApproverID != actorID || a.Cycle != cycle {
			continue
		}
		if best == nil || !a.CreatedAt.Before(best.CreatedAt) {
			best = a
		}
	}
	return best
}
