package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/clock"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/tracing"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// WorkflowService is the document approval engine. Every mutation runs in one
// unit of work that locks the document; notifications go out after commit.
type WorkflowService struct {
	store    repository.Store
	notifier Notifier
	machine  StateMachine
	log      *logger.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store repository.Store, notifier Notifier, log *logger.Logger) *WorkflowService {
	return &WorkflowService{
		store:    store,
		notifier: notifier,
		log:      log,
	}
}

// Result is returned by every engine operation.
type Result struct {
	Document      *repository.Document
	Approvals     []*repository.Approval
	Notifications []Notification
}

// SubmitRequest creates a document and, unless Draft is set, starts its route.
type SubmitRequest struct {
	Title          string
	DocumentTypeID string
	AuthorID       string
	ResponsibleID  string
	Priority       repository.Priority
	Deadline       *time.Time
	Description    *string
	DeliveryMode   repository.DeliveryMode
	ApprovalOrder  repository.ApprovalOrder
	ManualRoute    []repository.Target
	ActionType     repository.ActionType
	Draft          bool
}

// SubmitDraftRequest starts the route of a draft. Empty fields keep the
// values stored on the document.
type SubmitDraftRequest struct {
	DocumentID    string
	ActorID       string
	ActionType    repository.ActionType
	ApprovalOrder repository.ApprovalOrder
	ManualRoute   []repository.Target
}

// DecisionRequest records one approver decision.
type DecisionRequest struct {
	DocumentID string
	ActorID    string
	Kind       DecisionKind
	Comment    string
}

// ResubmitRequest opens the next cycle after a rejection or return.
type ResubmitRequest struct {
	DocumentID    string
	ActorID       string
	ActionType    repository.ActionType
	ApprovalOrder repository.ApprovalOrder
	ManualRoute   []repository.Target
}

// ── Submit ──────────────────────────────────────────────────────────────────

// Submit validates req, allocates the registration number and creates the
// document. Non-draft documents get their cycle 1 assignments in the same unit
// of work; a route that cannot be expanded fails the whole submission.
func (s *WorkflowService) Submit(ctx context.Context, req *SubmitRequest) (res *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.Submit",
		attribute.String("document_type_id", req.DocumentTypeID),
		attribute.String("author_id", req.AuthorID),
	)
	defer func() { span.End(err) }()

	if err := s.validateSubmit(req); err != nil {
		return nil, err
	}

	res = &Result{}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetEmployee(ctx, req.AuthorID); err != nil {
			return err
		}

		now := clock.Now().In(clock.Location)
		seq, err := tx.NextRegistrationSequence(ctx, now.Year(), int(now.Month()))
		if err != nil {
			return err
		}

		doc := &repository.Document{
			RegistrationNumber: formatRegistrationNumber(now, seq),
			Title:              strings.TrimSpace(req.Title),
			DocumentTypeID:     req.DocumentTypeID,
			Status:             repository.StatusDraft,
			AuthorID:           req.AuthorID,
			ResponsibleID:      req.ResponsibleID,
			Priority:           req.Priority,
			Description:        req.Description,
			Deadline:           req.Deadline,
			DeliveryMode:       req.DeliveryMode,
			ApprovalOrder:      req.ApprovalOrder,
			ActionType:         req.ActionType,
			ManualRoute:        req.ManualRoute,
		}

		vocab := NewStatusVocabulary(tx)
		if _, err := vocab.Ensure(ctx, repository.StatusDraft); err != nil {
			return err
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		s.appendAudit(ctx, tx, doc, req.AuthorID, "created",
			fmt.Sprintf("Document %s created", doc.RegistrationNumber), nil)

		if !req.Draft {
			spec := RouteSpec{
				Mode:   doc.DeliveryMode,
				Order:  doc.ApprovalOrder,
				Manual: doc.ManualRoute,
			}
			notes, err := s.startCycle(ctx, tx, doc, spec, 1, req.AuthorID, EventSubmit)
			if err != nil {
				return err
			}
			res.Notifications = notes
		}

		return s.fillResult(ctx, tx, res, doc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", res.Document.ID).
		Str("registration_number", res.Document.RegistrationNumber).
		Str("status", string(res.Document.Status)).
		Int("approvals", len(res.Approvals)).
		Msg("Document submitted")

	s.dispatch(ctx, res.Notifications)
	return res, nil
}

func (s *WorkflowService) validateSubmit(req *SubmitRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return errors.InvalidInput("title", "title is required")
	}
	if req.DocumentTypeID == "" {
		return errors.InvalidInput("document_type_id", "document type is required")
	}
	if req.AuthorID == "" {
		return errors.InvalidInput("author_id", "author is required")
	}
	if req.ResponsibleID == "" {
		req.ResponsibleID = req.AuthorID
	}
	if req.Priority == "" {
		req.Priority = repository.PriorityNormal
	}
	if !req.Priority.Valid() {
		return errors.InvalidInput("priority", fmt.Sprintf("unknown priority %q", req.Priority))
	}
	if req.ActionType == "" {
		req.ActionType = repository.ActionApprove
	}
	if !req.ActionType.Valid() {
		return errors.InvalidInput("action_type", fmt.Sprintf("unknown action type %q", req.ActionType))
	}
	if req.DeliveryMode == "" {
		req.DeliveryMode = repository.DeliveryAuto
	}
	if !req.DeliveryMode.Valid() {
		return errors.InvalidInput("delivery_mode", fmt.Sprintf("unknown delivery mode %q", req.DeliveryMode))
	}
	if req.ApprovalOrder == "" {
		req.ApprovalOrder = repository.OrderSequential
	}
	if !req.ApprovalOrder.Valid() {
		return errors.InvalidInput("approval_order", fmt.Sprintf("unknown approval order %q", req.ApprovalOrder))
	}
	if req.DeliveryMode == repository.DeliveryManual && len(req.ManualRoute) == 0 && !req.Draft {
		return ErrEmptyManualRoute
	}
	return nil
}

// SubmitDraft starts the route of a document created as a draft.
func (s *WorkflowService) SubmitDraft(ctx context.Context, req *SubmitDraftRequest) (res *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.SubmitDraft",
		attribute.String("document_id", req.DocumentID),
		attribute.String("actor_id", req.ActorID),
	)
	defer func() { span.End(err) }()

	res = &Result{}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		doc, err := tx.LockDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if doc.AuthorID != req.ActorID {
			return ErrForbiddenActor
		}

		existing, err := tx.ListApprovals(ctx, doc.ID)
		if err != nil {
			return err
		}
		if doc.Status != repository.StatusDraft || len(existing) > 0 {
			return errors.Conflict("document is not a draft")
		}

		spec, err := applyOverrides(doc, req.ActionType, req.ApprovalOrder, req.ManualRoute)
		if err != nil {
			return err
		}

		notes, err := s.startCycle(ctx, tx, doc, spec, 1, req.ActorID, EventSubmit)
		if err != nil {
			return err
		}
		res.Notifications = notes
		return s.fillResult(ctx, tx, res, doc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", req.DocumentID).
		Str("status", string(res.Document.Status)).
		Msg("Draft submitted")

	s.dispatch(ctx, res.Notifications)
	return res, nil
}

// ── Decisions ───────────────────────────────────────────────────────────────

// RecordDecision applies an approver decision and moves the document status
// when the decision completes or collapses the cycle.
func (s *WorkflowService) RecordDecision(ctx context.Context, req *DecisionRequest) (res *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.RecordDecision",
		attribute.String("document_id", req.DocumentID),
		attribute.String("actor_id", req.ActorID),
		attribute.String("kind", string(req.Kind)),
	)
	defer func() { span.End(err) }()

	decision, ok := req.Kind.Decision()
	if !ok {
		return nil, errors.InvalidInput("kind", fmt.Sprintf("unknown decision kind %q", req.Kind))
	}

	res = &Result{}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		doc, err := tx.LockDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}

		if decision.IsNegative() && !s.machine.Can(doc, collapseEvent(req.Kind)) {
			return ErrDecisionClosed
		}

		now := clock.Now()
		outcome, err := NewLedger(tx).RecordDecision(ctx, doc, req.ActorID, req.Kind, req.Comment, now)
		if err != nil {
			return err
		}

		before := doc.Status
		details := map[string]interface{}{
			"cycle":         outcome.Approval.Cycle,
			"step":          outcome.Approval.Step,
			"status_before": string(before),
		}

		if decision.IsNegative() {
			notes, err := s.collapse(ctx, tx, doc, req, outcome, now)
			if err != nil {
				return err
			}
			res.Notifications = append(res.Notifications, notes...)
			details["closed"] = outcome.Closed
		} else {
			notes, err := s.advance(ctx, tx, doc, req.ActorID, outcome)
			if err != nil {
				return err
			}
			res.Notifications = append(res.Notifications, notes...)
		}

		details["status_after"] = string(doc.Status)
		if req.Comment != "" {
			details["comment"] = req.Comment
		}
		s.appendAudit(ctx, tx, doc, req.ActorID, string(decision),
			fmt.Sprintf("Decision %s at step %d", decision, outcome.Approval.Step), details)
		if before != doc.Status {
			s.appendAudit(ctx, tx, doc, req.ActorID, "status_change",
				fmt.Sprintf("Status changed from %s to %s", before.Name(), doc.Status.Name()),
				map[string]interface{}{"status_before": string(before), "status_after": string(doc.Status)})
		}

		return s.fillResult(ctx, tx, res, doc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", req.DocumentID).
		Str("actor_id", req.ActorID).
		Str("decision", string(decision)).
		Str("status", string(res.Document.Status)).
		Msg("Decision recorded")

	s.dispatch(ctx, res.Notifications)
	return res, nil
}

func collapseEvent(kind DecisionKind) Event {
	if kind == KindReturn {
		return EventReturn
	}
	return EventReject
}

// collapse moves the document to the returned status after a reject or return.
func (s *WorkflowService) collapse(ctx context.Context, tx repository.Tx, doc *repository.Document, req *DecisionRequest, outcome *DecisionOutcome, now time.Time) ([]Notification, error) {
	event := collapseEvent(req.Kind)
	candidates, err := s.machine.Next(doc, event)
	if err != nil {
		return nil, err
	}
	code, err := NewStatusVocabulary(tx).EnsureFirst(ctx, candidates...)
	if err != nil {
		return nil, err
	}
	doc.Status = code

	var notes []Notification

	comment := req.Comment
	decidedAt := now
	doc.LastRejectionComment = &comment
	doc.LastRejectionAt = &decidedAt
	if event == EventReturn {
		doc.ActualDeadline = nil
		notes = append(notes, returnedNotification(doc, req.ActorID))
	}

	if err := tx.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return notes, nil
}

// advance finishes the document when the cycle is complete, otherwise notifies
// approvers whose step became current.
func (s *WorkflowService) advance(ctx context.Context, tx repository.Tx, doc *repository.Document, actorID string, outcome *DecisionOutcome) ([]Notification, error) {
	cycle := outcome.Approval.Cycle
	if cycle != MaxCycle(outcome.Approvals) {
		return nil, nil
	}

	if CycleComplete(outcome.Approvals, cycle) {
		if !s.machine.Can(doc, EventComplete) {
			return nil, nil
		}
		candidates, err := s.machine.Next(doc, EventComplete)
		if err != nil {
			return nil, err
		}
		code, err := NewStatusVocabulary(tx).EnsureFirst(ctx, candidates...)
		if err != nil {
			return nil, err
		}
		doc.Status = code
		if doc.ActualDeadline == nil {
			today := clock.Today()
			doc.ActualDeadline = &today
		}
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if treatsAllAsCurrent(doc) {
		return nil, nil
	}
	step, ok := CurrentStep(outcome.Approvals, cycle)
	if !ok || step <= outcome.Approval.Step {
		return nil, nil
	}

	var notes []Notification
	for _, a := range outcome.Approvals {
		if a.Cycle == cycle && a.Step == step && a.IsPending() {
			notes = append(notes, newDocumentNotification(doc, a.ApproverID, actorID, NotifyNextStep))
		}
	}
	return notes, nil
}

// ── Resubmit ────────────────────────────────────────────────────────────────

// Resubmit opens cycle max+1 for a document whose latest cycle was rejected or
// returned. Only the author may resubmit.
func (s *WorkflowService) Resubmit(ctx context.Context, req *ResubmitRequest) (res *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.Resubmit",
		attribute.String("document_id", req.DocumentID),
		attribute.String("actor_id", req.ActorID),
	)
	defer func() { span.End(err) }()

	res = &Result{}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		doc, err := tx.LockDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if doc.AuthorID != req.ActorID {
			return ErrForbiddenActor
		}

		approvals, err := tx.ListApprovals(ctx, doc.ID)
		if err != nil {
			return err
		}
		last := MaxCycle(approvals)
		if last == 0 || !CycleCollapsed(approvals, last) {
			return ErrNotReturned
		}

		spec, err := applyOverrides(doc, req.ActionType, req.ApprovalOrder, req.ManualRoute)
		if err != nil {
			return err
		}

		notes, err := s.startCycle(ctx, tx, doc, spec, last+1, req.ActorID, EventResubmit)
		if err != nil {
			return err
		}
		res.Notifications = notes
		return s.fillResult(ctx, tx, res, doc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", req.DocumentID).
		Int("cycle", MaxCycle(res.Approvals)).
		Msg("Document resubmitted")

	s.dispatch(ctx, res.Notifications)
	return res, nil
}

// applyOverrides copies request overrides onto doc and builds the route spec.
func applyOverrides(doc *repository.Document, actionType repository.ActionType, order repository.ApprovalOrder, manual []repository.Target) (RouteSpec, error) {
	if actionType != "" {
		if !actionType.Valid() {
			return RouteSpec{}, errors.InvalidInput("action_type", fmt.Sprintf("unknown action type %q", actionType))
		}
		doc.ActionType = actionType
	}
	spec := RouteSpec{Mode: doc.DeliveryMode, Order: doc.ApprovalOrder}
	if order != "" {
		if !order.Valid() {
			return RouteSpec{}, errors.InvalidInput("approval_order", fmt.Sprintf("unknown approval order %q", order))
		}
		spec.Order = order
		spec.OrderOverride = true
	}
	if len(manual) > 0 && doc.DeliveryMode == repository.DeliveryManual {
		doc.ManualRoute = manual
	}
	spec.Manual = doc.ManualRoute
	return spec, nil
}

// startCycle expands the route for cycle, moves the document into its
// in-progress status and seeds the ledger. It returns notifications for the
// newly created entries that are current.
func (s *WorkflowService) startCycle(ctx context.Context, tx repository.Tx, doc *repository.Document, spec RouteSpec, cycle int, actorID string, event Event) ([]Notification, error) {
	expansion, err := NewRouteExpander(tx, NewResolver(tx)).Expand(ctx, doc, spec, cycle)
	if err != nil {
		return nil, err
	}

	candidates, err := s.machine.Next(doc, event)
	if err != nil {
		return nil, err
	}
	code, err := NewStatusVocabulary(tx).EnsureFirst(ctx, candidates...)
	if err != nil {
		return nil, err
	}

	before := doc.Status
	doc.Status = code
	doc.ApprovalOrder = expansion.Order
	doc.ActualDeadline = nil
	if err := tx.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}

	created, err := NewLedger(tx).CreateAssignments(ctx, doc, expansion.Assignments)
	if err != nil {
		return nil, err
	}
	approvals, err := tx.ListApprovals(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	isNew := make(map[string]bool, len(created))
	for _, a := range created {
		isNew[a.ID] = true
	}
	var notes []Notification
	for _, a := range CurrentApprovals(doc, approvals) {
		if isNew[a.ID] {
			notes = append(notes, newDocumentNotification(doc, a.ApproverID, actorID, NotifyNewDocument))
		}
	}

	action := "submitted"
	if event == EventResubmit {
		action = "resubmitted"
	}
	s.appendAudit(ctx, tx, doc, actorID, action,
		fmt.Sprintf("Route started for cycle %d with %d approvers", cycle, len(created)),
		map[string]interface{}{
			"cycle":          cycle,
			"approval_order": string(doc.ApprovalOrder),
			"status_before":  string(before),
			"status_after":   string(doc.Status),
		})

	return notes, nil
}

// ── Archive ─────────────────────────────────────────────────────────────────

// Archive hides a finished document. Archiving an archived document succeeds
// without changes.
func (s *WorkflowService) Archive(ctx context.Context, documentID, actorID string) (*Result, error) {
	return s.setArchived(ctx, documentID, actorID, true)
}

// Unarchive reverses Archive.
func (s *WorkflowService) Unarchive(ctx context.Context, documentID, actorID string) (*Result, error) {
	return s.setArchived(ctx, documentID, actorID, false)
}

func (s *WorkflowService) setArchived(ctx context.Context, documentID, actorID string, archived bool) (res *Result, err error) {
	action, spanName := "archived", "workflow.Archive"
	if !archived {
		action, spanName = "unarchived", "workflow.Unarchive"
	}
	ctx, span := tracing.StartSpan(ctx, spanName,
		attribute.String("document_id", documentID),
		attribute.String("actor_id", actorID),
	)
	defer func() { span.End(err) }()

	res = &Result{}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		doc, err := tx.LockDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.AuthorID != actorID {
			return ErrForbiddenActor
		}

		if doc.IsArchived != archived {
			if archived && !doc.Status.IsFinal() {
				return ErrNotFinal
			}
			doc.IsArchived = archived
			if err := tx.UpdateDocument(ctx, doc); err != nil {
				return err
			}
			s.appendAudit(ctx, tx, doc, actorID, action, "Document "+action, nil)
		}
		return s.fillResult(ctx, tx, res, doc)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ── Queries ─────────────────────────────────────────────────────────────────

// GetDocument returns a document with its ledger.
func (s *WorkflowService) GetDocument(ctx context.Context, documentID string) (*Result, error) {
	res := &Result{}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		doc, err := tx.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		return s.fillResult(ctx, tx, res, doc)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListApprovals returns every ledger entry of a document.
func (s *WorkflowService) ListApprovals(ctx context.Context, documentID string) ([]*repository.Approval, error) {
	res, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return res.Approvals, nil
}

// PendingForApprover returns the entries approverID can decide right now.
func (s *WorkflowService) PendingForApprover(ctx context.Context, approverID string) ([]*repository.Approval, error) {
	var out []*repository.Approval
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		pending, err := tx.ListPendingForApprover(ctx, approverID)
		if err != nil {
			return err
		}

		docs := make(map[string]*repository.Document)
		ledgers := make(map[string][]*repository.Approval)
		for _, a := range pending {
			doc, ok := docs[a.DocumentID]
			if !ok {
				if doc, err = tx.GetDocument(ctx, a.DocumentID); err != nil {
					return err
				}
				docs[a.DocumentID] = doc
				if ledgers[a.DocumentID], err = tx.ListApprovals(ctx, a.DocumentID); err != nil {
					return err
				}
			}
			if IsActionable(doc, ledgers[a.DocumentID], a) {
				out = append(out, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the action log of a document.
func (s *WorkflowService) History(ctx context.Context, documentID string) ([]*repository.ActionLogEntry, error) {
	var out []*repository.ActionLogEntry
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetDocument(ctx, documentID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListActionLog(ctx, documentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── Internal helpers ────────────────────────────────────────────────────────

func (s *WorkflowService) fillResult(ctx context.Context, tx repository.Tx, res *Result, doc *repository.Document) error {
	approvals, err := tx.ListApprovals(ctx, doc.ID)
	if err != nil {
		return err
	}
	res.Document = doc
	res.Approvals = approvals
	return nil
}

// dispatch sends notifications and logs failures (never returns error).
func (s *WorkflowService) dispatch(ctx context.Context, notes []Notification) {
	for _, n := range notes {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn().Err(err).
				Str("document_id", n.DocumentID).
				Str("recipient_id", n.RecipientID).
				Msg("Failed to deliver notification")
		}
	}
}

// appendAudit writes an action log entry and logs a warning on failure (never returns error).
func (s *WorkflowService) appendAudit(ctx context.Context, tx repository.AuditStore, doc *repository.Document, actorID, action, description string, details map[string]interface{}) {
	entry := &repository.ActionLogEntry{
		DocumentID:  doc.ID,
		ActorID:     actorID,
		Action:      action,
		Description: description,
		Details:     details,
	}
	if err := tx.AppendActionLog(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("document_id", doc.ID).
			Str("action", action).
			Msg("Failed to write action log entry")
	}
}

func formatRegistrationNumber(t time.Time, seq int) string {
	return fmt.Sprintf("%04d-%02d-%04d", t.Year(), int(t.Month()), seq)
}
