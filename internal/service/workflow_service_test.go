package service

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/clock"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// invoiceRoute is the usual two step route: user A, then department B with
// two members.
type invoiceRoute struct {
	author, a, b1, b2 string
	deptB             string
	docType           string
}

func newInvoiceRoute(t *testing.T, f *fixture, order repository.ApprovalOrder) invoiceRoute {
	t.Helper()
	r := invoiceRoute{}
	r.author = f.employee("Author", "")
	r.a = f.employee("Alekseev", "")
	r.deptB = f.department("B")
	r.b1 = f.employee("Belov", r.deptB)
	r.b2 = f.employee("Bykov", r.deptB)
	r.docType = f.routeTemplate(t, "invoice", order,
		step(1, repository.UserTarget(r.a)),
		step(2, repository.DepartmentTarget(r.deptB)),
	)
	return r
}

func TestWorkflowService_InvoiceApprovedEndToEnd(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)

	res := f.submit(t, &SubmitRequest{Title: "Invoice", DocumentTypeID: r.docType, AuthorID: r.author})
	doc := res.Document

	assert.Equal(t, "2026-03-0001", doc.RegistrationNumber)
	assert.Equal(t, repository.StatusInReview, doc.Status)
	assert.Equal(t, []string{r.a, r.b1, r.b2}, approversOf(res.Approvals, 1))
	assert.Equal(t, []int{1, 2, 2}, []int{res.Approvals[0].Step, res.Approvals[1].Step, res.Approvals[2].Step})
	assert.Equal(t, []string{r.a}, recipients(f.notifier.take()))

	pending, err := f.workflow.PendingForApprover(f.ctx, r.b1)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: r.b1, Kind: KindApprove})
	assert.ErrorIs(t, err, ErrNotCurrentStep)

	res = f.decide(t, doc.ID, r.a, KindApprove, "")
	assert.Equal(t, repository.StatusInReview, res.Document.Status)
	notes := f.notifier.take()
	assert.Equal(t, []string{r.b1, r.b2}, recipients(notes))
	for _, n := range notes {
		assert.Equal(t, NotifyNextStep, n.Kind)
	}

	pending, err = f.workflow.PendingForApprover(f.ctx, r.b1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	res = f.decide(t, doc.ID, r.b1, KindApprove, "")
	assert.Equal(t, repository.StatusInReview, res.Document.Status)
	assert.Empty(t, f.notifier.take())

	res = f.decide(t, doc.ID, r.b2, KindApprove, "ok")
	assert.Equal(t, repository.StatusApproved, res.Document.Status)
	require.NotNil(t, res.Document.ActualDeadline)
	assert.True(t, clock.Today().Equal(*res.Document.ActualDeadline))

	st, ok := f.store.Status(repository.StatusApproved)
	require.True(t, ok)
	assert.True(t, st.IsFinal)

	history, err := f.workflow.History(f.ctx, doc.ID)
	require.NoError(t, err)
	var actions []string
	for _, e := range history {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"created", "submitted", "approved", "approved", "approved", "status_change"}, actions)
}

func TestWorkflowService_SubmitValidation(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)

	testCases := []struct {
		name  string
		req   SubmitRequest
		field string
	}{
		{name: "missing title", req: SubmitRequest{Title: "  ", DocumentTypeID: r.docType, AuthorID: r.author}, field: "title"},
		{name: "missing type", req: SubmitRequest{Title: "x", AuthorID: r.author}, field: "document_type_id"},
		{name: "missing author", req: SubmitRequest{Title: "x", DocumentTypeID: r.docType}, field: "author_id"},
		{name: "bad priority", req: SubmitRequest{Title: "x", DocumentTypeID: r.docType, AuthorID: r.author, Priority: "asap"}, field: "priority"},
		{name: "bad action type", req: SubmitRequest{Title: "x", DocumentTypeID: r.docType, AuthorID: r.author, ActionType: "sign"}, field: "action_type"},
		{name: "bad order", req: SubmitRequest{Title: "x", DocumentTypeID: r.docType, AuthorID: r.author, ApprovalOrder: "random"}, field: "approval_order"},
		{name: "empty manual route", req: SubmitRequest{Title: "x", DocumentTypeID: r.docType, AuthorID: r.author, DeliveryMode: repository.DeliveryManual}, field: "manual_route"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := f.workflow.Submit(f.ctx, &req)
			require.Error(t, err)
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, errors.ErrCodeInvalidInput, appErr.Code)
			assert.Equal(t, tc.field, appErr.Field)
		})
	}

	_, err := f.workflow.Submit(f.ctx, &SubmitRequest{Title: "x", DocumentTypeID: r.docType, AuthorID: "ghost"})
	assert.True(t, errors.IsNotFound(err))
	assert.Zero(t, f.store.ApprovalCount())
}

func TestWorkflowService_SubmitFailsAtomically(t *testing.T) {
	f := newFixture(t)
	author := f.employee("Author", "")
	onlyAuthor := f.routeTemplate(t, "memo", repository.OrderSequential, step(1, repository.UserTarget(author)))

	_, err := f.workflow.Submit(f.ctx, &SubmitRequest{Title: "Memo", DocumentTypeID: onlyAuthor, AuthorID: author})
	assert.ErrorIs(t, err, ErrNoApprovers)

	_, err = f.workflow.Submit(f.ctx, &SubmitRequest{Title: "Memo", DocumentTypeID: "no-template", AuthorID: author})
	assert.ErrorIs(t, err, ErrNoActiveRoute)
	assert.Zero(t, f.store.ApprovalCount())

	// Neither failure consumed a registration number.
	a := f.employee("Alekseev", "")
	docType := f.routeTemplate(t, "order", repository.OrderSequential, step(1, repository.UserTarget(a)))
	res := f.submit(t, &SubmitRequest{DocumentTypeID: docType, AuthorID: author})
	assert.Equal(t, "2026-03-0001", res.Document.RegistrationNumber)
}

func TestWorkflowService_RegistrationNumbers(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.workflow.Submit(f.ctx, &SubmitRequest{
				Title:          fmt.Sprintf("Invoice %d", i),
				DocumentTypeID: r.docType,
				AuthorID:       r.author,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, res.Document.RegistrationNumber)
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	sort.Strings(numbers)
	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("2026-03-%04d", i+1)
	}
	assert.Equal(t, want, numbers)

	// A new month restarts the sequence.
	pinClock(t, time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC))
	res := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author})
	assert.Equal(t, "2026-04-0001", res.Document.RegistrationNumber)
}

func TestWorkflowService_RejectAndResubmit(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	doc := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author}).Document
	f.notifier.take()

	_, err := f.workflow.Resubmit(f.ctx, &ResubmitRequest{DocumentID: doc.ID, ActorID: r.author})
	assert.ErrorIs(t, err, ErrNotReturned)

	res := f.decide(t, doc.ID, r.a, KindReject, "wrong amount")
	assert.Equal(t, repository.StatusReturned, res.Document.Status)
	require.NotNil(t, res.Document.LastRejectionComment)
	assert.Equal(t, "wrong amount", *res.Document.LastRejectionComment)
	assert.Empty(t, res.Notifications)
	for _, id := range []string{r.b1, r.b2} {
		a := findApproval(res.Approvals, id, 1)
		require.NotNil(t, a)
		assert.Equal(t, repository.DecisionReturned, a.Decision)
		assert.NotNil(t, a.DecidedAt)
	}
	assert.Equal(t, repository.DecisionRejected, findApproval(res.Approvals, r.a, 1).Decision)

	_, err = f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: r.b1, Kind: KindApprove})
	assert.ErrorIs(t, err, ErrNotAnApprover)

	_, err = f.workflow.Resubmit(f.ctx, &ResubmitRequest{DocumentID: doc.ID, ActorID: r.a})
	assert.ErrorIs(t, err, ErrForbiddenActor)

	res, err = f.workflow.Resubmit(f.ctx, &ResubmitRequest{DocumentID: doc.ID, ActorID: r.author})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReview, res.Document.Status)
	assert.Equal(t, 2, MaxCycle(res.Approvals))
	assert.Equal(t, []string{r.a, r.b1, r.b2}, approversOf(res.Approvals, 2))
	assert.Len(t, approversOf(res.Approvals, 1), 3, "cycle 1 is kept")
	assert.Equal(t, []string{r.a}, recipients(f.notifier.take()))

	_, err = f.workflow.Resubmit(f.ctx, &ResubmitRequest{DocumentID: doc.ID, ActorID: r.author})
	assert.ErrorIs(t, err, ErrNotReturned)

	history, err := f.workflow.History(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "resubmitted", history[len(history)-1].Action)
}

func TestWorkflowService_Return(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	doc := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author}).Document
	f.decide(t, doc.ID, r.a, KindApprove, "")
	f.notifier.take()

	_, err := f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: r.b1, Kind: KindReturn, Comment: "  "})
	assert.ErrorIs(t, err, ErrMissingComment)

	res := f.decide(t, doc.ID, r.b1, KindReturn, "attach the contract")
	assert.Equal(t, repository.StatusReturned, res.Document.Status)
	assert.Nil(t, res.Document.ActualDeadline)
	assert.Equal(t, repository.DecisionReturned, findApproval(res.Approvals, r.b2, 1).Decision)

	notes := f.notifier.take()
	require.Len(t, notes, 1)
	assert.Equal(t, r.author, notes[0].RecipientID)
	assert.Equal(t, NotifyReturned, notes[0].Kind)
}

func TestWorkflowService_ReturnAfterFinal(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	doc := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author}).Document
	f.decide(t, doc.ID, r.a, KindApprove, "")
	f.decide(t, doc.ID, r.b1, KindApprove, "")
	res := f.decide(t, doc.ID, r.b2, KindApprove, "")
	require.Equal(t, repository.StatusApproved, res.Document.Status)
	require.NotNil(t, res.Document.ActualDeadline)

	res = f.decide(t, doc.ID, r.a, KindReturn, "amount changed")
	assert.Equal(t, repository.StatusReturned, res.Document.Status)
	assert.Nil(t, res.Document.ActualDeadline)

	res, err := f.workflow.Resubmit(f.ctx, &ResubmitRequest{DocumentID: doc.ID, ActorID: r.author})
	require.NoError(t, err)
	assert.Equal(t, 2, MaxCycle(res.Approvals))
}

func TestWorkflowService_ReturnOnlyFromLatestCycle(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	x := f.employee("Xenofontov", "")

	doc := f.submit(t, &SubmitRequest{
		DocumentTypeID: r.docType,
		AuthorID:       r.author,
		DeliveryMode:   repository.DeliveryManual,
		ManualRoute:    []repository.Target{repository.UserTarget(x), repository.UserTarget(r.a)},
	}).Document
	f.decide(t, doc.ID, x, KindApprove, "")
	f.decide(t, doc.ID, r.a, KindReject, "wrong amount")

	// The cycle is already collapsed.
	_, err := f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: x, Kind: KindReturn, Comment: "again"})
	assert.ErrorIs(t, err, ErrDecisionClosed)

	res, err := f.workflow.Resubmit(f.ctx, &ResubmitRequest{
		DocumentID:  doc.ID,
		ActorID:     r.author,
		ManualRoute: []repository.Target{repository.UserTarget(r.a)},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Document.LastRejectionComment)
	assert.Equal(t, "wrong amount", *res.Document.LastRejectionComment)
	f.notifier.take()

	// x only sits in cycle 1.
	_, err = f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: x, Kind: KindReturn, Comment: "stale"})
	assert.ErrorIs(t, err, ErrNotAnApprover)
	assert.Empty(t, f.notifier.take())

	got, err := f.workflow.GetDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReview, got.Document.Status)
	assert.Equal(t, repository.DecisionApproved, findApproval(got.Approvals, x, 1).Decision)
	assert.Equal(t, repository.DecisionPending, findApproval(got.Approvals, r.a, 2).Decision)

	res = f.decide(t, doc.ID, r.a, KindApprove, "")
	assert.Equal(t, repository.StatusApproved, res.Document.Status)
}

func TestWorkflowService_ParallelOrder(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderParallel)

	res := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author})
	for _, a := range res.Approvals {
		assert.Equal(t, 1, a.Step)
	}
	assert.ElementsMatch(t, []string{r.a, r.b1, r.b2}, recipients(f.notifier.take()))

	res = f.decide(t, res.Document.ID, r.b2, KindApprove, "")
	assert.Equal(t, repository.StatusInReview, res.Document.Status)
	f.decide(t, res.Document.ID, r.b1, KindApprove, "")
	res = f.decide(t, res.Document.ID, r.a, KindApprove, "")
	assert.Equal(t, repository.StatusApproved, res.Document.Status)
}

func TestWorkflowService_OrderOverride(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)

	doc := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author, Draft: true}).Document
	res, err := f.workflow.SubmitDraft(f.ctx, &SubmitDraftRequest{
		DocumentID:    doc.ID,
		ActorID:       r.author,
		ApprovalOrder: repository.OrderParallel,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.OrderParallel, res.Document.ApprovalOrder)
	f.decide(t, doc.ID, r.b1, KindApprove, "")
}

func TestWorkflowService_DraftAndAcknowledge(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)

	res := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author, Draft: true})
	doc := res.Document
	assert.Equal(t, repository.StatusDraft, doc.Status)
	assert.Empty(t, res.Approvals)
	assert.Empty(t, f.notifier.take())

	_, err := f.workflow.SubmitDraft(f.ctx, &SubmitDraftRequest{DocumentID: doc.ID, ActorID: r.a})
	assert.ErrorIs(t, err, ErrForbiddenActor)

	res, err = f.workflow.SubmitDraft(f.ctx, &SubmitDraftRequest{
		DocumentID: doc.ID,
		ActorID:    r.author,
		ActionType: repository.ActionAcknowledge,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInAcknowledgement, res.Document.Status)
	assert.ElementsMatch(t, []string{r.a, r.b1, r.b2}, recipients(f.notifier.take()))

	_, err = f.workflow.SubmitDraft(f.ctx, &SubmitDraftRequest{DocumentID: doc.ID, ActorID: r.author})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	// Acknowledgement lets everyone act at once, whatever the step.
	f.decide(t, doc.ID, r.b2, KindAcknowledge, "")
	f.decide(t, doc.ID, r.a, KindAcknowledge, "")
	res = f.decide(t, doc.ID, r.b1, KindAcknowledge, "")
	assert.Equal(t, repository.StatusAcknowledged, res.Document.Status)
}

func TestWorkflowService_ManualRoute(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	inactive := f.store.AddEmployee(repository.Employee{LastName: "Gone", IsActive: false})

	res := f.submit(t, &SubmitRequest{
		DocumentTypeID: r.docType,
		AuthorID:       r.author,
		DeliveryMode:   repository.DeliveryManual,
		ManualRoute: []repository.Target{
			repository.UserTarget(inactive),
			repository.UserTarget("missing"),
			repository.UserTarget(r.a),
			repository.DepartmentTarget(r.deptB),
			repository.UserTarget(r.a),
			repository.UserTarget(r.author),
		},
	})

	require.Len(t, res.Approvals, 3)
	assert.Equal(t, []string{r.a, r.b1, r.b2}, approversOf(res.Approvals, 1))
	assert.Equal(t, 3, res.Approvals[0].Step)
	assert.Equal(t, 4, res.Approvals[1].Step)
	assert.Equal(t, 4, res.Approvals[2].Step)
	assert.Equal(t, []string{r.a}, recipients(res.Notifications))

	_, err := f.workflow.Submit(f.ctx, &SubmitRequest{
		Title:          "bad",
		DocumentTypeID: r.docType,
		AuthorID:       r.author,
		DeliveryMode:   repository.DeliveryManual,
		ManualRoute:    []repository.Target{{Kind: "group", ID: "x"}},
	})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestWorkflowService_AbsentApproverIsReplaced(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	sub := f.employee("Substitute", "")

	end := fixedNow.AddDate(0, 0, 7)
	_, err := f.directory.CreateReplacement(f.ctx, &ReplacementRequest{
		AbsentEmployeeID:      r.a,
		ReplacementEmployeeID: sub,
		Reason:                repository.ReasonVacation,
		StartDate:             &fixedNow,
		EndDate:               &end,
	})
	require.NoError(t, err)

	res := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author})
	assert.Equal(t, []string{sub, r.b1, r.b2}, approversOf(res.Approvals, 1))
}

func TestWorkflowService_RecordDecisionErrors(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	doc := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author}).Document
	stranger := f.employee("Stranger", "")

	_, err := f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: r.a, Kind: "sign"})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: stranger, Kind: KindApprove})
	assert.ErrorIs(t, err, ErrNotAnApprover)

	_, err = f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: "missing", ActorID: r.a, Kind: KindApprove})
	assert.True(t, errors.IsNotFound(err))
}

func TestWorkflowService_Archive(t *testing.T) {
	f := newFixture(t)
	r := newInvoiceRoute(t, f, repository.OrderSequential)
	doc := f.submit(t, &SubmitRequest{DocumentTypeID: r.docType, AuthorID: r.author}).Document

	_, err := f.workflow.Archive(f.ctx, doc.ID, r.author)
	assert.ErrorIs(t, err, ErrNotFinal)

	f.decide(t, doc.ID, r.a, KindApprove, "")
	f.decide(t, doc.ID, r.b1, KindApprove, "")
	f.decide(t, doc.ID, r.b2, KindApprove, "")

	_, err = f.workflow.Archive(f.ctx, doc.ID, r.a)
	assert.ErrorIs(t, err, ErrForbiddenActor)

	res, err := f.workflow.Archive(f.ctx, doc.ID, r.author)
	require.NoError(t, err)
	assert.True(t, res.Document.IsArchived)

	res, err = f.workflow.Archive(f.ctx, doc.ID, r.author)
	require.NoError(t, err)
	assert.True(t, res.Document.IsArchived)

	_, err = f.workflow.RecordDecision(f.ctx, &DecisionRequest{DocumentID: doc.ID, ActorID: r.a, Kind: KindReturn, Comment: "amount changed"})
	assert.ErrorIs(t, err, ErrDecisionClosed)
	got, err := f.workflow.GetDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, got.Document.Status)
	assert.True(t, got.Document.IsArchived)

	res, err = f.workflow.Unarchive(f.ctx, doc.ID, r.author)
	require.NoError(t, err)
	assert.False(t, res.Document.IsArchived)

	history, err := f.workflow.History(f.ctx, doc.ID)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, e := range history {
		counts[e.Action]++
	}
	assert.Equal(t, 1, counts["archived"])
	assert.Equal(t, 1, counts["unarchived"])
}

func TestFormatRegistrationNumber(t *testing.T) {
	assert.Equal(t, "2026-01-0042", formatRegistrationNumber(time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), 42))
	assert.Equal(t, "2026-12-12345", formatRegistrationNumber(time.Date(2026, time.December, 5, 0, 0, 0, 0, time.UTC), 12345))
}
