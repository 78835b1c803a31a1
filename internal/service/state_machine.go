package service

import (
	"fmt"

	"github.com/anggasct/fluo"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// Event drives a document status transition.
type Event string

const (
	EventSubmit   Event = "submit"
	EventComplete Event = "complete"
	EventReject   Event = "reject"
	EventReturn   Event = "return"
	EventResubmit Event = "resubmit"
)

// Phase groups statuses that behave alike.
type Phase int

const (
	PhaseDraft Phase = iota
	PhaseInProgress
	PhaseReturned
	PhaseFinal
)

func (p Phase) String() string {
	switch p {
	case PhaseDraft:
		return "draft"
	case PhaseInProgress:
		return "in_progress"
	case PhaseReturned:
		return "returned"
	case PhaseFinal:
		return "final"
	}
	return "unknown"
}

// PhaseOf classifies a status code.
func PhaseOf(code repository.StatusCode) Phase {
	switch code {
	case repository.StatusDraft:
		return PhaseDraft
	case repository.StatusReturned:
		return PhaseReturned
	case repository.StatusApproved, repository.StatusAcknowledged, repository.StatusExecuted:
		return PhaseFinal
	}
	return PhaseInProgress
}

func phaseNamed(name string) (Phase, bool) {
	for _, p := range []Phase{PhaseDraft, PhaseInProgress, PhaseReturned, PhaseFinal} {
		if p.String() == name {
			return p, true
		}
	}
	return 0, false
}

// lifecycle is the whole document lifecycle. Draft also accepts resubmit
// because it is the fallback status of a collapsed cycle. Archived documents
// cannot be returned.
var lifecycle = newLifecycle()

func newLifecycle() fluo.MachineDefinition {
	var (
		draft      = PhaseDraft.String()
		inProgress = PhaseInProgress.String()
		returned   = PhaseReturned.String()
		final      = PhaseFinal.String()
	)

	builder := fluo.NewMachineDefinition()

	builder.State(draft).Initial().
		To(inProgress).On(string(EventSubmit)).
		To(inProgress).On(string(EventResubmit))

	builder.State(inProgress).
		To(final).On(string(EventComplete)).
		To(returned).On(string(EventReject)).
		To(returned).On(string(EventReturn))

	builder.State(returned).
		To(inProgress).On(string(EventResubmit))

	builder.State(final).
		To(returned).On(string(EventReturn)).Unless(isArchived)

	return builder.Build()
}

func isArchived(ctx fluo.Context) bool {
	doc, ok := ctx.GetEventData().(*repository.Document)
	return ok && doc.IsArchived
}

// StateMachine maps events to target statuses for a document's action type.
type StateMachine struct{}

// fire loads the document's phase into a fresh machine instance and handles
// event. It reports the phase the machine moved to.
func (StateMachine) fire(doc *repository.Document, event Event) (Phase, bool) {
	m := lifecycle.CreateInstance()
	if err := m.Start(); err != nil {
		return 0, false
	}
	if err := m.SetState(PhaseOf(doc.Status).String()); err != nil {
		return 0, false
	}
	res := m.HandleEvent(string(event), doc)
	if !res.Processed || res.Error != nil {
		return 0, false
	}
	return phaseNamed(res.CurrentState)
}

// Can reports whether event is legal from the document's current status.
func (m StateMachine) Can(doc *repository.Document, event Event) bool {
	_, ok := m.fire(doc, event)
	return ok
}

// Next returns the statuses to try, in order, for event. The first one is the
// target; the rest are fallbacks.
func (m StateMachine) Next(doc *repository.Document, event Event) ([]repository.StatusCode, error) {
	to, ok := m.fire(doc, event)
	if !ok {
		return nil, errors.Conflict(fmt.Sprintf("cannot %s a document in status %q", event, doc.Status))
	}

	switch to {
	case PhaseInProgress:
		code, err := InProgressStatus(doc.ActionType)
		if err != nil {
			return nil, err
		}
		return []repository.StatusCode{code}, nil
	case PhaseFinal:
		code, err := FinalStatus(doc.ActionType)
		if err != nil {
			return nil, err
		}
		return []repository.StatusCode{code}, nil
	default:
		return returnedStatuses, nil
	}
}
