package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

func TestStateMachine_Next(t *testing.T) {
	testCases := []struct {
		name       string
		status     repository.StatusCode
		actionType repository.ActionType
		archived   bool
		event      Event
		want       []repository.StatusCode
		wantErr    bool
	}{
		{name: "submit approve", status: repository.StatusDraft, actionType: repository.ActionApprove, event: EventSubmit, want: []repository.StatusCode{repository.StatusInReview}},
		{name: "submit acknowledge", status: repository.StatusDraft, actionType: repository.ActionAcknowledge, event: EventSubmit, want: []repository.StatusCode{repository.StatusInAcknowledgement}},
		{name: "submit execute", status: repository.StatusDraft, actionType: repository.ActionExecute, event: EventSubmit, want: []repository.StatusCode{repository.StatusInExecution}},
		{name: "complete execute", status: repository.StatusInExecution, actionType: repository.ActionExecute, event: EventComplete, want: []repository.StatusCode{repository.StatusExecuted}},
		{name: "reject in review", status: repository.StatusInReview, actionType: repository.ActionApprove, event: EventReject, want: []repository.StatusCode{repository.StatusReturned, repository.StatusDraft}},
		{name: "return final", status: repository.StatusApproved, actionType: repository.ActionApprove, event: EventReturn, want: []repository.StatusCode{repository.StatusReturned, repository.StatusDraft}},
		{name: "resubmit returned", status: repository.StatusReturned, actionType: repository.ActionApprove, event: EventResubmit, want: []repository.StatusCode{repository.StatusInReview}},
		{name: "resubmit draft fallback", status: repository.StatusDraft, actionType: repository.ActionAcknowledge, event: EventResubmit, want: []repository.StatusCode{repository.StatusInAcknowledgement}},
		{name: "reject final", status: repository.StatusApproved, actionType: repository.ActionApprove, event: EventReject, wantErr: true},
		{name: "complete draft", status: repository.StatusDraft, actionType: repository.ActionApprove, event: EventComplete, wantErr: true},
		{name: "submit in review", status: repository.StatusInReview, actionType: repository.ActionApprove, event: EventSubmit, wantErr: true},
		{name: "return archived", status: repository.StatusApproved, actionType: repository.ActionApprove, archived: true, event: EventReturn, wantErr: true},
		{name: "complete returned", status: repository.StatusReturned, actionType: repository.ActionApprove, event: EventComplete, wantErr: true},
		{name: "return returned", status: repository.StatusReturned, actionType: repository.ActionApprove, event: EventReturn, wantErr: true},
	}

	var m StateMachine
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := &repository.Document{Status: tc.status, ActionType: tc.actionType, IsArchived: tc.archived}
			got, err := m.Next(doc, tc.event)
			if tc.wantErr {
				assert.False(t, m.Can(doc, tc.event))
				assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, m.Can(doc, tc.event))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPhaseOf(t *testing.T) {
	assert.Equal(t, PhaseDraft, PhaseOf(repository.StatusDraft))
	assert.Equal(t, PhaseInProgress, PhaseOf(repository.StatusInAcknowledgement))
	assert.Equal(t, PhaseReturned, PhaseOf(repository.StatusReturned))
	assert.Equal(t, PhaseFinal, PhaseOf(repository.StatusExecuted))
	assert.Equal(t, "final", PhaseFinal.String())
}

func TestLookupStatusByName(t *testing.T) {
	testCases := []struct {
		name string
		want repository.StatusCode
		ok   bool
	}{
		{name: "Согласовано", want: repository.StatusApproved, ok: true},
		{name: "  на согласовании ", want: repository.StatusInReview, ok: true},
		{name: "На доработке", want: repository.StatusReturned, ok: true},
		{name: "Исполнен", want: repository.StatusExecuted, ok: true},
		{name: "Утверждено"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := LookupStatusByName(tc.name)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

type flakyStatusStore struct {
	fail   map[repository.StatusCode]bool
	stored []repository.DocumentStatus
}

func (s *flakyStatusStore) EnsureStatus(_ context.Context, st repository.DocumentStatus) error {
	if s.fail[st.Code] {
		return stderrors.New("insert failed")
	}
	s.stored = append(s.stored, st)
	return nil
}

func TestStatusVocabulary(t *testing.T) {
	ctx := context.Background()

	store := &flakyStatusStore{fail: map[repository.StatusCode]bool{repository.StatusReturned: true}}
	vocab := NewStatusVocabulary(store)

	code, err := vocab.EnsureFirst(ctx, returnedStatuses...)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, code)

	st, err := vocab.Ensure(ctx, repository.StatusAcknowledged)
	require.NoError(t, err)
	assert.True(t, st.IsFinal)
	assert.Equal(t, "Ознакомлено", st.Name)

	_, err = vocab.Ensure(ctx, repository.StatusReturned)
	assert.ErrorIs(t, err, ErrNoStatusAvailable)

	_, err = vocab.Ensure(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNoStatusAvailable)

	store.fail[repository.StatusDraft] = true
	_, err = vocab.EnsureFirst(ctx, returnedStatuses...)
	assert.ErrorIs(t, err, ErrNoStatusAvailable)
}
