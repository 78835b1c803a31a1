package service

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// InProgressStatus returns the status a document takes while its route for
// actionType is running.
func InProgressStatus(actionType repository.ActionType) (repository.StatusCode, error) {
	switch actionType {
	case repository.ActionApprove:
		return repository.StatusInReview, nil
	case repository.ActionAcknowledge:
		return repository.StatusInAcknowledgement, nil
	case repository.ActionExecute:
		return repository.StatusInExecution, nil
	}
	return "", ErrNoStatusAvailable
}

// FinalStatus returns the terminal status for actionType.
func FinalStatus(actionType repository.ActionType) (repository.StatusCode, error) {
	switch actionType {
	case repository.ActionApprove:
		return repository.StatusApproved, nil
	case repository.ActionAcknowledge:
		return repository.StatusAcknowledged, nil
	case repository.ActionExecute:
		return repository.StatusExecuted, nil
	}
	return "", ErrNoStatusAvailable
}

// returnedStatuses are tried in order when a cycle collapses.
var returnedStatuses = []repository.StatusCode{repository.StatusReturned, repository.StatusDraft}

var legacyStatusNames = map[string]repository.StatusCode{
	"на доработке": repository.StatusReturned,
	"согласован":   repository.StatusApproved,
	"ознакомлен":   repository.StatusAcknowledged,
	"исполнен":     repository.StatusExecuted,
}

// LookupStatusByName maps a legacy display name to a status code. It only
// exists to import data keyed by names.
func LookupStatusByName(name string) (repository.StatusCode, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, code := range []repository.StatusCode{
		repository.StatusDraft, repository.StatusInReview, repository.StatusInAcknowledgement,
		repository.StatusInExecution, repository.StatusReturned, repository.StatusApproved,
		repository.StatusAcknowledged, repository.StatusExecuted,
	} {
		if strings.ToLower(code.Name()) == key {
			return code, true
		}
	}
	code, ok := legacyStatusNames[key]
	return code, ok
}

// StatusVocabulary keeps the status rows in line with the enum.
type StatusVocabulary struct {
	store repository.StatusStore
}

// NewStatusVocabulary binds a vocabulary to a unit of work.
func NewStatusVocabulary(store repository.StatusStore) *StatusVocabulary {
	return &StatusVocabulary{store: store}
}

// Ensure creates the row for code if missing and resets its final flag to the
// enum value, which un-finalizes a status that was wrongly marked final.
func (v *StatusVocabulary) Ensure(ctx context.Context, code repository.StatusCode) (repository.DocumentStatus, error) {
	st, ok := repository.StatusFor(code)
	if !ok {
		return repository.DocumentStatus{}, ErrNoStatusAvailable
	}
	if err := v.store.EnsureStatus(ctx, st); err != nil {
		return repository.DocumentStatus{}, &errors.AppError{
			Code:    ErrNoStatusAvailable.Code,
			Message: ErrNoStatusAvailable.Message,
			Err:     err,
		}
	}
	return st, nil
}

// EnsureFirst ensures the first status of codes that can be stored.
func (v *StatusVocabulary) EnsureFirst(ctx context.Context, codes ...repository.StatusCode) (repository.StatusCode, error) {
	for _, code := range codes {
		if _, err := v.Ensure(ctx, code); err == nil {
			return code, nil
		}
	}
	return "", ErrNoStatusAvailable
}
