package service

import "github.com/pesio-ai/be-doc-approvals/internal/platform/errors"

// Engine errors. Callers match them with errors.Is; the transport layers map
// their codes to status codes.
var (
	ErrNoActiveRoute     = errors.New(errors.ErrCodeConflict, "no active route template with steps for document type")
	ErrEmptyManualRoute  = errors.InvalidInput("manual_route", "manual route must contain at least one entry")
	ErrNotAnApprover     = errors.Forbidden("actor is not an approver of this document")
	ErrNotCurrentStep    = errors.New(errors.ErrCodeConflict, "approval step has not been reached yet")
	ErrMissingComment    = errors.InvalidInput("comment", "comment is required to return a document")
	ErrForbiddenActor    = errors.Forbidden("only the author may perform this action")
	ErrNoStatusAvailable = errors.New(errors.ErrCodeInternal, "no document status available")
	ErrNoApprovers       = errors.New(errors.ErrCodeConflict, "route resolved to no approvers")
	ErrNotReturned       = errors.New(errors.ErrCodeConflict, "document has not been rejected or returned")
	ErrNotFinal          = errors.New(errors.ErrCodeConflict, "document is not in a final status")
	ErrDecisionClosed    = errors.New(errors.ErrCodeConflict, "document does not accept this decision in its current status")
)
