package repository

import "time"

// ActionType selects which processing the route performs and therefore which
// in-progress and final statuses apply.
type ActionType string

const (
	ActionApprove     ActionType = "approve"
	ActionAcknowledge ActionType = "acknowledge"
	ActionExecute     ActionType = "execute"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	return a == ActionApprove || a == ActionAcknowledge || a == ActionExecute
}

// DeliveryMode selects where the route comes from.
type DeliveryMode string

const (
	DeliveryAuto   DeliveryMode = "auto"
	DeliveryManual DeliveryMode = "manual"
)

// Valid reports whether m is a known delivery mode.
func (m DeliveryMode) Valid() bool {
	return m == DeliveryAuto || m == DeliveryManual
}

// Priority of a document.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// StatusCode is the closed vocabulary of document statuses.
type StatusCode string

const (
	StatusDraft             StatusCode = "draft"
	StatusInReview          StatusCode = "in_review"
	StatusInAcknowledgement StatusCode = "in_acknowledgement"
	StatusInExecution       StatusCode = "in_execution"
	StatusReturned          StatusCode = "returned"
	StatusApproved          StatusCode = "approved"
	StatusAcknowledged      StatusCode = "acknowledged"
	StatusExecuted          StatusCode = "executed"
)

// DocumentStatus is a vocabulary row: code, display name and terminal flag.
type DocumentStatus struct {
	Code    StatusCode
	Name    string
	IsFinal bool
}

var statusCatalog = map[StatusCode]DocumentStatus{
	StatusDraft:             {Code: StatusDraft, Name: "Черновик"},
	StatusInReview:          {Code: StatusInReview, Name: "На согласовании"},
	StatusInAcknowledgement: {Code: StatusInAcknowledgement, Name: "На ознакомлении"},
	StatusInExecution:       {Code: StatusInExecution, Name: "На исполнении"},
	StatusReturned:          {Code: StatusReturned, Name: "Возвращено на доработку"},
	StatusApproved:          {Code: StatusApproved, Name: "Согласовано", IsFinal: true},
	StatusAcknowledged:      {Code: StatusAcknowledged, Name: "Ознакомлено", IsFinal: true},
	StatusExecuted:          {Code: StatusExecuted, Name: "Исполнено", IsFinal: true},
}

// StatusFor returns the catalog entry for code.
func StatusFor(code StatusCode) (DocumentStatus, bool) {
	s, ok := statusCatalog[code]
	return s, ok
}

// IsFinal reports whether the status is terminal.
func (c StatusCode) IsFinal() bool {
	return statusCatalog[c].IsFinal
}

// Name returns the display name of the status.
func (c StatusCode) Name() string {
	if s, ok := statusCatalog[c]; ok {
		return s.Name
	}
	return string(c)
}

// Document is the routed document.
type Document struct {
	ID                   string
	RegistrationNumber   string
	Title                string
	DocumentTypeID       string
	Status               StatusCode
	AuthorID             string
	ResponsibleID        string
	Priority             Priority
	Description          *string
	Deadline             *time.Time
	ActualDeadline       *time.Time
	DeliveryMode         DeliveryMode
	ApprovalOrder        ApprovalOrder
	ActionType           ActionType
	ManualRoute          []Target
	IsArchived           bool
	LastRejectionComment *string
	LastRejectionAt      *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
