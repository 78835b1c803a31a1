package handler

import (
	"time"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

const dateLayout = "2006-01-02"

// ── Requests ────────────────────────────────────────────────────────────────

type submitDocumentRequest struct {
	Title          string              `json:"title"`
	DocumentTypeID string              `json:"document_type_id"`
	ResponsibleID  string              `json:"responsible_id"`
	Priority       string              `json:"priority"`
	Deadline       string              `json:"deadline"`
	Description    *string             `json:"description"`
	DeliveryMode   string              `json:"delivery_mode"`
	ApprovalOrder  string              `json:"approval_order"`
	ManualRoute    []repository.Target `json:"manual_route"`
	ActionType     string              `json:"action_type"`
	Draft          bool                `json:"draft"`
}

func (r *submitDocumentRequest) toService(actorID string) (*service.SubmitRequest, error) {
	deadline, err := parseDate("deadline", r.Deadline)
	if err != nil {
		return nil, err
	}
	return &service.SubmitRequest{
		Title:          r.Title,
		DocumentTypeID: r.DocumentTypeID,
		AuthorID:       actorID,
		ResponsibleID:  r.ResponsibleID,
		Priority:       repository.Priority(r.Priority),
		Deadline:       deadline,
		Description:    r.Description,
		DeliveryMode:   repository.DeliveryMode(r.DeliveryMode),
		ApprovalOrder:  repository.ApprovalOrder(r.ApprovalOrder),
		ManualRoute:    r.ManualRoute,
		ActionType:     repository.ActionType(r.ActionType),
		Draft:          r.Draft,
	}, nil
}

// routeRequest is shared by submit-draft and resubmit.
type routeRequest struct {
	DocumentID    string              `json:"document_id"`
	ActionType    string              `json:"action_type"`
	ApprovalOrder string              `json:"approval_order"`
	ManualRoute   []repository.Target `json:"manual_route"`
}

type decisionRequest struct {
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
	Comment    string `json:"comment"`
}

type documentRequest struct {
	DocumentID string `json:"document_id"`
}

type replacementRequest struct {
	AbsentEmployeeID      string `json:"absent_employee_id"`
	ReplacementEmployeeID string `json:"replacement_employee_id"`
	Reason                string `json:"reason"`
	StartDate             string `json:"start_date"`
	EndDate               string `json:"end_date"`
}

func (r *replacementRequest) toService(actorID string) (*service.ReplacementRequest, error) {
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", r.EndDate)
	if err != nil {
		return nil, err
	}
	var createdBy *string
	if actorID != "" {
		createdBy = &actorID
	}
	return &service.ReplacementRequest{
		AbsentEmployeeID:      r.AbsentEmployeeID,
		ReplacementEmployeeID: r.ReplacementEmployeeID,
		Reason:                repository.ReplacementReason(r.Reason),
		StartDate:             start,
		EndDate:               end,
		CreatedBy:             createdBy,
	}, nil
}

type employeeStatusRequest struct {
	EmployeeID string `json:"employee_id"`
	Status     string `json:"status"`
}

func parseDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, errors.InvalidInput(field, "expected date in YYYY-MM-DD format")
	}
	return &t, nil
}

// ── Views ───────────────────────────────────────────────────────────────────

type documentView struct {
	ID                   string              `json:"id"`
	RegistrationNumber   string              `json:"registration_number"`
	Title                string              `json:"title"`
	DocumentTypeID       string              `json:"document_type_id"`
	Status               string              `json:"status"`
	StatusName           string              `json:"status_name"`
	IsFinal              bool                `json:"is_final"`
	AuthorID             string              `json:"author_id"`
	ResponsibleID        string              `json:"responsible_id"`
	Priority             string              `json:"priority"`
	Description          *string             `json:"description,omitempty"`
	Deadline             *string             `json:"deadline,omitempty"`
	ActualDeadline       *string             `json:"actual_deadline,omitempty"`
	DeliveryMode         string              `json:"delivery_mode"`
	ApprovalOrder        string              `json:"approval_order"`
	ActionType           string              `json:"action_type"`
	ManualRoute          []repository.Target `json:"manual_route,omitempty"`
	IsArchived           bool                `json:"is_archived"`
	LastRejectionComment *string             `json:"last_rejection_comment,omitempty"`
	LastRejectionAt      *time.Time          `json:"last_rejection_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

type approvalView struct {
	ID         string     `json:"id"`
	ApproverID string     `json:"approver_id"`
	Step       int        `json:"step"`
	Cycle      int        `json:"cycle"`
	Decision   string     `json:"decision"`
	Comment    string     `json:"comment,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	Deadline   *string    `json:"deadline,omitempty"`
	DocumentID string     `json:"document_id"`
}

type actionLogView struct {
	ID          string                 `json:"id"`
	ActorID     string                 `json:"actor_id"`
	Action      string                 `json:"action"`
	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

type resultView struct {
	Document      documentView           `json:"document"`
	Approvals     []approvalView         `json:"approvals"`
	Notifications []service.Notification `json:"notifications,omitempty"`
}

type replacementView struct {
	ID                    string  `json:"id"`
	AbsentEmployeeID      string  `json:"absent_employee_id"`
	ReplacementEmployeeID string  `json:"replacement_employee_id"`
	Reason                string  `json:"reason"`
	StartDate             string  `json:"start_date"`
	EndDate               *string `json:"end_date,omitempty"`
	IsActive              bool    `json:"is_active"`
}

type employeeView struct {
	ID           string  `json:"id"`
	FullName     string  `json:"full_name"`
	DepartmentID *string `json:"department_id,omitempty"`
	Status       string  `json:"status"`
	IsActive     bool    `json:"is_active"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func toDocumentView(doc *repository.Document) documentView {
	return documentView{
		ID:                   doc.ID,
		RegistrationNumber:   doc.RegistrationNumber,
		Title:                doc.Title,
		DocumentTypeID:       doc.DocumentTypeID,
		Status:               string(doc.Status),
		StatusName:           doc.Status.Name(),
		IsFinal:              doc.Status.IsFinal(),
		AuthorID:             doc.AuthorID,
		ResponsibleID:        doc.ResponsibleID,
		Priority:             string(doc.Priority),
		Description:          doc.Description,
		Deadline:             formatDate(doc.Deadline),
		ActualDeadline:       formatDate(doc.ActualDeadline),
		DeliveryMode:         string(doc.DeliveryMode),
		ApprovalOrder:        string(doc.ApprovalOrder),
		ActionType:           string(doc.ActionType),
		ManualRoute:          doc.ManualRoute,
		IsArchived:           doc.IsArchived,
		LastRejectionComment: doc.LastRejectionComment,
		LastRejectionAt:      doc.LastRejectionAt,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

func toApprovalViews(approvals []*repository.Approval) []approvalView {
	out := make([]approvalView, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, approvalView{
			ID:         a.ID,
			DocumentID: a.DocumentID,
			ApproverID: a.ApproverID,
			Step:       a.Step,
			Cycle:      a.Cycle,
			Decision:   string(a.Decision),
			Comment:    a.Comment,
			DecidedAt:  a.DecidedAt,
			Deadline:   formatDate(a.Deadline),
		})
	}
	return out
}

func toActionLogViews(entries []*repository.ActionLogEntry) []actionLogView {
	out := make([]actionLogView, 0, len(entries))
	for _, e := range entries {
		out = append(out, actionLogView{
			ID:          e.ID,
			ActorID:     e.ActorID,
			Action:      e.Action,
			Description: e.Description,
			Details:     e.Details,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

func toResultView(res *service.Result) resultView {
	return resultView{
		Document:      toDocumentView(res.Document),
		Approvals:     toApprovalViews(res.Approvals),
		Notifications: res.Notifications,
	}
}

func toReplacementView(rep *repository.Replacement) replacementView {
	return replacementView{
		ID:                    rep.ID,
		AbsentEmployeeID:      rep.AbsentEmployeeID,
		ReplacementEmployeeID: rep.ReplacementEmployeeID,
		Reason:                string(rep.Reason),
		StartDate:             rep.StartDate.Format(dateLayout),
		EndDate:               formatDate(rep.EndDate),
		IsActive:              rep.IsActive,
	}
}

func toEmployeeView(emp *repository.Employee) employeeView {
	return employeeView{
		ID:           emp.ID,
		FullName:     emp.FullName(),
		DepartmentID: emp.DepartmentID,
		Status:       string(emp.Status),
		IsActive:     emp.IsActive,
	}
}
