package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

// ActorHeader carries the id of the employee making the request.
const ActorHeader = "X-Actor-ID"

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	workflow  *service.WorkflowService
	directory *service.DirectoryService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(workflow *service.WorkflowService, directory *service.DirectoryService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		workflow:  workflow,
		directory: directory,
		log:       log,
	}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)

	mux.HandleFunc("/api/v1/documents", h.SubmitDocument)
	mux.HandleFunc("/api/v1/documents/get", h.GetDocument)
	mux.HandleFunc("/api/v1/documents/submit-draft", h.SubmitDraft)
	mux.HandleFunc("/api/v1/documents/decision", h.RecordDecision)
	mux.HandleFunc("/api/v1/documents/resubmit", h.Resubmit)
	mux.HandleFunc("/api/v1/documents/archive", h.Archive)
	mux.HandleFunc("/api/v1/documents/unarchive", h.Unarchive)
	mux.HandleFunc("/api/v1/documents/approvals", h.ListApprovals)
	mux.HandleFunc("/api/v1/documents/history", h.History)
	mux.HandleFunc("/api/v1/approvals/pending", h.PendingApprovals)

	mux.HandleFunc("/api/v1/replacements", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateReplacement(w, r)
		case http.MethodDelete:
			h.DeleteReplacement(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/employees/status", h.UpdateEmployeeStatus)
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Documents ───────────────────────────────────────────────────────────────

// SubmitDocument handles document creation and submission
func (h *HTTPHandler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req submitDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	svcReq, err := req.toService(actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.workflow.Submit(r.Context(), svcReq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResultView(res))
}

// GetDocument returns a document with its approvals
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.workflow.GetDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultView(res))
}

// SubmitDraft starts the route of a draft
func (h *HTTPHandler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req routeRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.workflow.SubmitDraft(r.Context(), &service.SubmitDraftRequest{
		DocumentID:    req.DocumentID,
		ActorID:       actorID,
		ActionType:    repository.ActionType(req.ActionType),
		ApprovalOrder: repository.ApprovalOrder(req.ApprovalOrder),
		ManualRoute:   req.ManualRoute,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultView(res))
}

// RecordDecision handles approve, acknowledge, execute, reject and return
func (h *HTTPHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.workflow.RecordDecision(r.Context(), &service.DecisionRequest{
		DocumentID: req.DocumentID,
		ActorID:    actorID,
		Kind:       service.DecisionKind(req.Kind),
		Comment:    req.Comment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultView(res))
}

// Resubmit opens the next approval cycle
func (h *HTTPHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req routeRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.workflow.Resubmit(r.Context(), &service.ResubmitRequest{
		DocumentID:    req.DocumentID,
		ActorID:       actorID,
		ActionType:    repository.ActionType(req.ActionType),
		ApprovalOrder: repository.ApprovalOrder(req.ApprovalOrder),
		ManualRoute:   req.ManualRoute,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultView(res))
}

// Archive archives a finished document
func (h *HTTPHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, h.workflow.Archive)
}

// Unarchive restores an archived document
func (h *HTTPHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, h.workflow.Unarchive)
}

func (h *HTTPHandler) archive(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, documentID, actorID string) (*service.Result, error)) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req documentRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := op(r.Context(), req.DocumentID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultView(res))
}

// ListApprovals returns the ledger of a document
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	approvals, err := h.workflow.ListApprovals(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": toApprovalViews(approvals),
		"total":     len(approvals),
	})
}

// History returns the action log of a document
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	entries, err := h.workflow.History(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": toActionLogViews(entries),
		"total":   len(entries),
	})
}

// PendingApprovals returns the entries an approver can decide now
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	approverID := r.URL.Query().Get("approver_id")
	if approverID == "" {
		approverID = r.Header.Get(ActorHeader)
	}
	if approverID == "" {
		http.Error(w, "Approver ID is required", http.StatusBadRequest)
		return
	}

	approvals, err := h.workflow.PendingForApprover(r.Context(), approverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": toApprovalViews(approvals),
		"total":     len(approvals),
	})
}

// ── Directory ───────────────────────────────────────────────────────────────

// CreateReplacement registers a replacement for an absent employee
func (h *HTTPHandler) CreateReplacement(w http.ResponseWriter, r *http.Request) {
	var req replacementRequest
	if !decode(w, r, &req) {
		return
	}
	svcReq, err := req.toService(r.Header.Get(ActorHeader))
	if err != nil {
		h.writeError(w, err)
		return
	}

	rep, err := h.directory.CreateReplacement(r.Context(), svcReq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReplacementView(rep))
}

// DeleteReplacement removes a replacement
func (h *HTTPHandler) DeleteReplacement(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Replacement ID is required", http.StatusBadRequest)
		return
	}
	if err := h.directory.DeleteReplacement(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateEmployeeStatus changes an employee's employment status
func (h *HTTPHandler) UpdateEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req employeeStatusRequest
	if !decode(w, r, &req) {
		return
	}

	emp, err := h.directory.UpdateEmployeeStatus(r.Context(), req.EmployeeID, repository.EmployeeStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeView(emp))
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(ActorHeader)
	if id == "" {
		http.Error(w, ActorHeader+" header is required", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	body := map[string]string{"error": string(code), "message": err.Error()}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body["message"] = appErr.Message
		if appErr.Field != "" {
			body["field"] = appErr.Field
		}
	}
	writeJSON(w, status, body)
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
