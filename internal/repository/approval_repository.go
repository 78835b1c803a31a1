package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
)

// ApprovalRepository handles reads and updates on ledger entries.
type ApprovalRepository struct {
	db database.Querier
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db database.Querier) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `
	a.id, a.document_id, a.approver_id, a.step, a.cycle,
	a.decision, a.comment, a.decided_at, a.deadline, a.is_required, a.created_at
`

// ListApprovals returns all entries of a document ordered by cycle, step and
// creation time.
func (r *ApprovalRepository) ListApprovals(ctx context.Context, documentID string) ([]*Approval, error) {
	query := `
		SELECT` + approvalColumns + `
		FROM approvals a
		WHERE a.document_id = $1
		ORDER BY a.cycle ASC, a.step ASC, a.created_at ASC, a.id ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CreateApproval inserts a pending entry. A row that already exists for
// (document, approver, step, cycle) is left untouched and created is false.
func (r *ApprovalRepository) CreateApproval(ctx context.Context, a *Approval) (bool, error) {
	query := `
		INSERT INTO approvals
		    (document_id, approver_id, step, cycle,
		     decision, comment, deadline, is_required)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8)
		ON CONFLICT (document_id, approver_id, step, cycle) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		a.DocumentID,
		a.ApproverID,
		a.Step,
		a.Cycle,
		a.Decision,
		a.Comment,
		a.Deadline,
		a.IsRequired,
	).Scan(&a.ID, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval")
	}
	return true, nil
}

// UpdateApprovalDecision records the outcome of a decision on one entry.
func (r *ApprovalRepository) UpdateApprovalDecision(ctx context.Context, a *Approval) error {
	query := `
		UPDATE approvals
		SET decision   = $2,
		    comment    = $3,
		    decided_at = $4
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, a.ID, a.Decision, a.Comment, a.DecidedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval", a.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval")
	}
	return nil
}

// ClosePendingApprovals marks every other pending entry of the cycle as returned.
func (r *ApprovalRepository) ClosePendingApprovals(ctx context.Context, documentID string, cycle int, exceptID string, decidedAt time.Time) (int64, error) {
	query := `
		UPDATE approvals
		SET decision   = 'returned',
		    decided_at = $4
		WHERE document_id = $1
		  AND cycle = $2
		  AND id <> $3
		  AND decision = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, documentID, cycle, exceptID, decidedAt)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to close pending approvals")
	}
	return tag.RowsAffected(), nil
}

// ListPendingForApprover returns pending entries of an approver in the latest
// cycle of each non-archived document.
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*Approval, error) {
	query := `
		SELECT` + approvalColumns + `
		FROM approvals a
		JOIN documents d ON d.id = a.document_id
		WHERE a.approver_id = $1
		  AND a.decision = 'pending'
		  AND d.is_archived = FALSE
		  AND a.cycle = (SELECT MAX(m.cycle) FROM approvals m WHERE m.document_id = a.document_id)
		ORDER BY a.deadline ASC NULLS LAST, a.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *ApprovalRepository) scanRows(rows pgx.Rows) ([]*Approval, error) {
	var approvals []*Approval
	for rows.Next() {
		a := &Approval{}
		err := rows.Scan(
			&a.ID,
			&a.DocumentID,
			&a.ApproverID,
			&a.Step,
			&a.Cycle,
			&a.Decision,
			&a.Comment,
			&a.DecidedAt,
			&a.Deadline,
			&a.IsRequired,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
