package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
)

// DocumentRepository handles document rows and the registration sequence.
type DocumentRepository struct {
	db database.Querier
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db database.Querier) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `
	id, registration_number, title, document_type_id, status,
	author_id, responsible_id, priority, description,
	deadline, actual_deadline,
	delivery_mode, approval_order, action_type, manual_route,
	is_archived, last_rejection_comment, last_rejection_at,
	created_at, updated_at
`

// CreateDocument inserts a document.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *Document) error {
	routeJSON, err := marshalRoute(doc.ManualRoute)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents
		    (registration_number, title, document_type_id, status,
		     author_id, responsible_id, priority, description,
		     deadline, delivery_mode, approval_order, action_type, manual_route)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8,
		        $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		doc.RegistrationNumber,
		doc.Title,
		doc.DocumentTypeID,
		doc.Status,
		doc.AuthorID,
		doc.ResponsibleID,
		doc.Priority,
		doc.Description,
		doc.Deadline,
		doc.DeliveryMode,
		doc.ApprovalOrder,
		doc.ActionType,
		routeJSON,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create document")
	}
	return nil
}

// GetDocument retrieves a document by primary key.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*Document, error) {
	query := `SELECT` + documentColumns + `FROM documents WHERE id = $1`
	return r.get(ctx, query, id)
}

// LockDocument retrieves a document and takes a row lock held until the
// surrounding transaction ends.
func (r *DocumentRepository) LockDocument(ctx context.Context, id string) (*Document, error) {
	query := `SELECT` + documentColumns + `FROM documents WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *DocumentRepository) get(ctx context.Context, query, id string) (*Document, error) {
	doc, err := r.scanDocument(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get document")
	}
	return doc, nil
}

// UpdateDocument persists the mutable document fields.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *Document) error {
	routeJSON, err := marshalRoute(doc.ManualRoute)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET status                 = $2,
		    actual_deadline        = $3,
		    approval_order         = $4,
		    action_type            = $5,
		    manual_route           = $6,
		    is_archived            = $7,
		    last_rejection_comment = $8,
		    last_rejection_at      = $9,
		    updated_at             = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		doc.ID,
		doc.Status,
		doc.ActualDeadline,
		doc.ApprovalOrder,
		doc.ActionType,
		routeJSON,
		doc.IsArchived,
		doc.LastRejectionComment,
		doc.LastRejectionAt,
	).Scan(&doc.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("document", doc.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update document")
	}
	return nil
}

// NextRegistrationSequence increments the (year, month) counter. The upsert
// takes a row lock on the month, so concurrent creators are serialised and
// no number is reused.
func (r *DocumentRepository) NextRegistrationSequence(ctx context.Context, year, month int) (int, error) {
	query := `
		INSERT INTO registration_sequences (year, month, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (year, month) DO UPDATE
		SET last_number = registration_sequences.last_number + 1
		RETURNING last_number
	`

	var next int
	if err := r.db.QueryRow(ctx, query, year, month).Scan(&next); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to allocate registration number")
	}
	return next, nil
}

type documentScanner interface {
	Scan(dest ...any) error
}

func (r *DocumentRepository) scanDocument(row documentScanner) (*Document, error) {
	doc := &Document{}
	var routeJSON []byte

	err := row.Scan(
		&doc.ID,
		&doc.RegistrationNumber,
		&doc.Title,
		&doc.DocumentTypeID,
		&doc.Status,
		&doc.AuthorID,
		&doc.ResponsibleID,
		&doc.Priority,
		&doc.Description,
		&doc.Deadline,
		&doc.ActualDeadline,
		&doc.DeliveryMode,
		&doc.ApprovalOrder,
		&doc.ActionType,
		&routeJSON,
		&doc.IsArchived,
		&doc.LastRejectionComment,
		&doc.LastRejectionAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if routeJSON != nil {
		if err := json.Unmarshal(routeJSON, &doc.ManualRoute); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal manual route")
		}
	}
	return doc, nil
}

func marshalRoute(route []Target) ([]byte, error) {
	if len(route) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(route)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal manual route")
	}
	return data, nil
}
