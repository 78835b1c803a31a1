package repository

import (
	"context"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
)

// StatusRepository maintains the document_statuses vocabulary table.
type StatusRepository struct {
	db database.Querier
}

// NewStatusRepository creates a new StatusRepository.
func NewStatusRepository(db database.Querier) *StatusRepository {
	return &StatusRepository{db: db}
}

// EnsureStatus creates the row on demand and forces its final flag to the
// catalog value.
func (r *StatusRepository) EnsureStatus(ctx context.Context, s DocumentStatus) error {
	query := `
		INSERT INTO document_statuses (code, name, is_final)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE
		SET is_final = EXCLUDED.is_final
		WHERE document_statuses.is_final IS DISTINCT FROM EXCLUDED.is_final
	`

	if _, err := r.db.Exec(ctx, query, s.Code, s.Name, s.IsFinal); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to ensure document status")
	}
	return nil
}
