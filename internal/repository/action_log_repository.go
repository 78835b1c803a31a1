package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
)

// ActionLogRepository appends and reads immutable document history entries.
type ActionLogRepository struct {
	db database.Querier
}

// NewActionLogRepository creates a new ActionLogRepository.
func NewActionLogRepository(db database.Querier) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// AppendActionLog inserts one entry. The table has a delete-prevention trigger
// so this is the only mutation exposed.
func (r *ActionLogRepository) AppendActionLog(ctx context.Context, entry *ActionLogEntry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal action details")
		}
	}

	query := `
		INSERT INTO action_log (document_id, actor_id, action, description, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.DocumentID,
		entry.ActorID,
		entry.Action,
		entry.Description,
		detailsJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append action log")
	}
	return nil
}

// ListActionLog returns the history of a document ordered oldest-first.
func (r *ActionLogRepository) ListActionLog(ctx context.Context, documentID string) ([]*ActionLogEntry, error) {
	query := `
		SELECT id, document_id, actor_id, action, description, details, created_at
		FROM action_log
		WHERE document_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get action log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *ActionLogRepository) scanRows(rows pgx.Rows) ([]*ActionLogEntry, error) {
	var entries []*ActionLogEntry
	for rows.Next() {
		entry := &ActionLogEntry{}
		var detailsJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.DocumentID,
			&entry.ActorID,
			&entry.Action,
			&entry.Description,
			&detailsJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan action log entry")
		}
		if detailsJSON != nil {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal action details")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
