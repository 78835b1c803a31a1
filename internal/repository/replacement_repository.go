package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
)

// ReplacementRepository handles employee replacements.
type ReplacementRepository struct {
	db database.Querier
}

// NewReplacementRepository creates a new ReplacementRepository.
func NewReplacementRepository(db database.Querier) *ReplacementRepository {
	return &ReplacementRepository{db: db}
}

const replacementColumns = `
	r.id, r.absent_employee_id, r.replacement_employee_id, r.reason,
	r.start_date, r.end_date, r.is_active, r.created_by, r.created_at
`

// ActiveReplacementsFor returns the usable replacements of an absent employee
// on the given day: active, covering the day, and pointing at an active,
// working substitute. Latest start date first.
func (r *ReplacementRepository) ActiveReplacementsFor(ctx context.Context, absentEmployeeID string, day time.Time) ([]*Replacement, error) {
	query := `
		SELECT` + replacementColumns + `
		FROM replacements r
		JOIN employees e ON e.id = r.replacement_employee_id
		WHERE r.absent_employee_id = $1
		  AND r.is_active = TRUE
		  AND r.start_date <= $2
		  AND (r.end_date IS NULL OR r.end_date >= $2)
		  AND e.is_active = TRUE
		  AND e.status = 'working'
		ORDER BY r.start_date DESC, r.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, absentEmployeeID, day)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get active replacements")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CreateReplacement inserts a replacement.
func (r *ReplacementRepository) CreateReplacement(ctx context.Context, rep *Replacement) error {
	query := `
		INSERT INTO replacements
		    (absent_employee_id, replacement_employee_id, reason,
		     start_date, end_date, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		rep.AbsentEmployeeID,
		rep.ReplacementEmployeeID,
		rep.Reason,
		rep.StartDate,
		rep.EndDate,
		rep.IsActive,
		rep.CreatedBy,
	).Scan(&rep.ID, &rep.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create replacement")
	}
	return nil
}

// GetReplacement retrieves a replacement by primary key.
func (r *ReplacementRepository) GetReplacement(ctx context.Context, id string) (*Replacement, error) {
	query := `SELECT` + replacementColumns + `FROM replacements r WHERE r.id = $1`

	rep, err := r.scanReplacement(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("replacement", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get replacement")
	}
	return rep, nil
}

// DeleteReplacement removes a replacement.
func (r *ReplacementRepository) DeleteReplacement(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM replacements WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete replacement")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("replacement", id)
	}
	return nil
}

// ListReplacements returns every replacement, latest start first.
func (r *ReplacementRepository) ListReplacements(ctx context.Context) ([]*Replacement, error) {
	query := `SELECT` + replacementColumns + `FROM replacements r ORDER BY r.start_date DESC, r.id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list replacements")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// SetReplacementActive stores the derived active flag.
func (r *ReplacementRepository) SetReplacementActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE replacements SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update replacement")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("replacement", id)
	}
	return nil
}

// HasActiveReplacement reports whether any active replacement exists for the
// absent employee.
func (r *ReplacementRepository) HasActiveReplacement(ctx context.Context, absentEmployeeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM replacements
			WHERE absent_employee_id = $1 AND is_active = TRUE
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, absentEmployeeID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check active replacements")
	}
	return exists, nil
}

type replacementScanner interface {
	Scan(dest ...any) error
}

func (r *ReplacementRepository) scanReplacement(row replacementScanner) (*Replacement, error) {
	rep := &Replacement{}
	err := row.Scan(
		&rep.ID,
		&rep.AbsentEmployeeID,
		&rep.ReplacementEmployeeID,
		&rep.Reason,
		&rep.StartDate,
		&rep.EndDate,
		&rep.IsActive,
		&rep.CreatedBy,
		&rep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *ReplacementRepository) scanRows(rows pgx.Rows) ([]*Replacement, error) {
	var reps []*Replacement
	for rows.Next() {
		rep, err := r.scanReplacement(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan replacement")
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}
