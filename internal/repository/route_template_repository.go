package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
)

// RouteTemplateRepository handles document types, route templates and their steps.
type RouteTemplateRepository struct {
	db database.Querier
}

// NewRouteTemplateRepository creates a new RouteTemplateRepository.
func NewRouteTemplateRepository(db database.Querier) *RouteTemplateRepository {
	return &RouteTemplateRepository{db: db}
}

// ActiveRouteTemplate returns the first active template with at least one step
// for the document type. Returns nil (no error) when none exists.
func (r *RouteTemplateRepository) ActiveRouteTemplate(ctx context.Context, documentTypeID string) (*RouteTemplate, error) {
	query := `
		SELECT t.id, t.document_type_id, t.name, t.approval_order, t.is_active
		FROM route_templates t
		WHERE t.document_type_id = $1
		  AND t.is_active = TRUE
		  AND EXISTS (SELECT 1 FROM route_steps s WHERE s.template_id = t.id)
		ORDER BY t.created_at ASC, t.id ASC
		LIMIT 1
	`

	tpl := &RouteTemplate{}
	err := r.db.QueryRow(ctx, query, documentTypeID).Scan(
		&tpl.ID,
		&tpl.DocumentTypeID,
		&tpl.Name,
		&tpl.ApprovalOrder,
		&tpl.IsActive,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get route template")
	}

	steps, err := r.listSteps(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}
	tpl.Steps = steps
	return tpl, nil
}

func (r *RouteTemplateRepository) listSteps(ctx context.Context, templateID string) ([]RouteStep, error) {
	query := `
		SELECT id, template_id, step_number, employee_id, department_id
		FROM route_steps
		WHERE template_id = $1
		ORDER BY step_number ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, templateID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get route steps")
	}
	defer rows.Close()

	var steps []RouteStep
	for rows.Next() {
		var (
			step         RouteStep
			employeeID   *string
			departmentID *string
		)
		if err := rows.Scan(&step.ID, &step.TemplateID, &step.StepNumber, &employeeID, &departmentID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan route step")
		}
		switch {
		case employeeID != nil:
			step.Target = UserTarget(*employeeID)
		case departmentID != nil:
			step.Target = DepartmentTarget(*departmentID)
		default:
			// Target was removed (ON DELETE SET NULL); the step expands to nobody.
			continue
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ReassignRouteSteps points every user step of fromEmployeeID at toEmployeeID.
func (r *RouteTemplateRepository) ReassignRouteSteps(ctx context.Context, fromEmployeeID, toEmployeeID string) (int64, error) {
	query := `
		UPDATE route_steps
		SET employee_id = $2
		WHERE employee_id = $1
	`

	tag, err := r.db.Exec(ctx, query, fromEmployeeID, toEmployeeID)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to reassign route steps")
	}
	return tag.RowsAffected(), nil
}

// UpsertDocumentType inserts or renames a document type keyed by code.
func (r *RouteTemplateRepository) UpsertDocumentType(ctx context.Context, dt *DocumentType) error {
	query := `
		INSERT INTO document_types (name, code)
		VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`

	if err := r.db.QueryRow(ctx, query, dt.Name, dt.Code).Scan(&dt.ID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert document type")
	}
	return nil
}

// UpsertRouteTemplate inserts or replaces a template (keyed by document type
// and name) together with its steps. Callers run it inside a transaction.
func (r *RouteTemplateRepository) UpsertRouteTemplate(ctx context.Context, tpl *RouteTemplate) error {
	query := `
		INSERT INTO route_templates (document_type_id, name, approval_order, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_type_id, name) DO UPDATE
		SET approval_order = EXCLUDED.approval_order,
		    is_active      = EXCLUDED.is_active
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		tpl.DocumentTypeID,
		tpl.Name,
		tpl.ApprovalOrder,
		tpl.IsActive,
	).Scan(&tpl.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert route template")
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM route_steps WHERE template_id = $1`, tpl.ID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear route steps")
	}

	stepQuery := `
		INSERT INTO route_steps (template_id, step_number, employee_id, department_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	for i := range tpl.Steps {
		step := &tpl.Steps[i]
		step.TemplateID = tpl.ID

		var employeeID, departmentID *string
		switch step.Target.Kind {
		case TargetUser:
			employeeID = &step.Target.ID
		case TargetDepartment:
			departmentID = &step.Target.ID
		default:
			return errors.InvalidInput("steps", fmt.Sprintf("unknown target type %q", step.Target.Kind))
		}

		err := r.db.QueryRow(ctx, stepQuery, tpl.ID, step.StepNumber, employeeID, departmentID).Scan(&step.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create route step")
		}
	}
	return nil
}
