package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/clock"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/tracing"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// DirectoryService maintains employee status and replacements, the state the
// resolver reads.
type DirectoryService struct {
	store repository.Store
	log   *logger.Logger
}

// NewDirectoryService creates a new DirectoryService.
func NewDirectoryService(store repository.Store, log *logger.Logger) *DirectoryService {
	return &DirectoryService{store: store, log: log}
}

// ReplacementRequest creates a replacement. StartDate defaults to today for
// dismissals; EndDate is required for every other reason.
type ReplacementRequest struct {
	AbsentEmployeeID      string
	ReplacementEmployeeID string
	Reason                repository.ReplacementReason
	StartDate             *time.Time
	EndDate               *time.Time
	CreatedBy             *string
}

// SweepReport summarises one SweepReplacements run.
type SweepReport struct {
	Activated   int
	Deactivated int
	Restored    int
}

// ── Replacements ────────────────────────────────────────────────────────────

// CreateReplacement validates and stores a replacement. An active replacement
// immediately sets the absent employee's status and, for dismissals, moves
// route steps to the replacement. An inactive one restores working when
// nothing else covers the absent employee.
func (s *DirectoryService) CreateReplacement(ctx context.Context, req *ReplacementRequest) (rep *repository.Replacement, err error) {
	ctx, span := tracing.StartSpan(ctx, "directory.CreateReplacement",
		attribute.String("absent_employee_id", req.AbsentEmployeeID),
		attribute.String("replacement_employee_id", req.ReplacementEmployeeID),
	)
	defer func() { span.End(err) }()

	rep, err = buildReplacement(req)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetEmployee(ctx, rep.AbsentEmployeeID); err != nil {
			return err
		}
		sub, err := tx.GetEmployee(ctx, rep.ReplacementEmployeeID)
		if err != nil {
			return err
		}
		if !sub.IsActive {
			return errors.InvalidInput("replacement_employee_id", "replacement employee is not active")
		}
		switch sub.Status {
		case repository.EmployeeVacation, repository.EmployeeSick, repository.EmployeeDismissed:
			return errors.InvalidInput("replacement_employee_id",
				fmt.Sprintf("replacement employee is unavailable (%s)", sub.Status))
		}

		rep.IsActive = rep.ActiveOn(clock.Today())
		if err := tx.CreateReplacement(ctx, rep); err != nil {
			return err
		}
		if rep.IsActive {
			return s.applyActive(ctx, tx, rep)
		}
		_, err = s.restoreIfUncovered(ctx, tx, rep.AbsentEmployeeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("replacement_id", rep.ID).
		Str("absent_employee_id", rep.AbsentEmployeeID).
		Str("replacement_employee_id", rep.ReplacementEmployeeID).
		Str("reason", string(rep.Reason)).
		Bool("active", rep.IsActive).
		Msg("Replacement created")

	return rep, nil
}

func buildReplacement(req *ReplacementRequest) (*repository.Replacement, error) {
	if !req.Reason.Valid() {
		return nil, errors.InvalidInput("reason", fmt.Sprintf("unknown reason %q", req.Reason))
	}
	if req.AbsentEmployeeID == "" {
		return nil, errors.InvalidInput("absent_employee_id", "absent employee is required")
	}
	if req.ReplacementEmployeeID == "" {
		return nil, errors.InvalidInput("replacement_employee_id", "replacement employee is required")
	}
	if req.AbsentEmployeeID == req.ReplacementEmployeeID {
		return nil, errors.InvalidInput("replacement_employee_id", "an employee cannot replace themselves")
	}

	dismissed := req.Reason == repository.ReasonDismissed

	var start time.Time
	switch {
	case req.StartDate != nil:
		start = clock.DateOf(*req.StartDate)
	case dismissed:
		start = clock.Today()
	default:
		return nil, errors.InvalidInput("start_date", "start date is required")
	}

	var end *time.Time
	if req.EndDate != nil {
		d := clock.DateOf(*req.EndDate)
		end = &d
	} else if !dismissed {
		return nil, errors.InvalidInput("end_date", "end date is required unless the reason is dismissal")
	}
	if end != nil && end.Before(start) {
		return nil, errors.InvalidInput("end_date", "end date is before start date")
	}

	return &repository.Replacement{
		AbsentEmployeeID:      req.AbsentEmployeeID,
		ReplacementEmployeeID: req.ReplacementEmployeeID,
		Reason:                req.Reason,
		StartDate:             start,
		EndDate:               end,
		CreatedBy:             req.CreatedBy,
	}, nil
}

// DeleteReplacement removes a replacement and restores the absent employee to
// working when nothing else covers them.
func (s *DirectoryService) DeleteReplacement(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		rep, err := tx.GetReplacement(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteReplacement(ctx, id); err != nil {
			return err
		}
		_, err = s.restoreIfUncovered(ctx, tx, rep.AbsentEmployeeID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("replacement_id", id).Msg("Replacement deleted")
	return nil
}

// SweepReplacements recomputes active flags for today. Run daily by the
// scheduler and callable on demand.
func (s *DirectoryService) SweepReplacements(ctx context.Context) (report SweepReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "directory.SweepReplacements")
	defer func() { span.End(err) }()

	today := clock.Today()
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		report = SweepReport{}

		reps, err := tx.ListReplacements(ctx)
		if err != nil {
			return err
		}

		var expired []string
		for _, rep := range reps {
			active := rep.ActiveOn(today)
			if active == rep.IsActive {
				continue
			}
			if err := tx.SetReplacementActive(ctx, rep.ID, active); err != nil {
				return err
			}
			rep.IsActive = active
			if active {
				report.Activated++
				if err := s.applyActive(ctx, tx, rep); err != nil {
					return err
				}
			} else {
				report.Deactivated++
				expired = append(expired, rep.AbsentEmployeeID)
			}
		}

		seen := make(map[string]bool)
		for _, id := range expired {
			if seen[id] {
				continue
			}
			seen[id] = true
			restored, err := s.restoreIfUncovered(ctx, tx, id)
			if err != nil {
				return err
			}
			if restored {
				report.Restored++
			}
		}
		return nil
	})
	if err != nil {
		return SweepReport{}, err
	}

	s.log.Info().
		Int("activated", report.Activated).
		Int("deactivated", report.Deactivated).
		Int("restored", report.Restored).
		Msg("Replacement sweep finished")

	return report, nil
}

// ── Employees ───────────────────────────────────────────────────────────────

// UpdateEmployeeStatus sets an employee's status. Moving into dismissed
// rewrites route steps that name the employee to whoever the resolver picks.
func (s *DirectoryService) UpdateEmployeeStatus(ctx context.Context, employeeID string, status repository.EmployeeStatus) (*repository.Employee, error) {
	if !status.Valid() {
		return nil, errors.InvalidInput("status", fmt.Sprintf("unknown employee status %q", status))
	}

	var emp *repository.Employee
	var moved int64
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		emp, err = tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		previous := emp.Status
		if err := tx.UpdateEmployeeStatus(ctx, employeeID, status); err != nil {
			return err
		}
		emp.Status = status

		if status != repository.EmployeeDismissed || previous == repository.EmployeeDismissed {
			return nil
		}
		sub, err := NewResolver(tx).Resolve(ctx, emp)
		if err != nil {
			return err
		}
		if sub == nil || sub.ID == emp.ID {
			return nil
		}
		moved, err = tx.ReassignRouteSteps(ctx, emp.ID, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("employee_id", employeeID).
		Str("status", string(status)).
		Int64("route_steps_moved", moved).
		Msg("Employee status updated")

	return emp, nil
}

// ── Internal helpers ────────────────────────────────────────────────────────

func (s *DirectoryService) applyActive(ctx context.Context, tx repository.Tx, rep *repository.Replacement) error {
	status, ok := rep.Reason.EmployeeStatus()
	if !ok {
		return nil
	}
	if err := tx.UpdateEmployeeStatus(ctx, rep.AbsentEmployeeID, status); err != nil {
		return err
	}
	if rep.Reason != repository.ReasonDismissed {
		return nil
	}
	moved, err := tx.ReassignRouteSteps(ctx, rep.AbsentEmployeeID, rep.ReplacementEmployeeID)
	if err != nil {
		return err
	}
	if moved > 0 {
		s.log.Info().
			Str("from_employee_id", rep.AbsentEmployeeID).
			Str("to_employee_id", rep.ReplacementEmployeeID).
			Int64("route_steps", moved).
			Msg("Route steps reassigned")
	}
	return nil
}

func (s *DirectoryService) restoreIfUncovered(ctx context.Context, tx repository.Tx, employeeID string) (bool, error) {
	covered, err := tx.HasActiveReplacement(ctx, employeeID)
	if err != nil || covered {
		return false, err
	}
	emp, err := tx.GetEmployee(ctx, employeeID)
	if errors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if emp.Status == repository.EmployeeWorking {
		return false, nil
	}
	if err := tx.UpdateEmployeeStatus(ctx, employeeID, repository.EmployeeWorking); err != nil {
		return false, err
	}
	return true, nil
}
