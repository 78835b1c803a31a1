package service

import (
	"context"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/clock"
	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// Resolver picks the employee who actually acts for a candidate approver.
// It only reads directory state.
type Resolver struct {
	dir repository.Directory
}

// NewResolver creates a Resolver over dir.
func NewResolver(dir repository.Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the candidate when working. For an absent candidate it tries,
// in order: the active replacement with the latest start date, the department
// head, the first working peer by last and first name. nil means the step is
// skipped.
func (r *Resolver) Resolve(ctx context.Context, candidate *repository.Employee) (*repository.Employee, error) {
	if candidate == nil {
		return nil, nil
	}
	if !candidate.Status.IsAbsent() {
		return candidate, nil
	}

	replacements, err := r.dir.ActiveReplacementsFor(ctx, candidate.ID, clock.Today())
	if err != nil {
		return nil, err
	}
	for _, rep := range replacements {
		sub, err := r.dir.GetEmployee(ctx, rep.ReplacementEmployeeID)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if sub.IsAvailable() {
			return sub, nil
		}
	}

	if candidate.DepartmentID == nil {
		return nil, nil
	}

	dept, err := r.dir.GetDepartment(ctx, *candidate.DepartmentID)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if dept.HeadID != nil && *dept.HeadID != candidate.ID {
		head, err := r.dir.GetEmployee(ctx, *dept.HeadID)
		switch {
		case errors.IsNotFound(err):
		case err != nil:
			return nil, err
		case head.IsAvailable():
			return head, nil
		}
	}

	peers, err := r.dir.ListDepartmentEmployees(ctx, dept.ID, true)
	if err != nil {
		return nil, err
	}
	for _, peer := range peers {
		if peer.ID != candidate.ID && peer.IsAvailable() {
			return peer, nil
		}
	}
	return nil, nil
}
