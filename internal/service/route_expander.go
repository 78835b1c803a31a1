package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// Assignment is one concrete (approver, step, cycle) produced by expansion.
type Assignment struct {
	ApproverID string
	Step       int
	Cycle      int
}

// RouteSpec describes where the route comes from. Order is ignored in auto
// mode unless OrderOverride is set, because the template carries its own order.
type RouteSpec struct {
	Mode          repository.DeliveryMode
	Order         repository.ApprovalOrder
	OrderOverride bool
	Manual        []repository.Target
}

// Expansion is the result of expanding a route.
type Expansion struct {
	Order       repository.ApprovalOrder
	Assignments []Assignment
}

// routeExpanderStore is the data a RouteExpander reads.
type routeExpanderStore interface {
	repository.Directory
	ActiveRouteTemplate(ctx context.Context, documentTypeID string) (*repository.RouteTemplate, error)
}

// RouteExpander turns a RouteSpec into concrete assignments.
type RouteExpander struct {
	store    routeExpanderStore
	resolver *Resolver
}

// NewRouteExpander creates a RouteExpander.
func NewRouteExpander(store routeExpanderStore, resolver *Resolver) *RouteExpander {
	return &RouteExpander{store: store, resolver: resolver}
}

// Expand resolves every position of the route, drops unresolved approvers and
// the author, removes duplicates keeping the first occurrence and numbers the
// steps. It never writes.
func (e *RouteExpander) Expand(ctx context.Context, doc *repository.Document, spec RouteSpec, cycle int) (*Expansion, error) {
	positions, order, err := e.positions(ctx, doc, spec)
	if err != nil {
		return nil, err
	}

	out := &Expansion{Order: order}
	seen := make(map[string]bool)

	for i, targets := range positions {
		step := 1
		if order == repository.OrderSequential {
			step = i + 1
		}
		for _, target := range targets {
			approvers, err := e.expandTarget(ctx, target)
			if err != nil {
				return nil, err
			}
			for _, approver := range approvers {
				if approver.ID == doc.AuthorID || seen[approver.ID] {
					continue
				}
				seen[approver.ID] = true
				out.Assignments = append(out.Assignments, Assignment{
					ApproverID: approver.ID,
					Step:       step,
					Cycle:      cycle,
				})
			}
		}
	}

	if len(out.Assignments) == 0 {
		return nil, ErrNoApprovers
	}
	return out, nil
}

// positions groups route targets by position. Template steps sharing a step
// number share a position; every manual entry is its own position.
func (e *RouteExpander) positions(ctx context.Context, doc *repository.Document, spec RouteSpec) ([][]repository.Target, repository.ApprovalOrder, error) {
	switch spec.Mode {
	case repository.DeliveryAuto:
		tpl, err := e.store.ActiveRouteTemplate(ctx, doc.DocumentTypeID)
		if err != nil {
			return nil, "", err
		}
		if tpl == nil || len(tpl.Steps) == 0 {
			return nil, "", ErrNoActiveRoute
		}

		order := tpl.ApprovalOrder
		if spec.OrderOverride {
			order = spec.Order
		}
		if !order.Valid() {
			order = repository.OrderSequential
		}

		var positions [][]repository.Target
		last := 0
		for i, step := range tpl.Steps {
			if i == 0 || step.StepNumber != last {
				positions = append(positions, nil)
				last = step.StepNumber
			}
			positions[len(positions)-1] = append(positions[len(positions)-1], step.Target)
		}
		return positions, order, nil

	case repository.DeliveryManual:
		if len(spec.Manual) == 0 {
			return nil, "", ErrEmptyManualRoute
		}
		order := spec.Order
		if !order.Valid() {
			order = repository.OrderSequential
		}
		positions := make([][]repository.Target, len(spec.Manual))
		for i, target := range spec.Manual {
			if target.Kind != repository.TargetUser && target.Kind != repository.TargetDepartment {
				return nil, "", errors.InvalidInput("manual_route", fmt.Sprintf("unknown target type %q", target.Kind))
			}
			positions[i] = []repository.Target{target}
		}
		return positions, order, nil
	}

	return nil, "", errors.InvalidInput("delivery_mode", fmt.Sprintf("unknown delivery mode %q", spec.Mode))
}

// expandTarget resolves one target to its approvers in deterministic order.
// Missing or inactive users and unresolved candidates are skipped.
func (e *RouteExpander) expandTarget(ctx context.Context, target repository.Target) ([]*repository.Employee, error) {
	var candidates []*repository.Employee

	switch target.Kind {
	case repository.TargetUser:
		emp, err := e.store.GetEmployee(ctx, target.ID)
		if errors.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !emp.IsActive {
			return nil, nil
		}
		candidates = []*repository.Employee{emp}

	case repository.TargetDepartment:
		emps, err := e.store.ListDepartmentEmployees(ctx, target.ID, true)
		if err != nil {
			return nil, err
		}
		candidates = emps

	default:
		return nil, errors.InvalidInput("target", fmt.Sprintf("unknown target type %q", target.Kind))
	}

	approvers := make([]*repository.Employee, 0, len(candidates))
	for _, candidate := range candidates {
		resolved, err := e.resolver.Resolve(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			approvers = append(approvers, resolved)
		}
	}
	return approvers, nil
}
