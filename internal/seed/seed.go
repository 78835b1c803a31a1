// Package seed loads document types and route templates from a YAML file.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

// File is the root of a seed document.
type File struct {
	Statuses      []string           `yaml:"statuses"`
	DocumentTypes []DocumentTypeSpec `yaml:"document_types"`
}

// DocumentTypeSpec declares a document type and its templates.
type DocumentTypeSpec struct {
	Code      string         `yaml:"code"`
	Name      string         `yaml:"name"`
	Templates []TemplateSpec `yaml:"templates"`
}

// TemplateSpec declares a route template.
type TemplateSpec struct {
	Name          string     `yaml:"name"`
	ApprovalOrder string     `yaml:"approval_order"`
	Active        *bool      `yaml:"active"`
	Steps         []StepSpec `yaml:"steps"`
}

// StepSpec is one route step naming either an employee or a department.
type StepSpec struct {
	Step       int    `yaml:"step"`
	Employee   string `yaml:"employee"`
	Department string `yaml:"department"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Statuses      int
	DocumentTypes int
	Templates     int
	Steps         int
}

// LoadFile reads and validates a seed file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	for _, name := range f.Statuses {
		if _, ok := service.LookupStatusByName(name); !ok {
			return fmt.Errorf("unknown status %q", name)
		}
	}

	codes := make(map[string]bool)
	for i, dt := range f.DocumentTypes {
		if dt.Code == "" || dt.Name == "" {
			return fmt.Errorf("document_types[%d]: code and name are required", i)
		}
		if codes[dt.Code] {
			return fmt.Errorf("document_types[%d]: duplicate code %q", i, dt.Code)
		}
		codes[dt.Code] = true

		for j, tpl := range dt.Templates {
			where := fmt.Sprintf("document_types[%d].templates[%d]", i, j)
			if tpl.Name == "" {
				return fmt.Errorf("%s: name is required", where)
			}
			if tpl.ApprovalOrder != "" && !repository.ApprovalOrder(tpl.ApprovalOrder).Valid() {
				return fmt.Errorf("%s: unknown approval_order %q", where, tpl.ApprovalOrder)
			}
			for k, step := range tpl.Steps {
				if step.Step < 1 {
					return fmt.Errorf("%s.steps[%d]: step must be positive", where, k)
				}
				if (step.Employee == "") == (step.Department == "") {
					return fmt.Errorf("%s.steps[%d]: exactly one of employee or department is required", where, k)
				}
			}
		}
	}
	return nil
}

// Target returns the route target a step names.
func (s StepSpec) Target() repository.Target {
	if s.Employee != "" {
		return repository.UserTarget(s.Employee)
	}
	return repository.DepartmentTarget(s.Department)
}

// Apply upserts everything in f in one unit of work.
func Apply(ctx context.Context, store repository.Store, f *File) (Summary, error) {
	var sum Summary
	err := store.InTx(ctx, func(tx repository.Tx) error {
		sum = Summary{}

		vocab := service.NewStatusVocabulary(tx)
		for _, name := range f.Statuses {
			code, _ := service.LookupStatusByName(name)
			if _, err := vocab.Ensure(ctx, code); err != nil {
				return err
			}
			sum.Statuses++
		}

		for _, spec := range f.DocumentTypes {
			dt := &repository.DocumentType{Code: spec.Code, Name: spec.Name}
			if err := tx.UpsertDocumentType(ctx, dt); err != nil {
				return err
			}
			sum.DocumentTypes++

			for _, tplSpec := range spec.Templates {
				tpl := &repository.RouteTemplate{
					DocumentTypeID: dt.ID,
					Name:           tplSpec.Name,
					ApprovalOrder:  repository.OrderSequential,
					IsActive:       tplSpec.Active == nil || *tplSpec.Active,
				}
				if tplSpec.ApprovalOrder != "" {
					tpl.ApprovalOrder = repository.ApprovalOrder(tplSpec.ApprovalOrder)
				}
				for _, step := range tplSpec.Steps {
					tpl.Steps = append(tpl.Steps, repository.RouteStep{
						StepNumber: step.Step,
						Target:     step.Target(),
					})
				}
				if err := tx.UpsertRouteTemplate(ctx, tpl); err != nil {
					return err
				}
				sum.Templates++
				sum.Steps += len(tpl.Steps)
			}
		}
		return nil
	})
	return sum, err
}
