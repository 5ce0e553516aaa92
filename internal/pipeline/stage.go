package pipeline

import (
	"context"

	"github.com/maraichr/creditlens/pkg/models"
)

// Stage is one step of the analysis state machine.
type Stage interface {
	Name() string
	Execute(ctx context.Context, s *models.RunState) error
}

// Stage names as they appear in the trace and in metrics.
const (
	StageGather   = "gather"
	StageAnalyze  = "analyze_documents"
	StageScore    = "score"
	StageValidate = "validate"
	StageControl  = "controller"
)

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, s *models.RunState) error
}

func NewStageFunc(name string, fn func(ctx context.Context, s *models.RunState) error) *StageFunc {
	return &StageFunc{name: name, fn: fn}
}

func (f *StageFunc) Name() string { return f.name }

func (f *StageFunc) Execute(ctx context.Context, s *models.RunState) error {
	return f.fn(ctx, s)
}
