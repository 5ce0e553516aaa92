package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/maraichr/creditlens/internal/validation"
	"github.com/maraichr/creditlens/pkg/models"
)

// ValidateStage audits the current risk result.
type ValidateStage struct {
	validator *validation.Validator
}

func NewValidateStage(v *validation.Validator) *ValidateStage {
	return &ValidateStage{validator: v}
}

func (v *ValidateStage) Name() string { return StageValidate }

func (v *ValidateStage) Execute(_ context.Context, s *models.RunState) error {
	res := v.validator.Validate(s)
	s.Validation = res

	var failed []string
	for _, c := range res.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	detail := ""
	if len(failed) > 0 {
		detail = "failed: " + strings.Join(failed, ", ")
	}
	s.Tracef(StageValidate, fmt.Sprintf("verdict %s", res.Verdict), detail)
	return nil
}
