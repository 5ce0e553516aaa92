package pipeline

import (
	"context"
	"fmt"

	"github.com/maraichr/creditlens/internal/extraction"
	"github.com/maraichr/creditlens/pkg/models"
)

// Extractor is satisfied by *extraction.Engine.
type Extractor interface {
	Extract(ctx context.Context, docs []models.Document) (*extraction.Result, error)
}

// AnalyzeStage runs document extraction and writes indicators and the
// consolidated financial profile.
type AnalyzeStage struct {
	extractor Extractor
}

func NewAnalyzeStage(extractor Extractor) *AnalyzeStage {
	return &AnalyzeStage{extractor: extractor}
}

func (a *AnalyzeStage) Name() string { return StageAnalyze }

func (a *AnalyzeStage) Execute(ctx context.Context, s *models.RunState) error {
	if len(s.Documents) == 0 {
		s.Tracef(StageAnalyze, "no documents supplied", "")
		return nil
	}

	res, err := a.extractor.Extract(ctx, s.Documents)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	// Classification may have filled in roles.
	roles := make(map[string]models.DocumentRole, len(res.Documents))
	for _, d := range res.Documents {
		roles[d.DocumentID] = d.Role
	}
	for i := range s.Documents {
		if r, ok := roles[s.Documents[i].ID]; ok {
			s.Documents[i].Role = r
		}
	}

	s.Indicators = res.ByRole()
	s.Financials = res.Profile
	for _, note := range res.Notes {
		s.Tracef(StageAnalyze, "extraction note", note)
	}
	for _, d := range res.Documents {
		s.Tracef(StageAnalyze, "document analyzed",
			fmt.Sprintf("id=%s role=%s fields=%d confidence=%.2f", d.DocumentID, d.Role, len(d.Figures), d.Confidence))
	}
	if res.IndexKey != "" {
		s.Tracef(StageAnalyze, "embedding index ready", res.IndexKey)
	}
	return nil
}
