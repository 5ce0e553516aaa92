package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maraichr/creditlens/internal/scoring"
	"github.com/maraichr/creditlens/pkg/models"
)

// ScoreStage runs the scoring engine and, when a narrator is configured, asks
// it for a narrative under a timeout. Pending feedback is consumed.
type ScoreStage struct {
	engine   *scoring.Engine
	narrator scoring.Narrator
	timeout  time.Duration
	language string
	now      func() time.Time
	logger   *slog.Logger
}

type ScoreOption func(*ScoreStage)

// WithNarrator enables model-written narratives.
func WithNarrator(n scoring.Narrator, timeout time.Duration) ScoreOption {
	return func(s *ScoreStage) {
		s.narrator = n
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLanguage sets the language of the fallback narrative.
func WithLanguage(lang string) ScoreOption {
	return func(s *ScoreStage) { s.language = lang }
}

// WithClock overrides the reference time used for company age.
func WithClock(now func() time.Time) ScoreOption {
	return func(s *ScoreStage) { s.now = now }
}

func NewScoreStage(engine *scoring.Engine, logger *slog.Logger, opts ...ScoreOption) *ScoreStage {
	s := &ScoreStage{
		engine:   engine,
		timeout:  30 * time.Second,
		language: "pt",
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (st *ScoreStage) Name() string { return StageScore }

func (st *ScoreStage) Execute(ctx context.Context, s *models.RunState) error {
	in := scoring.Input{
		SubjectID: s.SubjectID,
		Profile:   s.Financials,
		Registry:  s.Registry,
		Signals:   s.Signals,
		AsOf:      st.now().UTC(),
		Attempt:   s.RetryCount,
	}
	fb := s.Feedback
	res := st.engine.Score(in, fb)

	narrative := scoring.Narrative{Text: scoring.FallbackNarrative(res, st.language)}
	if st.narrator != nil {
		callCtx, cancel := context.WithTimeout(ctx, st.timeout)
		n, err := st.narrator.Narrate(callCtx, scoring.NarrativeRequest{
			Input:           in,
			Result:          res,
			RequestedAmount: s.RequestedAmount,
			Purpose:         s.Purpose,
		})
		cancel()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fmt.Errorf("narrative: %w", ctx.Err())
			}
			s.Tracef(StageScore, "narrative unavailable, using fallback", err.Error())
			st.logger.Warn("narrative failed",
				slog.String("request_id", s.RequestID.String()),
				slog.String("error", err.Error()))
		case n.Text == "":
			s.Tracef(StageScore, "narrative empty, using fallback", "")
		default:
			narrative = n
		}
	}
	res = st.engine.Merge(res, in, narrative, fb)

	s.Risk = &res
	s.Feedback = nil
	s.Tracef(StageScore, "risk scored", fmt.Sprintf("financial=%.2f non_financial=%.2f overall=%.2f recommendation=%s confidence=%.2f",
		res.FinancialScore, res.NonFinancialScore, res.OverallScore, res.Recommendation, res.Confidence))
	return nil
}
