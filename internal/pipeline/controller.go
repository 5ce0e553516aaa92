package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/maraichr/creditlens/pkg/models"
)

// Controller drives a run through
//
//	GATHERING -> ANALYZING_DOCS -> SCORING -> VALIDATING -> APPROVED | EXHAUSTED
//
// A rejected validation sends the run back to SCORING with feedback until
// MaxRetries is spent. Gather and extraction never run twice. A stage error or
// panic ends the run in FAILED.
type Controller struct {
	gather   Stage
	analyze  Stage
	score    Stage
	validate Stage
	metrics  *Metrics
	logger   *slog.Logger
}

func NewController(gather, analyze, score, validate Stage, metrics *Metrics, logger *slog.Logger) *Controller {
	return &Controller{
		gather:   gather,
		analyze:  analyze,
		score:    score,
		validate: validate,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run executes the state machine on s and returns it in a terminal status.
func (c *Controller) Run(ctx context.Context, s *models.RunState) *models.RunState {
	start := time.Now()
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	c.logger.Info("pipeline started",
		slog.String("request_id", s.RequestID.String()),
		slog.String("subject_id", s.SubjectID),
		slog.Int("documents", len(s.Documents)),
		slog.Int("max_retries", s.MaxRetries))

	c.execute(ctx, s)

	now := time.Now().UTC()
	s.CompletedAt = &now
	c.metrics.observeRun(s.Status)

	attrs := []any{
		slog.String("request_id", s.RequestID.String()),
		slog.String("status", string(s.Status)),
		slog.Int("retries", s.RetryCount),
		slog.Duration("duration", time.Since(start)),
	}
	if s.Risk != nil {
		attrs = append(attrs,
			slog.Float64("overall_score", s.Risk.OverallScore),
			slog.String("recommendation", string(s.Risk.Recommendation)))
	}
	c.logger.Info("pipeline completed", attrs...)
	return s
}

func (c *Controller) execute(ctx context.Context, s *models.RunState) {
	s.Status = models.StatusGathering
	if !c.runStage(ctx, c.gather, s) {
		return
	}

	s.Status = models.StatusAnalyzingDocs
	if !c.runStage(ctx, c.analyze, s) {
		return
	}

	for {
		s.Status = models.StatusScoring
		if !c.runStage(ctx, c.score, s) {
			return
		}

		s.Status = models.StatusValidating
		if !c.runStage(ctx, c.validate, s) {
			return
		}
		if s.Validation == nil || s.Risk == nil {
			c.fail(s, StageValidate, fmt.Errorf("validation produced no result"), "")
			return
		}

		if s.Validation.Verdict == models.VerdictApproved {
			s.Risk.Validated = true
			s.Status = models.StatusApproved
			s.Tracef(StageControl, "run approved", "")
			return
		}

		if s.RetryCount >= s.MaxRetries {
			s.Risk.Validated = false
			s.Status = models.StatusExhausted
			s.Tracef(StageControl, "retries exhausted, returning last risk result unvalidated",
				fmt.Sprintf("retries=%d", s.RetryCount))
			return
		}

		s.Feedback = s.Validation.Feedback
		s.RetryCount++
		c.metrics.observeRetry()
		s.Tracef(StageControl, "validation rejected, rescoring with feedback",
			fmt.Sprintf("retry=%d/%d", s.RetryCount, s.MaxRetries))
		c.logger.Info("validation rejected",
			slog.String("request_id", s.RequestID.String()),
			slog.Int("attempt", s.RetryCount))
	}
}

// runStage reports whether the run may continue.
func (c *Controller) runStage(ctx context.Context, st Stage, s *models.RunState) (ok bool) {
	if err := ctx.Err(); err != nil {
		c.fail(s, st.Name(), fmt.Errorf("run cancelled: %w", err), "")
		return false
	}

	c.logger.Info("stage started",
		slog.String("stage", st.Name()),
		slog.String("request_id", s.RequestID.String()),
		slog.Int("attempt", s.RetryCount))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.metrics.observeStage(st.Name(), time.Since(start))
			c.fail(s, st.Name(), fmt.Errorf("panic: %v", r), string(debug.Stack()))
			ok = false
		}
	}()

	err := st.Execute(ctx, s)
	c.metrics.observeStage(st.Name(), time.Since(start))
	if err != nil {
		c.fail(s, st.Name(), err, "")
		return false
	}

	c.logger.Info("stage completed",
		slog.String("stage", st.Name()),
		slog.String("request_id", s.RequestID.String()),
		slog.Duration("duration", time.Since(start)))
	return true
}

// fail records a terminal failure. The trace detail carries where the run was
// when it failed as well as the error and, for panics, the stack.
func (c *Controller) fail(s *models.RunState, stage string, err error, stack string) {
	prior := s.Status
	s.Status = models.StatusFailed
	s.Error = fmt.Sprintf("stage %s failed: %v", stage, err)
	detail := fmt.Sprintf("stage=%s status=%s attempt=%d/%d error_type=%T error=%v",
		stage, prior, s.RetryCount, s.MaxRetries, err, err)
	if stack != "" {
		detail += "\n" + stack
	}
	s.Tracef(stage, "stage failed", detail)
	c.logger.Error("stage failed",
		slog.String("stage", stage),
		slog.String("request_id", s.RequestID.String()),
		slog.String("status", string(prior)),
		slog.Int("attempt", s.RetryCount),
		slog.String("error", err.Error()))
}
