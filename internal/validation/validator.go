// Package validation cross-checks a scored run against its own evidence and
// produces corrective feedback for another scoring attempt.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/internal/scoring"
	"github.com/maraichr/creditlens/pkg/models"
)

// Validator runs the eight named checks. It only reads the state.
type Validator struct {
	thresholds scoring.Thresholds
	confidence scoring.Confidence
}

func New(cal scoring.Calibration) *Validator {
	return &Validator{thresholds: cal.Thresholds, confidence: cal.Confidence}
}

type check struct {
	name  string
	fatal bool
	run   func(v *Validator, s *models.RunState) (ok bool, detail string, item *models.FeedbackItem)
}

var checks = []check{
	{models.CheckRegistryPresent, false, (*Validator).registryPresent},
	{models.CheckIdentifierConsistent, true, (*Validator).identifierConsistent},
	{models.CheckOverallScoreInRange, true, (*Validator).overallInRange},
	{models.CheckSubScoresInRange, true, (*Validator).subScoresInRange},
	{models.CheckRecommendationMapping, true, (*Validator).recommendationConsistent},
	{models.CheckFactorsSupported, true, (*Validator).factorsSupported},
	{models.CheckNoEvidenceNotApproved, true, (*Validator).noEvidenceNotApproved},
	{models.CheckConfidenceCalibrated, true, (*Validator).confidenceCalibrated},
}

// Validate returns the verdict for the current risk result. The verdict is
// APPROVED iff every fatal check passes; feedback lists each failing check.
func (v *Validator) Validate(s *models.RunState) *models.ValidationResult {
	res := &models.ValidationResult{Verdict: models.VerdictApproved}
	fb := &models.Feedback{Attempt: s.RetryCount}

	if s.Risk == nil {
		res.Verdict = models.VerdictRejected
		res.Notes = append(res.Notes, "no risk result to validate")
	}

	for _, c := range checks {
		ok, detail, item := false, "no risk result", (*models.FeedbackItem)(nil)
		if s.Risk != nil || c.name == models.CheckRegistryPresent || c.name == models.CheckIdentifierConsistent {
			ok, detail, item = c.run(v, s)
		}
		res.Checks = append(res.Checks, models.CheckResult{Name: c.name, Passed: ok, Fatal: c.fatal, Detail: detail})
		if ok {
			continue
		}
		if !c.fatal {
			res.Notes = append(res.Notes, fmt.Sprintf("%s: %s", c.name, detail))
			continue
		}
		res.Verdict = models.VerdictRejected
		if item == nil {
			item = &models.FeedbackItem{Reason: detail, Correction: "re-run scoring"}
		}
		item.Check = c.name
		fb.Items = append(fb.Items, *item)
	}

	if len(fb.Items) > 0 {
		res.Feedback = fb
	}
	return res
}

func (v *Validator) registryPresent(s *models.RunState) (bool, string, *models.FeedbackItem) {
	if s.Registry == nil {
		return false, "registry record absent", nil
	}
	return true, "registry record from " + s.Registry.Source, nil
}

func (v *Validator) identifierConsistent(s *models.RunState) (bool, string, *models.FeedbackItem) {
	if s.Registry == nil || s.Registry.CNPJ == "" || s.SubjectID == "" {
		return true, "nothing to compare", nil
	}
	got, want := registry.Normalize(s.Registry.CNPJ), registry.Normalize(s.SubjectID)
	if got != want {
		reason := fmt.Sprintf("registry CNPJ %s does not match subject %s", got, want)
		return false, reason, &models.FeedbackItem{
			Reason:     reason,
			Correction: "do not rely on registry facts for this subject; treat the registry record as belonging to another company",
		}
	}
	return true, "", nil
}

func inRange(x float64) bool {
	return !math.IsNaN(x) && x >= 0 && x <= 10
}

func (v *Validator) overallInRange(s *models.RunState) (bool, string, *models.FeedbackItem) {
	if !inRange(s.Risk.OverallScore) {
		reason := fmt.Sprintf("overall score %.2f outside [0,10]", s.Risk.OverallScore)
		return false, reason, &models.FeedbackItem{Reason: reason, Correction: "clamp the overall score to [0,10]"}
	}
	return true, "", nil
}

func (v *Validator) subScoresInRange(s *models.RunState) (bool, string, *models.FeedbackItem) {
	var bad []string
	if !inRange(s.Risk.FinancialScore) {
		bad = append(bad, fmt.Sprintf("financial %.2f", s.Risk.FinancialScore))
	}
	if !inRange(s.Risk.NonFinancialScore) {
		bad = append(bad, fmt.Sprintf("non-financial %.2f", s.Risk.NonFinancialScore))
	}
	if len(bad) > 0 {
		reason := "sub-scores outside [0,10]: " + strings.Join(bad, ", ")
		return false, reason, &models.FeedbackItem{Reason: reason, Correction: "clamp sub-scores to [0,10]"}
	}
	return true, "", nil
}

// recommendationConsistent re-derives the mapping from the thresholds without
// trusting the scoring engine's label.
func (v *Validator) recommendationConsistent(s *models.RunState) (bool, string, *models.FeedbackItem) {
	overall := s.Risk.OverallScore
	var want models.Recommendation
	switch {
	case overall >= v.thresholds.Approve:
		want = models.RecommendApprove
	case overall <= v.thresholds.Reject:
		want = models.RecommendReject
	default:
		want = models.RecommendReview
	}
	if want == models.RecommendApprove && !hasEvidence(s) {
		want = models.RecommendReview
	}
	if s.Risk.Recommendation != want {
		reason := fmt.Sprintf("overall score %.2f maps to %s, got %s", overall, want, s.Risk.Recommendation)
		return false, reason, &models.FeedbackItem{
			Reason:     reason,
			Correction: fmt.Sprintf("recompute the recommendation from the thresholds (approve >= %.1f, reject <= %.1f); do not change the score", v.thresholds.Approve, v.thresholds.Reject),
		}
	}
	return true, fmt.Sprintf("%.2f -> %s", overall, want), nil
}

func (v *Validator) factorsSupported(s *models.RunState) (bool, string, *models.FeedbackItem) {
	var unsupported, reasons []string
	for _, f := range s.Risk.Factors() {
		if why := unsupportedReason(f, s); why != "" {
			unsupported = append(unsupported, f.Text)
			reasons = append(reasons, fmt.Sprintf("%q: %s", f.Text, why))
		}
	}
	if len(unsupported) > 0 {
		reason := strings.Join(reasons, "; ")
		return false, reason, &models.FeedbackItem{
			Reason:     reason,
			Correction: "drop the listed factors and regenerate the rationale",
			Factors:    unsupported,
		}
	}
	return true, fmt.Sprintf("%d factors verified", len(s.Risk.Factors())), nil
}

// unsupportedReason returns why a factor does not resolve against the state,
// or "" when it does. Both the recorded value and every number written in the
// text must match the evidence at the precision the text shows.
func unsupportedReason(f models.Factor, s *models.RunState) string {
	switch f.Source {
	case models.SourceIndicator:
		values := indicatorValues(s, models.FieldName(f.Field))
		if len(values) == 0 {
			return fmt.Sprintf("field %q is not present in the indicators", f.Field)
		}
		if f.Value != nil && !anyEqual(*f.Value, values) {
			return fmt.Sprintf("value %v does not match extracted %s", *f.Value, f.Field)
		}
		if tok, ok := scoring.MentionsMatch(f.Text, values); !ok {
			return fmt.Sprintf("text cites %q, which is not an extracted %s value", tok, f.Field)
		}
		return ""
	case models.SourceRegistry:
		if s.Registry == nil {
			return "no registry record"
		}
		values, must, ok := scoring.RegistryMentions(s.Registry, f.Field, s.Risk.AsOf)
		if !ok {
			return fmt.Sprintf("registry field %q is empty", f.Field)
		}
		if must != "" && !strings.Contains(strings.ToLower(f.Text), strings.ToLower(must)) {
			return fmt.Sprintf("text does not state the registry %s %q", f.Field, must)
		}
		if f.Field == models.RegistryIncorporationDate && f.Value != nil && len(values) > 1 &&
			math.Abs(*f.Value-values[1]) > 0.05+1e-9 {
			return fmt.Sprintf("age %v does not match %.1f years since incorporation", *f.Value, values[1])
		}
		if tok, ok := scoring.MentionsMatch(f.Text, values); !ok {
			return fmt.Sprintf("text cites %q, which the registry %s does not support", tok, f.Field)
		}
		return ""
	case models.SourceSignal:
		if len(f.Signals) == 0 {
			return "references no external signal"
		}
		for _, i := range f.Signals {
			if i < 0 || i >= len(s.Signals) {
				return fmt.Sprintf("signal %d does not exist", i)
			}
		}
		n := float64(len(f.Signals))
		if f.Value != nil && *f.Value != n {
			return fmt.Sprintf("count %v does not match %d referenced signals", *f.Value, len(f.Signals))
		}
		if tok, ok := scoring.MentionsMatch(f.Text, []float64{n}); !ok {
			return fmt.Sprintf("text cites %q for %d referenced signals", tok, len(f.Signals))
		}
		return ""
	}
	return fmt.Sprintf("unknown factor source %q", f.Source)
}

func anyEqual(v float64, values []float64) bool {
	for _, x := range values {
		if approxEqual(v, x) {
			return true
		}
	}
	return false
}

// indicatorValues collects every value recorded for field across the
// consolidated profile and the per-document indicators.
func indicatorValues(s *models.RunState, field models.FieldName) []float64 {
	var out []float64
	if fig, ok := s.Financials.Get(field); ok {
		out = append(out, fig.Value)
	}
	for _, ind := range s.Indicators {
		if fig, ok := ind.Get(field); ok {
			out = append(out, fig.Value)
		}
	}
	return out
}

func hasEvidence(s *models.RunState) bool {
	return s.HasIndicators() || !s.Financials.Empty()
}

func (v *Validator) noEvidenceNotApproved(s *models.RunState) (bool, string, *models.FeedbackItem) {
	if !hasEvidence(s) && s.Risk.Recommendation == models.RecommendApprove {
		reason := "APPROVE without any extracted financial indicator"
		return false, reason, &models.FeedbackItem{Reason: reason, Correction: "cap the recommendation at REVIEW when no financial evidence exists"}
	}
	return true, "", nil
}

func (v *Validator) confidenceCalibrated(s *models.RunState) (bool, string, *models.FeedbackItem) {
	c := s.Risk.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		reason := fmt.Sprintf("confidence %.2f outside [0,1]", c)
		return false, reason, &models.FeedbackItem{Reason: reason, Correction: "clamp confidence to [0,1]"}
	}
	var extraction float64
	if s.Financials != nil {
		extraction = s.Financials.Confidence
	}
	if extraction < v.confidence.WeakExtraction && c >= v.confidence.High {
		reason := fmt.Sprintf("confidence %.2f is high while extraction confidence is %.2f", c, extraction)
		return false, reason, &models.FeedbackItem{
			Reason:     reason,
			Correction: fmt.Sprintf("report confidence below %.2f when extraction confidence is below %.2f", v.confidence.High, v.confidence.WeakExtraction),
		}
	}
	return true, "", nil
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
