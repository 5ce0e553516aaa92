package scoring

import (
	"math"

	"github.com/maraichr/creditlens/pkg/models"
)

// applyFeedback acts on the checks a previous validation failed. Scores are
// never moved toward a desired recommendation.
func (e *Engine) applyFeedback(res *models.RiskResult, in Input, fb *models.Feedback) {
	if fb == nil || len(fb.Items) == 0 {
		return
	}

	if fb.Flagged(models.CheckFactorsSupported) {
		drop := fb.UnsupportedFactors()
		keep := func(fs []models.Factor) []models.Factor {
			out := make([]models.Factor, 0, len(fs))
			for _, f := range fs {
				if drop[f.Text] || !Supported(f, in) {
					continue
				}
				out = append(out, f)
			}
			return out
		}
		res.PositiveFactors = keep(res.PositiveFactors)
		res.NegativeFactors = keep(res.NegativeFactors)
	}

	if fb.Flagged(models.CheckOverallScoreInRange) || fb.Flagged(models.CheckSubScoresInRange) {
		res.FinancialScore = round2(clamp(res.FinancialScore))
		res.NonFinancialScore = round2(clamp(res.NonFinancialScore))
		res.OverallScore = round2(clamp(res.OverallScore))
	}

	if fb.Flagged(models.CheckRecommendationMapping) || fb.Flagged(models.CheckNoEvidenceNotApproved) {
		res.Recommendation = e.Recommend(res.OverallScore, in.HasEvidence())
	}

	if fb.Flagged(models.CheckConfidenceCalibrated) {
		c := math.Max(0, math.Min(res.Confidence, 1))
		if extractionConfidence(in.Profile) < e.cal.Confidence.WeakExtraction {
			c = math.Min(c, math.Floor((e.cal.Confidence.High-0.01)*100)/100)
		}
		res.Confidence = c
	}
}

// Supported reports whether a factor resolves against the input. Indicator
// fields must be present, registry fields set, and signal factors must index
// real signals. Numbers written in the text must match the evidence.
func Supported(f models.Factor, in Input) bool {
	switch f.Source {
	case models.SourceIndicator:
		fig, ok := in.Profile.Get(models.FieldName(f.Field))
		if !ok {
			return false
		}
		if f.Value != nil && !approxEqual(*f.Value, fig.Value) {
			return false
		}
		_, ok = MentionsMatch(f.Text, []float64{fig.Value})
		return ok
	case models.SourceRegistry:
		values, must, ok := RegistryMentions(in.Registry, f.Field, in.AsOf)
		if !ok || !containsFold(f.Text, must) {
			return false
		}
		_, ok = MentionsMatch(f.Text, values)
		return ok
	case models.SourceSignal:
		if len(f.Signals) == 0 {
			return false
		}
		for _, i := range f.Signals {
			if i < 0 || i >= len(in.Signals) {
				return false
			}
		}
		_, ok := MentionsMatch(f.Text, []float64{float64(len(f.Signals))})
		return ok
	}
	return false
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
