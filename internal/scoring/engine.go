// Package scoring converts extracted figures, the registry record and external
// signals into a weighted risk score and recommendation. Everything here is a
// pure function of its inputs.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/maraichr/creditlens/pkg/models"
)

// Input is everything a scoring attempt may look at.
type Input struct {
	SubjectID string
	Profile   *models.FinancialProfile
	Registry  *models.RegistryRecord
	Signals   []models.ExternalSignal
	// AsOf is the reference time for company age.
	AsOf    time.Time
	Attempt int
}

// HasEvidence reports whether any financial figure was extracted.
func (in Input) HasEvidence() bool {
	return !in.Profile.Empty()
}

// Engine scores inputs against a calibration.
type Engine struct {
	cal Calibration
}

func NewEngine(cal Calibration) (*Engine, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cal: cal}, nil
}

func (e *Engine) Calibration() Calibration { return e.cal }

// Score computes a risk result. Feedback from a rejected validation is applied
// to the output (factors dropped, mapping re-derived, confidence capped) and
// never changes the scores themselves.
func (e *Engine) Score(in Input, fb *models.Feedback) models.RiskResult {
	fin, finPos, finNeg := e.financial(in)
	non, nonPos, nonNeg := e.nonFinancial(in)

	res := models.RiskResult{
		FinancialScore:    fin,
		NonFinancialScore: non,
		OverallScore:      round2(e.cal.Weights.Financial*fin + e.cal.Weights.NonFinancial*non),
		PositiveFactors:   append(finPos, nonPos...),
		NegativeFactors:   append(finNeg, nonNeg...),
		Confidence:        e.confidence(in),
		Attempt:           in.Attempt,
		AsOf:              in.AsOf,
	}
	if res.PositiveFactors == nil {
		res.PositiveFactors = []models.Factor{}
	}
	if res.NegativeFactors == nil {
		res.NegativeFactors = []models.Factor{}
	}
	res.Recommendation = e.Recommend(res.OverallScore, in.HasEvidence())

	e.applyFeedback(&res, in, fb)
	res.Rationale = e.rationale(res, in, fb)
	return res
}

// Recommend maps an overall score through the thresholds. Without financial
// evidence the result is capped at REVIEW.
func (e *Engine) Recommend(overall float64, hasEvidence bool) models.Recommendation {
	rec := MapRecommendation(overall, e.cal.Thresholds)
	if rec == models.RecommendApprove && !hasEvidence {
		return models.RecommendReview
	}
	return rec
}

// MapRecommendation is monotonic in overall.
func MapRecommendation(overall float64, t Thresholds) models.Recommendation {
	switch {
	case overall >= t.Approve:
		return models.RecommendApprove
	case overall <= t.Reject:
		return models.RecommendReject
	default:
		return models.RecommendReview
	}
}

func (e *Engine) financial(in Input) (float64, []models.Factor, []models.Factor) {
	if !in.HasEvidence() {
		return clamp(e.cal.Financial.NoEvidence), nil, nil
	}

	score := e.cal.Financial.Baseline
	var pos, neg []models.Factor
	for _, rule := range e.cal.Financial.Rules {
		fig, ok := in.Profile.Get(rule.Field)
		if !ok {
			continue
		}
		for _, band := range rule.Bands {
			if !band.contains(fig.Value) {
				continue
			}
			score += band.Delta
			if band.Delta != 0 {
				v := fig.Value
				f := models.Factor{
					Text:   fmt.Sprintf("%s: %s", band.Label, FormatValue(rule.Field, v)),
					Source: models.SourceIndicator,
					Field:  string(rule.Field),
					Value:  &v,
				}
				if band.Delta > 0 {
					pos = append(pos, f)
				} else {
					neg = append(neg, f)
				}
			}
			break
		}
	}
	return round2(clamp(score)), pos, neg
}

func (e *Engine) nonFinancial(in Input) (float64, []models.Factor, []models.Factor) {
	nf := e.cal.NonFinancial
	score := nf.Baseline
	var pos, neg []models.Factor

	if reg := in.Registry; reg != nil {
		if reg.Status != "" {
			status := strings.ToLower(reg.Status)
			switch {
			case containsAny(status, nf.Status.Inactive):
				score += nf.Status.InactiveDelta
				neg = append(neg, registryFactor("Irregular registry status: "+reg.Status, models.RegistryStatus, nil))
			case containsAny(status, nf.Status.Active):
				score += nf.Status.ActiveDelta
				pos = append(pos, registryFactor("Active registry status: "+reg.Status, models.RegistryStatus, nil))
			default:
				score += nf.Status.OtherDelta
				if nf.Status.OtherDelta < 0 {
					neg = append(neg, registryFactor("Unrecognized registry status: "+reg.Status, models.RegistryStatus, nil))
				}
			}
		}

		if reg.IncorporationDate != nil && !in.AsOf.IsZero() {
			years := AgeYears(*reg.IncorporationDate, in.AsOf)
			switch {
			case years < nf.Age.YoungYears:
				score += nf.Age.YoungDelta
				neg = append(neg, registryFactor(fmt.Sprintf("Recently incorporated: %.1f years", years), models.RegistryIncorporationDate, &years))
			default:
				bonus := math.Min(years*nf.Age.PerYear, nf.Age.Cap)
				score += bonus
				if bonus > 0 {
					pos = append(pos, registryFactor(fmt.Sprintf("Established company: %.1f years in operation", years), models.RegistryIncorporationDate, &years))
				}
			}
		}
	}

	lit, negNews, posNews := e.classifySignals(in.Signals)
	for _, g := range []struct {
		idx    []int
		weight SignalWeight
		label  string
	}{
		{lit, nf.Signals.Litigation, "Litigation signals found"},
		{negNews, nf.Signals.NegativeNews, "Negative media mentions"},
		{posNews, nf.Signals.PositiveNews, "Positive media mentions"},
	} {
		if len(g.idx) == 0 {
			continue
		}
		var delta float64
		for _, i := range g.idx {
			delta += g.weight.Weight * in.Signals[i].Relevance
		}
		if g.weight.Cap != 0 && math.Abs(delta) > math.Abs(g.weight.Cap) {
			delta = g.weight.Cap
		}
		score += delta
		n := float64(len(g.idx))
		f := models.Factor{
			Text:    fmt.Sprintf("%s: %d", g.label, len(g.idx)),
			Source:  models.SourceSignal,
			Value:   &n,
			Signals: g.idx,
		}
		if g.weight.Weight >= 0 {
			pos = append(pos, f)
		} else {
			neg = append(neg, f)
		}
	}

	return round2(clamp(score)), pos, neg
}

// classifySignals splits signal indices into litigation, negative and positive
// news. A signal lands in at most one group; litigation wins.
func (e *Engine) classifySignals(signals []models.ExternalSignal) (lit, neg, pos []int) {
	kw := e.cal.NonFinancial.Keywords
	for i, s := range signals {
		text := strings.ToLower(s.Title + " " + s.Snippet)
		switch {
		case s.Category == models.SignalLitigation || containsAny(text, kw.Legal):
			lit = append(lit, i)
		case containsAny(text, kw.Negative):
			neg = append(neg, i)
		case containsAny(text, kw.Positive):
			pos = append(pos, i)
		}
	}
	return lit, neg, pos
}

// confidence blends registry presence, extraction confidence, signal volume and
// figure count, then keeps it below the high mark when extraction was weak.
func (e *Engine) confidence(in Input) float64 {
	var c float64
	if in.Registry != nil {
		c += 0.2
	}
	if in.Profile != nil && in.Profile.Documents > 0 {
		c += 0.5 * in.Profile.Confidence
	}
	c += math.Min(float64(len(in.Signals))/10, 0.2)
	if in.Profile != nil && len(in.Profile.Figures) > 0 {
		c += math.Min(float64(len(in.Profile.Figures))/5, 0.1)
	}
	c = math.Max(0, math.Min(c, 1))
	return round2(e.capConfidence(c, in))
}

func (e *Engine) capConfidence(c float64, in Input) float64 {
	if extractionConfidence(in.Profile) < e.cal.Confidence.WeakExtraction && c >= e.cal.Confidence.High {
		return math.Floor((e.cal.Confidence.High-0.01)*100) / 100
	}
	return c
}

func extractionConfidence(p *models.FinancialProfile) float64 {
	if p == nil {
		return 0
	}
	return p.Confidence
}

func registryFactor(text, field string, value *float64) models.Factor {
	return models.Factor{Text: text, Source: models.SourceRegistry, Field: field, Value: value}
}

// FormatValue renders an indicator value the way factor texts show it.
func FormatValue(field models.FieldName, v float64) string {
	if field.Percent() {
		return fmt.Sprintf("%.1f%%", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
