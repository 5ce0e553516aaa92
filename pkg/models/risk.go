package models

import "time"

type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendReject  Recommendation = "REJECT"
)

type FactorSource string

const (
	SourceIndicator FactorSource = "indicator"
	SourceRegistry  FactorSource = "registry"
	SourceSignal    FactorSource = "signal"
)

// Registry fields a factor may reference.
const (
	RegistryStatus            = "status"
	RegistryIncorporationDate = "incorporation_date"
	RegistryDeclaredCapital   = "declared_capital"
)

// Factor is one piece of evidence behind a score. Value is set when the scoring
// engine rendered a concrete number into Text; Signals indexes ExternalSignals.
type Factor struct {
	Text    string       `json:"text"`
	Source  FactorSource `json:"source"`
	Field   string       `json:"field,omitempty"`
	Value   *float64     `json:"value,omitempty"`
	Signals []int        `json:"signals,omitempty"`
}

// RiskResult is the output of one scoring attempt.
type RiskResult struct {
	FinancialScore    float64        `json:"financial_health_score"`
	NonFinancialScore float64        `json:"non_financial_score"`
	OverallScore      float64        `json:"overall_score"`
	PositiveFactors   []Factor       `json:"positive_factors"`
	NegativeFactors   []Factor       `json:"negative_factors"`
	Rationale         string         `json:"rationale"`
	Narrative         string         `json:"narrative,omitempty"`
	Recommendation    Recommendation `json:"recommendation"`
	Confidence        float64        `json:"confidence"`
	Validated         bool           `json:"validated"`
	Attempt           int            `json:"attempt"`
	// AsOf is the reference time company age was measured against.
	AsOf              time.Time      `json:"as_of"`
}

// Factors returns positive then negative factors.
func (r *RiskResult) Factors() []Factor {
	out := make([]Factor, 0, len(r.PositiveFactors)+len(r.NegativeFactors))
	out = append(out, r.PositiveFactors...)
	return append(out, r.NegativeFactors...)
}
