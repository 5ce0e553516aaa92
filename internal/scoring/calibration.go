package scoring

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maraichr/creditlens/pkg/models"
)

// Calibration holds every tunable constant of the scoring engine and the
// validator. It is loaded from YAML so thresholds can change without code.
type Calibration struct {
	Weights      Weights      `yaml:"weights"`
	Thresholds   Thresholds   `yaml:"thresholds"`
	Financial    Financial    `yaml:"financial"`
	NonFinancial NonFinancial `yaml:"non_financial"`
	Confidence   Confidence   `yaml:"confidence"`
}

type Weights struct {
	Financial    float64 `yaml:"financial"`
	NonFinancial float64 `yaml:"non_financial"`
}

// Thresholds map an overall score to a recommendation: >= Approve approves,
// <= Reject rejects, anything between is reviewed.
type Thresholds struct {
	Approve float64 `yaml:"approve"`
	Reject  float64 `yaml:"reject"`
}

type Financial struct {
	Baseline   float64 `yaml:"baseline"`
	NoEvidence float64 `yaml:"no_evidence"`
	Rules      []Rule  `yaml:"rules"`
}

// Rule scores one indicator. Bands are tried in order; the first whose range
// contains the value fires.
type Rule struct {
	Field models.FieldName `yaml:"field"`
	Bands []Band           `yaml:"bands"`
}

// Band covers [Min, Max); a nil bound is open.
type Band struct {
	Min   *float64 `yaml:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty"`
	Delta float64  `yaml:"delta"`
	Label string   `yaml:"label"`
}

func (b Band) contains(v float64) bool {
	return (b.Min == nil || v >= *b.Min) && (b.Max == nil || v < *b.Max)
}

type NonFinancial struct {
	Baseline float64      `yaml:"baseline"`
	Status   StatusRule   `yaml:"status"`
	Age      AgeRule      `yaml:"age"`
	Signals  SignalRules  `yaml:"signals"`
	Keywords SignalLexica `yaml:"keywords"`
}

// StatusRule matches registry status text case-insensitively by substring.
type StatusRule struct {
	Active        []string `yaml:"active"`
	ActiveDelta   float64  `yaml:"active_delta"`
	Inactive      []string `yaml:"inactive"`
	InactiveDelta float64  `yaml:"inactive_delta"`
	OtherDelta    float64  `yaml:"other_delta"`
}

type AgeRule struct {
	PerYear    float64 `yaml:"per_year"`
	Cap        float64 `yaml:"cap"`
	YoungYears float64 `yaml:"young_years"`
	YoungDelta float64 `yaml:"young_delta"`
}

// SignalWeight is applied per signal, scaled by the signal's relevance; the
// sum is bounded by Cap (same sign as Weight).
type SignalWeight struct {
	Weight float64 `yaml:"weight"`
	Cap    float64 `yaml:"cap"`
}

type SignalRules struct {
	Litigation   SignalWeight `yaml:"litigation"`
	NegativeNews SignalWeight `yaml:"negative_news"`
	PositiveNews SignalWeight `yaml:"positive_news"`
}

type SignalLexica struct {
	Legal    []string `yaml:"legal"`
	Negative []string `yaml:"negative"`
	Positive []string `yaml:"positive"`
}

// Confidence bounds the reported confidence. A result at or above High is
// "high confidence"; it may not be reported when extraction confidence is
// below WeakExtraction.
type Confidence struct {
	High           float64 `yaml:"high"`
	WeakExtraction float64 `yaml:"weak_extraction"`
}

func ptr(v float64) *float64 { return &v }

// DefaultCalibration returns the built-in table, tuned for small and medium
// Brazilian companies.
func DefaultCalibration() Calibration {
	return Calibration{
		Weights:    Weights{Financial: 0.7, NonFinancial: 0.3},
		Thresholds: Thresholds{Approve: 7.0, Reject: 4.0},
		Financial: Financial{
			Baseline:   5.0,
			NoEvidence: 3.0,
			Rules: []Rule{
				{Field: models.FieldROA, Bands: []Band{
					{Min: ptr(15), Delta: 1.5, Label: "Excellent ROA"},
					{Min: ptr(10), Delta: 1.0, Label: "Good ROA"},
					{Min: ptr(5), Delta: 0.5, Label: "Acceptable ROA"},
					{Min: ptr(0), Delta: -0.5, Label: "Low ROA"},
					{Delta: -1.5, Label: "Negative ROA"},
				}},
				{Field: models.FieldROE, Bands: []Band{
					{Min: ptr(20), Delta: 1.0, Label: "Excellent ROE"},
					{Min: ptr(15), Delta: 0.5, Label: "Good ROE"},
					{Min: ptr(0), Delta: 0},
					{Delta: -1.0, Label: "Negative ROE"},
				}},
				{Field: models.FieldDebtToEquity, Bands: []Band{
					{Max: ptr(0), Delta: -2.0, Label: "Negative equity"},
					{Max: ptr(0.5), Delta: 1.0, Label: "Low leverage"},
					{Max: ptr(1.0), Delta: 0.5, Label: "Controlled leverage"},
					{Max: ptr(1.5), Delta: 0},
					{Max: ptr(3.0), Delta: -1.0, Label: "High leverage"},
					{Delta: -1.5, Label: "Excessive leverage"},
				}},
				{Field: models.FieldCurrentLiquidity, Bands: []Band{
					{Min: ptr(1.5), Delta: 0.8, Label: "Strong current liquidity"},
					{Min: ptr(1.0), Delta: 0.3, Label: "Adequate current liquidity"},
					{Delta: -1.0, Label: "Insufficient current liquidity"},
				}},
				{Field: models.FieldNetMargin, Bands: []Band{
					{Min: ptr(10), Delta: 1.0, Label: "High net margin"},
					{Min: ptr(5), Delta: 0.5, Label: "Adequate net margin"},
					{Min: ptr(0), Delta: 0},
					{Delta: -1.5, Label: "Net loss"},
				}},
			},
		},
		NonFinancial: NonFinancial{
			Baseline: 6.0,
			Status: StatusRule{
				Active:        []string{"ativa", "active"},
				ActiveDelta:   1.0,
				Inactive:      []string{"suspensa", "suspended", "inapta", "baixada", "nula", "inativa", "inactive"},
				InactiveDelta: -3.0,
				OtherDelta:    -1.0,
			},
			Age: AgeRule{PerYear: 0.3, Cap: 1.5, YoungYears: 2, YoungDelta: -0.5},
			Signals: SignalRules{
				Litigation:   SignalWeight{Weight: -1.5, Cap: -3.0},
				NegativeNews: SignalWeight{Weight: -1.0, Cap: -2.0},
				PositiveNews: SignalWeight{Weight: 0.75, Cap: 1.5},
			},
			Keywords: SignalLexica{
				Legal:    []string{"processo judicial", "execução fiscal", "falência", "recuperação judicial", "ação judicial", "lawsuit", "bankruptcy"},
				Negative: []string{"fraude", "irregularidade", "multa", "penalidade", "investigação", "calote", "inadimplência", "fraud"},
				Positive: []string{"prêmio", "expansão", "crescimento", "inovação", "investimento", "award", "expansion", "growth"},
			},
		},
		Confidence: Confidence{High: 0.7, WeakExtraction: 0.4},
	}
}

// LoadCalibration reads a YAML calibration. Missing sections keep their
// default values.
func LoadCalibration(path string) (Calibration, error) {
	cal := DefaultCalibration()
	if path == "" {
		return cal, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cal, fmt.Errorf("read calibration: %w", err)
	}
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return cal, fmt.Errorf("parse calibration %s: %w", path, err)
	}
	if err := cal.Validate(); err != nil {
		return cal, fmt.Errorf("calibration %s: %w", path, err)
	}
	return cal, nil
}

// Marshal renders the calibration as YAML.
func (c Calibration) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Calibration) Validate() error {
	var errs []error
	if c.Weights.Financial < 0 || c.Weights.NonFinancial < 0 {
		errs = append(errs, errors.New("weights must be non-negative"))
	}
	if s := c.Weights.Financial + c.Weights.NonFinancial; s < 0.999 || s > 1.001 {
		errs = append(errs, fmt.Errorf("weights must sum to 1, got %.3f", s))
	}
	if c.Thresholds.Reject >= c.Thresholds.Approve {
		errs = append(errs, fmt.Errorf("reject threshold %.2f must be below approve threshold %.2f",
			c.Thresholds.Reject, c.Thresholds.Approve))
	}
	for _, v := range []float64{c.Financial.Baseline, c.Financial.NoEvidence, c.NonFinancial.Baseline} {
		if v < 0 || v > 10 {
			errs = append(errs, fmt.Errorf("baseline %.2f outside [0,10]", v))
		}
	}
	for _, r := range c.Financial.Rules {
		if len(r.Bands) == 0 {
			errs = append(errs, fmt.Errorf("rule %s has no bands", r.Field))
		}
		for _, b := range r.Bands {
			if b.Delta != 0 && b.Label == "" {
				errs = append(errs, fmt.Errorf("rule %s: band with delta %.2f needs a label", r.Field, b.Delta))
			}
		}
	}
	if c.Confidence.High <= 0 || c.Confidence.High > 1 || c.Confidence.WeakExtraction < 0 || c.Confidence.WeakExtraction > 1 {
		errs = append(errs, errors.New("confidence marks must lie in [0,1]"))
	}
	return errors.Join(errs...)
}
