package models

type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// Check names, in evaluation order.
const (
	CheckRegistryPresent       = "registry_record_present"
	CheckIdentifierConsistent  = "identifier_consistent"
	CheckOverallScoreInRange   = "overall_score_in_range"
	CheckSubScoresInRange      = "sub_scores_in_range"
	CheckRecommendationMapping = "recommendation_consistent"
	CheckFactorsSupported      = "factors_supported"
	CheckNoEvidenceNotApproved = "no_evidence_not_approved"
	CheckConfidenceCalibrated  = "confidence_calibrated"
)

// CheckNames lists every validation check.
var CheckNames = []string{
	CheckRegistryPresent,
	CheckIdentifierConsistent,
	CheckOverallScoreInRange,
	CheckSubScoresInRange,
	CheckRecommendationMapping,
	CheckFactorsSupported,
	CheckNoEvidenceNotApproved,
	CheckConfidenceCalibrated,
}

type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	// Fatal checks decide the verdict; non-fatal ones are only recorded.
	Fatal  bool   `json:"fatal"`
	Detail string `json:"detail,omitempty"`
}

type ValidationResult struct {
	Verdict  Verdict       `json:"verdict"`
	Checks   []CheckResult `json:"checks"`
	Notes    []string      `json:"notes,omitempty"`
	Feedback *Feedback     `json:"feedback,omitempty"`
}

// Check returns the named check result.
func (v *ValidationResult) Check(name string) (CheckResult, bool) {
	if v == nil {
		return CheckResult{}, false
	}
	for _, c := range v.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// FeedbackItem explains one failed check.
type FeedbackItem struct {
	Check      string   `json:"check_name"`
	Reason     string   `json:"reason"`
	Correction string   `json:"suggested_correction"`
	Factors    []string `json:"factors,omitempty"`
}

// Feedback is what the validator hands back to scoring on rejection.
type Feedback struct {
	Attempt int            `json:"attempt"`
	Items   []FeedbackItem `json:"items"`
}

// Flagged reports whether check failed in this feedback.
func (f *Feedback) Flagged(check string) bool {
	if f == nil {
		return false
	}
	for _, it := range f.Items {
		if it.Check == check {
			return true
		}
	}
	return false
}

// UnsupportedFactors returns the factor texts named as unsupported.
func (f *Feedback) UnsupportedFactors() map[string]bool {
	out := map[string]bool{}
	if f == nil {
		return out
	}
	for _, it := range f.Items {
		if it.Check != CheckFactorsSupported {
			continue
		}
		for _, t := range it.Factors {
			out[t] = true
		}
	}
	return out
}
