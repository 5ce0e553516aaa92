package scoring

import (
	"fmt"
	"strings"

	"github.com/maraichr/creditlens/pkg/models"
)

const maxRationaleFactors = 3

// rationale explains a result from its own factor lists, so dropping a factor
// also drops it from the text.
func (e *Engine) rationale(res models.RiskResult, in Input, fb *models.Feedback) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall score %.2f (financial health %.2f x %.1f, non-financial %.2f x %.1f) maps to %s under thresholds approve >= %.1f, reject <= %.1f.",
		res.OverallScore,
		res.FinancialScore, e.cal.Weights.Financial,
		res.NonFinancialScore, e.cal.Weights.NonFinancial,
		res.Recommendation, e.cal.Thresholds.Approve, e.cal.Thresholds.Reject)

	if !in.HasEvidence() {
		sb.WriteString(" No financial figures were extracted, so approval is withheld and the financial score uses the no-evidence value.")
	}
	if in.Registry == nil {
		sb.WriteString(" No registry record was available.")
	}

	writeFactors(&sb, "Strengths", res.PositiveFactors)
	writeFactors(&sb, "Concerns", res.NegativeFactors)

	if fb != nil && len(fb.Items) > 0 {
		checks := make([]string, 0, len(fb.Items))
		for _, it := range fb.Items {
			checks = append(checks, it.Check)
		}
		fmt.Fprintf(&sb, " Revised after validation feedback on: %s.", strings.Join(checks, ", "))
	}
	fmt.Fprintf(&sb, " Confidence %.2f.", res.Confidence)
	return sb.String()
}

func writeFactors(sb *strings.Builder, title string, fs []models.Factor) {
	if len(fs) == 0 {
		return
	}
	texts := make([]string, 0, maxRationaleFactors)
	for i, f := range fs {
		if i == maxRationaleFactors {
			break
		}
		texts = append(texts, f.Text)
	}
	fmt.Fprintf(sb, " %s: %s", title, strings.Join(texts, "; "))
	if extra := len(fs) - len(texts); extra > 0 {
		fmt.Fprintf(sb, " (+%d more)", extra)
	}
	sb.WriteString(".")
}
