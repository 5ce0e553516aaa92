// Package report renders a finished analysis for people: markdown for the CLI
// and MCP tools, HTML for browsers.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/internal/scoring"
	"github.com/maraichr/creditlens/pkg/models"
)

// Options trims the markdown output.
type Options struct {
	// Trace includes the full audit trace.
	Trace bool
}

var indicatorOrder = []models.FieldName{
	models.FieldRevenue, models.FieldNetProfit, models.FieldTotalAssets, models.FieldTotalLiabilities,
	models.FieldEquity, models.FieldCurrentAssets, models.FieldCurrentLiabilities,
	models.FieldOperatingCashFlow, models.FieldInvestingCashFlow, models.FieldFinancingCashFlow,
	models.FieldROA, models.FieldROE, models.FieldDebtToEquity, models.FieldCurrentLiquidity, models.FieldNetMargin,
}

// Markdown renders s as a markdown document.
func Markdown(s *models.RunState, opts Options) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Credit analysis %s\n\n", registry.Format(s.SubjectID))
	fmt.Fprintf(&b, "- **Request:** `%s`\n", s.RequestID)
	fmt.Fprintf(&b, "- **Status:** %s\n", s.Status)
	if s.RequestedAmount != nil {
		fmt.Fprintf(&b, "- **Requested amount:** R$ %s\n", formatMoney(*s.RequestedAmount))
	}
	if s.Purpose != "" {
		fmt.Fprintf(&b, "- **Purpose:** %s\n", s.Purpose)
	}
	fmt.Fprintf(&b, "- **Attempts:** %d of %d\n", s.RetryCount+1, s.MaxRetries+1)
	if s.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", s.Error)
	}
	b.WriteString("\n")

	writeRisk(&b, s)
	writeIndicators(&b, s)
	writeRegistry(&b, s.Registry)
	writeSignals(&b, s.Signals)
	writeValidation(&b, s.Validation)
	if opts.Trace {
		writeTrace(&b, s.Trace)
	}
	return b.String()
}

func writeRisk(b *strings.Builder, s *models.RunState) {
	r := s.Risk
	if r == nil {
		b.WriteString("## Risk\n\nNo risk result was produced.\n\n")
		return
	}
	b.WriteString("## Risk\n\n")
	if s.Status == models.StatusExhausted {
		b.WriteString("> Validation did not pass within the retry budget; this result is unvalidated.\n\n")
	}
	b.WriteString("| Score | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Financial health | %.2f |\n", r.FinancialScore)
	fmt.Fprintf(b, "| Non-financial | %.2f |\n", r.NonFinancialScore)
	fmt.Fprintf(b, "| Overall | %.2f |\n", r.OverallScore)
	fmt.Fprintf(b, "| Confidence | %.0f%% |\n\n", r.Confidence*100)
	fmt.Fprintf(b, "**Recommendation: %s**", r.Recommendation)
	if r.Validated {
		b.WriteString(" (validated)")
	}
	b.WriteString("\n\n")

	writeFactors(b, "Positive factors", r.PositiveFactors)
	writeFactors(b, "Negative factors", r.NegativeFactors)

	if r.Rationale != "" {
		fmt.Fprintf(b, "### Rationale\n\n%s\n\n", r.Rationale)
	}
	if r.Narrative != "" {
		fmt.Fprintf(b, "### Narrative\n\n%s\n\n", r.Narrative)
	}
}

func writeFactors(b *strings.Builder, title string, fs []models.Factor) {
	if len(fs) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, f := range fs {
		fmt.Fprintf(b, "- %s _(%s)_\n", f.Text, f.Source)
	}
	b.WriteString("\n")
}

func writeIndicators(b *strings.Builder, s *models.RunState) {
	b.WriteString("## Financial indicators\n\n")
	if s.Financials.Empty() {
		b.WriteString("No financial figure could be extracted.\n\n")
	} else {
		if s.Financials.Period != "" {
			fmt.Fprintf(b, "Period: %s. ", s.Financials.Period)
		}
		fmt.Fprintf(b, "Extraction confidence: %.0f%%.\n\n", s.Financials.Confidence*100)
		b.WriteString("| Indicator | Value | Confidence | Source |\n|---|---|---|---|\n")
		for _, f := range indicatorOrder {
			fig, ok := s.Financials.Get(f)
			if !ok {
				continue
			}
			value := scoring.FormatValue(f, fig.Value)
			if !f.Percent() && !f.Ratio() {
				value = "R$ " + formatMoney(fig.Value)
			}
			src := fig.DocumentID
			if fig.Derived {
				src = "derived"
			}
			fmt.Fprintf(b, "| %s | %s | %.0f%% | %s |\n", f, value, fig.Confidence*100, src)
		}
		b.WriteString("\n")
	}

	roles := make([]string, 0, len(s.Indicators))
	for r := range s.Indicators {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	for _, r := range roles {
		ind := s.Indicators[models.DocumentRole(r)]
		if ind == nil || len(ind.Notes) == 0 {
			continue
		}
		fmt.Fprintf(b, "Notes for %s (%s):\n\n", ind.DocumentID, r)
		for _, n := range ind.Notes {
			fmt.Fprintf(b, "- %s\n", n)
		}
		b.WriteString("\n")
	}
}

func writeRegistry(b *strings.Builder, r *models.RegistryRecord) {
	b.WriteString("## Registry\n\n")
	if r == nil {
		b.WriteString("No registry record was found.\n\n")
		return
	}
	fmt.Fprintf(b, "- **Legal name:** %s\n", r.LegalName)
	if r.TradeName != "" {
		fmt.Fprintf(b, "- **Trade name:** %s\n", r.TradeName)
	}
	fmt.Fprintf(b, "- **Status:** %s\n", r.Status)
	if r.IncorporationDate != nil {
		fmt.Fprintf(b, "- **Incorporated:** %s\n", r.IncorporationDate.Format("2006-01-02"))
	}
	if r.DeclaredCapital != nil {
		fmt.Fprintf(b, "- **Declared capital:** R$ %s\n", formatMoney(*r.DeclaredCapital))
	}
	if r.MainActivity != "" {
		fmt.Fprintf(b, "- **Main activity:** %s\n", r.MainActivity)
	}
	if r.Address.City != "" {
		fmt.Fprintf(b, "- **Location:** %s/%s\n", r.Address.City, r.Address.State)
	}
	if r.Source != "" {
		fmt.Fprintf(b, "- **Source:** %s\n", r.Source)
	}
	b.WriteString("\n")
}

func writeSignals(b *strings.Builder, signals []models.ExternalSignal) {
	b.WriteString("## External signals\n\n")
	if len(signals) == 0 {
		b.WriteString("No external signals.\n\n")
		return
	}
	for i, sig := range signals {
		title := sig.Title
		if title == "" {
			title = sig.URL
		}
		if sig.URL != "" {
			title = fmt.Sprintf("[%s](%s)", escapeBrackets(title), sig.URL)
		}
		fmt.Fprintf(b, "%d. %s (%s, relevance %.2f)\n", i, title, sig.Category, sig.Relevance)
	}
	b.WriteString("\n")
}

func writeValidation(b *strings.Builder, v *models.ValidationResult) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "## Validation: %s\n\n", v.Verdict)
	b.WriteString("| Check | Result | Detail |\n|---|---|---|\n")
	for _, c := range v.Checks {
		result := "pass"
		if !c.Passed {
			result = "FAIL"
			if !c.Fatal {
				result = "note"
			}
		}
		fmt.Fprintf(b, "| %s | %s | %s |\n", c.Name, result, escapePipes(c.Detail))
	}
	b.WriteString("\n")
}

func writeTrace(b *strings.Builder, trace []models.TraceEntry) {
	b.WriteString("## Trace\n\n")
	for _, e := range trace {
		line := fmt.Sprintf("- `%s` [%s #%d] %s", e.Time.Format("15:04:05.000"), e.Stage, e.Attempt, e.Message)
		if e.Detail != "" {
			detail, _, _ := strings.Cut(e.Detail, "\n")
			line += ": " + detail
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

// formatMoney renders v with Brazilian separators and two decimals.
func formatMoney(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	intPart, frac, _ := strings.Cut(s, ".")

	var out []byte
	for i := range len(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, intPart[i])
	}
	res := string(out) + "," + frac
	if neg {
		res = "-" + res
	}
	return res
}

func escapePipes(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	return strings.ReplaceAll(s, "|", "\\|")
}

func escapeBrackets(s string) string {
	return strings.NewReplacer("[", "\\[", "]", "\\]").Replace(s)
}
