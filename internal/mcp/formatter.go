package mcp

import (
	"fmt"
	"strings"

	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/internal/report"
	"github.com/maraichr/creditlens/pkg/models"
)

const defaultMaxTokens = 4000

// Verbosity controls how much detail is included in analysis cards.
type Verbosity string

const (
	VerbositySummary  Verbosity = "summary"
	VerbosityStandard Verbosity = "standard"
	VerbosityFull     Verbosity = "full"
)

// ParseVerbosity returns a Verbosity from a string, defaulting to standard.
func ParseVerbosity(s string) Verbosity {
	switch strings.ToLower(s) {
	case "summary":
		return VerbositySummary
	case "full":
		return VerbosityFull
	default:
		return VerbosityStandard
	}
}

// ResponseBuilder constructs token-budgeted Markdown responses for MCP tools.
type ResponseBuilder struct {
	buf           strings.Builder
	tokenEstimate int
	maxTokens     int
	truncated     bool
	itemCount     int
}

// NewResponseBuilder creates a builder with the given token budget.
// If maxTokens <= 0, defaultMaxTokens is used.
func NewResponseBuilder(maxTokens int) *ResponseBuilder {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ResponseBuilder{maxTokens: maxTokens}
}

// AddHeader writes a header line to the response.
func (rb *ResponseBuilder) AddHeader(text string) {
	line := text + "\n\n"
	rb.buf.WriteString(line)
	rb.tokenEstimate += len(line) / 4
}

// AddLine writes a single line to the response, returning false if budget exceeded.
func (rb *ResponseBuilder) AddLine(text string) bool {
	return rb.write(text + "\n")
}

// AddAnalysisCard renders a run at the requested verbosity. Full verbosity
// emits the complete report; if that does not fit, the standard card is tried.
func (rb *ResponseBuilder) AddAnalysisCard(s *models.RunState, verbosity Verbosity) bool {
	if verbosity == VerbosityFull {
		if rb.write(report.Markdown(s, report.Options{Trace: true})) {
			rb.itemCount++
			return true
		}
		verbosity = VerbosityStandard
	}
	if !rb.write(formatAnalysisCard(s, verbosity)) {
		return false
	}
	rb.itemCount++
	return true
}

// AddSection writes a section with a heading.
func (rb *ResponseBuilder) AddSection(heading string, content string) bool {
	return rb.write(fmt.Sprintf("### %s\n%s\n\n", heading, content))
}

// AddRawText writes raw text, respecting the budget.
func (rb *ResponseBuilder) AddRawText(text string) bool {
	return rb.write(text)
}

func (rb *ResponseBuilder) write(text string) bool {
	cost := len(text) / 4
	if rb.tokenEstimate+cost > rb.maxTokens {
		rb.truncated = true
		return false
	}
	rb.buf.WriteString(text)
	rb.tokenEstimate += cost
	return true
}

// Finalize appends truncation notice and returns the final response text.
func (rb *ResponseBuilder) Finalize() string {
	if rb.truncated {
		rb.buf.WriteString(fmt.Sprintf(
			"\n---\n*Response truncated to ~%d tokens. Use `verbosity: summary` or increase `max_response_tokens`.*\n",
			rb.maxTokens))
	}
	return rb.buf.String()
}

// NextStep is a suggested follow-up MCP tool call.
type NextStep struct {
	Tool        string
	Description string
}

// FinalizeWithHints appends follow-up suggestions and the truncation notice.
func (rb *ResponseBuilder) FinalizeWithHints(steps []NextStep) string {
	if len(steps) > 0 {
		rb.buf.WriteString("\n---\n**Next steps:**\n")
		for _, step := range steps {
			rb.buf.WriteString(fmt.Sprintf("- %s → `%s`\n", step.Description, step.Tool))
		}
	}
	return rb.Finalize()
}

// TokenEstimate returns the current estimated token count.
func (rb *ResponseBuilder) TokenEstimate() int {
	return rb.tokenEstimate
}

// IsTruncated returns whether the response was truncated.
func (rb *ResponseBuilder) IsTruncated() bool {
	return rb.truncated
}

// ItemCount returns the number of items added.
func (rb *ResponseBuilder) ItemCount() int {
	return rb.itemCount
}

func formatAnalysisCard(s *models.RunState, verbosity Verbosity) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("**%s** %s\n", registry.Format(s.SubjectID), s.Status))
	b.WriteString(fmt.Sprintf("  Request: `%s`\n", s.RequestID))
	if s.Registry != nil && s.Registry.LegalName != "" {
		b.WriteString(fmt.Sprintf("  Name: %s\n", s.Registry.LegalName))
	}
	if s.Error != "" {
		b.WriteString(fmt.Sprintf("  Error: %s\n", s.Error))
	}

	r := s.Risk
	if r == nil {
		b.WriteString("\n")
		return b.String()
	}
	validated := ""
	if r.Validated {
		validated = " (validated)"
	}
	b.WriteString(fmt.Sprintf("  Recommendation: %s%s | overall %.2f | confidence %.2f\n",
		r.Recommendation, validated, r.OverallScore, r.Confidence))

	if verbosity == VerbositySummary {
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  Financial %.2f | Non-financial %.2f | attempts %d\n",
		r.FinancialScore, r.NonFinancialScore, s.RetryCount+1))
	for _, f := range r.PositiveFactors {
		b.WriteString(fmt.Sprintf("  + %s\n", f.Text))
	}
	for _, f := range r.NegativeFactors {
		b.WriteString(fmt.Sprintf("  - %s\n", f.Text))
	}
	if v := s.Validation; v != nil {
		var failed []string
		for _, c := range v.Checks {
			if !c.Passed {
				failed = append(failed, c.Name)
			}
		}
		if len(failed) > 0 {
			b.WriteString(fmt.Sprintf("  Failed checks: %s\n", strings.Join(failed, ", ")))
		}
	}
	b.WriteString("\n")
	return b.String()
}
