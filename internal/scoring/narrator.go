package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/maraichr/creditlens/internal/llm"
	"github.com/maraichr/creditlens/pkg/models"
)

// Polarity of a proposed factor.
const (
	PolarityPositive = "positive"
	PolarityNegative = "negative"
)

// ProposedFactor is a factor suggested by the language model. Field names an
// indicator or registry field.
type ProposedFactor struct {
	Field    string `json:"field"`
	Polarity string `json:"polarity"`
	Text     string `json:"text"`
}

// Narrative is the model's prose explanation plus any factors it proposes.
type Narrative struct {
	Text    string           `json:"narrative"`
	Factors []ProposedFactor `json:"factors"`
}

// NarrativeRequest carries what the narrator may mention.
type NarrativeRequest struct {
	Input           Input
	Result          models.RiskResult
	RequestedAmount *float64
	Purpose         string
}

// Narrator writes the narrative section of a report.
type Narrator interface {
	Narrate(ctx context.Context, req NarrativeRequest) (Narrative, error)
}

// LLMNarrator asks a language model for the narrative.
type LLMNarrator struct {
	completer llm.Completer
	language  string
	maxTokens int
}

func NewLLMNarrator(completer llm.Completer, language string, maxTokens int) *LLMNarrator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &LLMNarrator{completer: completer, language: language, maxTokens: maxTokens}
}

const narratorSystemPT = `Você é um analista de risco de crédito sênior especializado em pequenas e médias empresas brasileiras.
Escreva uma análise clara e profissional, entre 150 e 300 palavras, que resuma os pontos financeiros e não financeiros, explique os fatores de risco e justifique a recomendação já calculada.
Use somente os dados fornecidos. Não altere scores nem a recomendação.`

const narratorSystemEN = `You are a senior credit-risk analyst for small and medium Brazilian companies.
Write a clear, professional analysis of 150 to 300 words that summarizes financial and non-financial points, explains the risk factors and justifies the recommendation already computed.
Use only the data provided. Do not change scores or the recommendation.`

const narratorFormat = `Respond with one JSON object: {"narrative": "<text>", "factors": [{"field": "<field name from the data>", "polarity": "positive|negative", "text": "<short sentence>"}]}.
Only propose factors about fields listed in the data; the list may be empty.`

func (n *LLMNarrator) Narrate(ctx context.Context, req NarrativeRequest) (Narrative, error) {
	system := narratorSystemEN
	if strings.HasPrefix(strings.ToLower(n.language), "pt") {
		system = narratorSystemPT
	}
	raw, err := n.completer.Complete(ctx,
		[]llm.Message{{Role: "user", Content: narrativePrompt(req)}},
		llm.Grounded(), llm.WithSystemPrompt(system), llm.WithSystemPrompt(narratorFormat),
		llm.JSON(), llm.WithMaxTokens(n.maxTokens))
	if err != nil {
		return Narrative{}, fmt.Errorf("narrative completion: %w", err)
	}

	obj, err := llm.ExtractJSON(raw)
	if err != nil {
		// Plain prose is still a usable narrative.
		return Narrative{Text: strings.TrimSpace(raw)}, nil
	}
	var out Narrative
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return Narrative{}, fmt.Errorf("decode narrative: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	return out, nil
}

func narrativePrompt(req NarrativeRequest) string {
	in, res := req.Input, req.Result
	var sb strings.Builder

	fmt.Fprintf(&sb, "Company CNPJ: %s\n", in.SubjectID)
	if r := in.Registry; r != nil {
		fmt.Fprintf(&sb, "Legal name: %s\nRegistry status: %s\nMain activity: %s\n", r.LegalName, r.Status, r.MainActivity)
		if r.IncorporationDate != nil {
			fmt.Fprintf(&sb, "Incorporated: %s\n", r.IncorporationDate.Format("2006-01-02"))
		}
	} else {
		sb.WriteString("Registry record: unavailable\n")
	}
	if req.RequestedAmount != nil {
		fmt.Fprintf(&sb, "Requested amount: R$ %.2f\n", *req.RequestedAmount)
	}
	if req.Purpose != "" {
		fmt.Fprintf(&sb, "Purpose: %s\n", req.Purpose)
	}

	sb.WriteString("\nFinancial data (field: value):\n")
	if in.Profile.Empty() {
		sb.WriteString("none extracted\n")
	} else {
		for _, f := range profileFields {
			if fig, ok := in.Profile.Get(f); ok {
				fmt.Fprintf(&sb, "- %s: %s\n", f, FormatValue(f, fig.Value))
			}
		}
	}
	fmt.Fprintf(&sb, "\nExternal signals: %d\n", len(in.Signals))
	for i, s := range in.Signals {
		if i == 10 {
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", s.Category, s.Title)
	}

	fmt.Fprintf(&sb, "\nScores: financial health %.2f/10, non-financial %.2f/10, overall %.2f/10\n",
		res.FinancialScore, res.NonFinancialScore, res.OverallScore)
	fmt.Fprintf(&sb, "Recommendation: %s\n", res.Recommendation)
	for _, f := range res.PositiveFactors {
		fmt.Fprintf(&sb, "+ %s\n", f.Text)
	}
	for _, f := range res.NegativeFactors {
		fmt.Fprintf(&sb, "- %s\n", f.Text)
	}
	return sb.String()
}

var profileFields = []models.FieldName{
	models.FieldRevenue, models.FieldNetProfit, models.FieldTotalAssets, models.FieldTotalLiabilities,
	models.FieldEquity, models.FieldCurrentAssets, models.FieldCurrentLiabilities,
	models.FieldOperatingCashFlow, models.FieldInvestingCashFlow, models.FieldFinancingCashFlow,
	models.FieldROA, models.FieldROE, models.FieldDebtToEquity, models.FieldCurrentLiquidity, models.FieldNetMargin,
}

// Merge adds the narrative and model-proposed factors to a scored result.
// Proposals duplicating a field already covered are skipped. A proposal about
// a field the evidence carries must cite that field's value: numbers written
// in its text that do not match are grounds to drop it, and a text citing no
// number gets the value appended. When feedback flagged unsupported factors,
// proposals that do not resolve are dropped too.
func (e *Engine) Merge(res models.RiskResult, in Input, n Narrative, fb *models.Feedback) models.RiskResult {
	res.Narrative = n.Text

	covered := map[string]bool{}
	for _, f := range res.Factors() {
		if f.Field != "" {
			covered[f.Field] = true
		}
	}
	drop := fb.UnsupportedFactors()
	strict := fb.Flagged(models.CheckFactorsSupported)

	for _, p := range n.Factors {
		field := strings.TrimSpace(p.Field)
		if field == "" || covered[field] {
			continue
		}
		if p.Polarity != PolarityPositive && p.Polarity != PolarityNegative {
			continue
		}
		f, ok := anchorProposal(strings.TrimSpace(p.Text), field, in)
		if !ok || f.Text == "" || drop[f.Text] || drop[strings.TrimSpace(p.Text)] {
			continue
		}
		if strict && !Supported(f, in) {
			continue
		}
		covered[field] = true
		if p.Polarity == PolarityPositive {
			res.PositiveFactors = append(res.PositiveFactors, f)
		} else {
			res.NegativeFactors = append(res.NegativeFactors, f)
		}
	}

	res.Rationale = e.rationale(res, in, fb)
	return res
}

// anchorProposal ties a proposed factor to the evidence for its field. Fields
// the evidence lacks pass through unchanged for the validator to judge.
func anchorProposal(text, field string, in Input) (models.Factor, bool) {
	f := models.Factor{Text: text, Field: field, Source: models.SourceIndicator}
	if text == "" {
		return f, false
	}

	var (
		values []float64
		must   string
		render string
	)
	switch field {
	case models.RegistryStatus, models.RegistryIncorporationDate, models.RegistryDeclaredCapital:
		f.Source = models.SourceRegistry
		var ok bool
		values, must, ok = RegistryMentions(in.Registry, field, in.AsOf)
		if !ok {
			return f, true
		}
		switch field {
		case models.RegistryIncorporationDate:
			if in.AsOf.IsZero() {
				render = strconv.Itoa(in.Registry.IncorporationDate.Year())
			} else {
				age := AgeYears(*in.Registry.IncorporationDate, in.AsOf)
				f.Value = &age
				render = fmt.Sprintf("%.1f years", age)
			}
		case models.RegistryDeclaredCapital:
			render = fmt.Sprintf("R$ %.2f", *in.Registry.DeclaredCapital)
		}
	default:
		fig, ok := in.Profile.Get(models.FieldName(field))
		if !ok {
			return f, true
		}
		v := fig.Value
		f.Value = &v
		values = []float64{v}
		render = FormatValue(models.FieldName(field), v)
	}

	if HasMentions(text) {
		if _, ok := MentionsMatch(text, values); !ok {
			return f, false
		}
	} else if render != "" {
		text = fmt.Sprintf("%s (%s)", strings.TrimRight(text, ". "), render)
	}
	if !containsFold(text, must) {
		text = fmt.Sprintf("%s (%s)", strings.TrimRight(text, ". "), must)
	}
	f.Text = text
	return f, true
}

// FallbackNarrative is used when no model is configured or the call fails.
func FallbackNarrative(res models.RiskResult, language string) string {
	if strings.HasPrefix(strings.ToLower(language), "pt") {
		return fmt.Sprintf("Análise automática: score financeiro %.1f/10, score não financeiro %.1f/10, score geral %.2f/10. Recomendação %s baseada nos indicadores calculados.",
			res.FinancialScore, res.NonFinancialScore, res.OverallScore, res.Recommendation)
	}
	return fmt.Sprintf("Automatic analysis: financial score %.1f/10, non-financial score %.1f/10, overall %.2f/10. Recommendation %s based on the computed indicators.",
		res.FinancialScore, res.NonFinancialScore, res.OverallScore, res.Recommendation)
}
