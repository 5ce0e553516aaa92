package extraction

import (
	"regexp"
	"strings"

	"github.com/maraichr/creditlens/pkg/models"
)

// LabelConfidence is the confidence of a figure read from a labelled line.
// It clears the ratio floor but sits below what a grounded model answer
// usually reports, and a model answer always takes precedence.
const LabelConfidence = 0.6

const labelValue = `\s*[:\-]?\s*(?:r\$\s*)?(\(?-?\d[\d.,]*\)?)`

func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[^\S\n]*(?:[\d.]+\s+)?` + label + labelValue)
}

// labelPatterns holds the statement lines read per role.
var labelPatterns = map[models.DocumentRole][]struct {
	field   models.FieldName
	pattern *regexp.Regexp
}{
	models.RoleBalanceSheet: {
		{models.FieldTotalAssets, labelPattern(`ativo\s+total`)},
		{models.FieldCurrentAssets, labelPattern(`ativo\s+circulante`)},
		{models.FieldTotalLiabilities, labelPattern(`passivo\s+total`)},
		{models.FieldCurrentLiabilities, labelPattern(`passivo\s+circulante`)},
		{models.FieldEquity, labelPattern(`patrim[oô]nio\s+l[ií]quido`)},
	},
	models.RoleIncomeStatement: {
		{models.FieldRevenue, labelPattern(`receita\s+(?:operacional\s+)?(?:l[ií]quida|total)`)},
		{models.FieldNetProfit, labelPattern(`(?:lucro|preju[ií]zo)\s+(?:\(preju[ií]zo\)\s+)?l[ií]quido(?:\s+do\s+(?:exerc[ií]cio|per[ií]odo))?`)},
	},
	models.RoleCashFlow: {
		{models.FieldOperatingCashFlow, labelPattern(`(?:fluxo\s+de\s+)?caixa\s+(?:l[ií]quido\s+)?(?:gerado\s+|aplicado\s+)?(?:pelas|nas|das)\s+atividades\s+operacionais`)},
		{models.FieldInvestingCashFlow, labelPattern(`(?:fluxo\s+de\s+)?caixa\s+(?:l[ií]quido\s+)?(?:gerado\s+|aplicado\s+)?(?:pelas|nas|das)\s+atividades\s+de\s+investimentos?`)},
		{models.FieldFinancingCashFlow, labelPattern(`(?:fluxo\s+de\s+)?caixa\s+(?:l[ií]quido\s+)?(?:gerado\s+|aplicado\s+)?(?:pelas|nas|das)\s+atividades\s+de\s+financiamentos?`)},
	},
}

// ExtractLabelled reads figures from lines that start with a known statement
// label for the document's role. The first parseable match per field wins,
// scaled when the statement declares thousands or millions. A loss written
// as "Prejuízo líquido 10" is stored negative.
func ExtractLabelled(doc models.Document) map[models.FieldName]models.Figure {
	out := map[models.FieldName]models.Figure{}
	scale := declaredScale(doc.Text)
	for _, p := range labelPatterns[doc.Role] {
		for _, m := range p.pattern.FindAllStringSubmatchIndex(doc.Text, -1) {
			raw := doc.Text[m[2]:m[3]]
			if strings.Count(raw, "(") != strings.Count(raw, ")") {
				raw = strings.Trim(raw, "()")
			}
			v, ok := ParseNumber(strings.TrimRight(raw, ".,"))
			if !ok {
				continue
			}
			line := doc.Text[m[0]:m[1]]
			if p.field == models.FieldNetProfit && v > 0 && startsWithLoss(line) {
				v = -v
			}
			out[p.field] = models.Figure{
				Value:      v * scale,
				Confidence: LabelConfidence,
				Evidence:   truncate(line, 300),
				DocumentID: doc.ID,
			}
			break
		}
	}
	return out
}

var scalePattern = regexp.MustCompile(`(?i)em\s+(milhares|milh[oõ]es)\s+de\s+reais|\(?\s*(r\$\s*milh[oõ]es|r\$\s*mil\b)\s*\)?`)

func declaredScale(text string) float64 {
	m := scalePattern.FindStringSubmatch(text)
	if m == nil {
		return 1
	}
	word := strings.ToLower(m[1] + m[2])
	if strings.Contains(word, "milh") && !strings.Contains(word, "milhares") {
		return 1e6
	}
	return 1e3
}

func startsWithLoss(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	return strings.HasPrefix(l, "prejuízo") || strings.HasPrefix(l, "prejuizo")
}

// mergeLabelled fills fields the retrieval pass did not produce. It returns
// how many fields were added.
func mergeLabelled(ind *models.DocumentIndicators, labelled map[models.FieldName]models.Figure) int {
	added := 0
	for f, fig := range labelled {
		if _, ok := ind.Figures[f]; ok {
			continue
		}
		ind.Figures[f] = fig
		added++
	}
	if added == 0 {
		return 0
	}
	kept := ind.Unanswered[:0]
	for _, f := range ind.Unanswered {
		if _, ok := labelled[f]; !ok {
			kept = append(kept, f)
		}
	}
	ind.Unanswered = kept
	return added
}
