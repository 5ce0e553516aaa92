package extraction

import (
	"strings"

	"github.com/maraichr/creditlens/pkg/models"
)

const firstPageRunes = 3000

var roleKeywords = map[models.DocumentRole][]string{
	models.RoleBalanceSheet: {
		"balanco patrimonial", "ativo circulante", "passivo circulante", "patrimonio liquido",
		"ativo nao circulante", "imobilizado", "ativo total", "passivo total",
		"balance sheet", "total assets", "total liabilities", "shareholders' equity", "current assets",
	},
	models.RoleIncomeStatement: {
		"demonstracao do resultado", "dre", "receita liquida", "receita bruta", "lucro liquido",
		"lucro bruto", "custo dos produtos", "despesas operacionais", "ebitda", "resultado do exercicio",
		"income statement", "net revenue", "net income", "gross profit", "operating expenses",
	},
	models.RoleCashFlow: {
		"fluxo de caixa", "fluxos de caixa", "atividades operacionais", "atividades de investimento",
		"atividades de financiamento", "caixa liquido", "cash flow", "operating activities",
		"investing activities", "financing activities",
	},
}

var foldAccents = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "ê", "e", "è", "e",
	"í", "i", "î", "i",
	"ó", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// normalizeText lowercases and strips Portuguese diacritics.
func normalizeText(s string) string {
	return foldAccents.Replace(strings.ToLower(s))
}

// firstPage returns the text before the first form feed, or the first
// firstPageRunes runes when there is none.
func firstPage(text string) string {
	if i := strings.IndexByte(text, '\f'); i >= 0 {
		return text[:i]
	}
	r := []rune(text)
	if len(r) > firstPageRunes {
		return string(r[:firstPageRunes])
	}
	return text
}

// Classify guesses a document's role from keyword hits on its first page. A
// tie or no hits yields RoleUnknown.
func Classify(text string) models.DocumentRole {
	page := " " + normalizeText(firstPage(text)) + " "

	best, bestScore, tie := models.RoleUnknown, 0, false
	for _, role := range []models.DocumentRole{models.RoleBalanceSheet, models.RoleIncomeStatement, models.RoleCashFlow} {
		score := 0
		for _, kw := range roleKeywords[role] {
			score += countWord(page, kw)
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = role, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return models.RoleUnknown
	}
	return best
}

// countWord counts occurrences of kw not embedded in a longer word.
func countWord(text, kw string) int {
	n := 0
	for i := 0; ; {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			return n
		}
		start := i + j
		end := start + len(kw)
		if !isLetter(text, start-1) && !isLetter(text, end) {
			n++
		}
		i = end
	}
}

func isLetter(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c >= 'a' && c <= 'z'
}
