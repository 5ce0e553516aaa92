package embedding

import (
	"strings"

	"github.com/maraichr/creditlens/pkg/models"
)

var roleLabels = map[models.DocumentRole]string{
	models.RoleBalanceSheet:    "Balance sheet (balanço patrimonial)",
	models.RoleIncomeStatement: "Income statement (demonstração do resultado)",
	models.RoleCashFlow:        "Cash flow statement (demonstração dos fluxos de caixa)",
}

// BuildChunkText prefixes a chunk with its document role so chunks from
// different statements embed apart even when their numbers look alike.
func BuildChunkText(role models.DocumentRole, text string) string {
	label, ok := roleLabels[role]
	if !ok {
		return text
	}
	return label + "\n" + text
}

// Instruction prefixes for models trained with asymmetric retrieval prompts.
// Models not listed embed raw text.
var inputPrefixes = []struct {
	family   string
	query    string
	document string
}{
	{"nomic-embed", "search_query: ", "search_document: "},
	{"e5", "query: ", "passage: "},
	{"qwen3-embedding", "Instruct: Given a question about a company's financial statements, retrieve the passage that answers it\nQuery: ", ""},
}

// PrepareInput applies the model's query or document prefix to text.
func PrepareInput(model, inputType, text string) string {
	m := strings.ToLower(model)
	for _, p := range inputPrefixes {
		if !strings.Contains(m, p.family) {
			continue
		}
		if inputType == InputQuery {
			return p.query + text
		}
		return p.document + text
	}
	return text
}
