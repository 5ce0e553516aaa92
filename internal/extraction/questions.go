package extraction

import "github.com/maraichr/creditlens/pkg/models"

// FieldPeriod is the question key for the reporting period; it is not a figure.
const FieldPeriod models.FieldName = "period"

// Question is one entry of the fixed extraction battery. Text is embedded for
// retrieval and shown to the model.
type Question struct {
	Field models.FieldName
	Text  string
	Label string
}

var questions = []Question{
	{models.FieldRevenue, "Qual foi a receita líquida ou faturamento líquido do período?", "net revenue"},
	{models.FieldNetProfit, "Qual foi o lucro líquido (ou prejuízo) do período?", "net profit or loss"},
	{models.FieldTotalAssets, "Qual é o valor do ativo total da empresa?", "total assets"},
	{models.FieldTotalLiabilities, "Qual é o valor do passivo total (circulante mais não circulante, excluindo o patrimônio líquido)?", "total liabilities excluding equity"},
	{models.FieldEquity, "Qual é o patrimônio líquido da empresa?", "shareholders' equity"},
	{models.FieldCurrentAssets, "Qual é o valor do ativo circulante?", "current assets"},
	{models.FieldCurrentLiabilities, "Qual é o valor do passivo circulante?", "current liabilities"},
	{models.FieldOperatingCashFlow, "Qual foi o caixa líquido gerado (ou consumido) pelas atividades operacionais?", "operating cash flow"},
	{models.FieldInvestingCashFlow, "Qual foi o caixa líquido das atividades de investimento?", "investing cash flow"},
	{models.FieldFinancingCashFlow, "Qual foi o caixa líquido das atividades de financiamento?", "financing cash flow"},
	{FieldPeriod, "Qual é a data ou o exercício de referência das demonstrações?", "reporting period"},
}

// Questions returns the extraction battery. The list does not depend on
// document content.
func Questions() []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	return out
}
