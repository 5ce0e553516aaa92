package models

// FieldName identifies one financial figure. Ratios expressed as percentages
// (roa, roe, net_margin) are stored in percent.
type FieldName string

const (
	FieldRevenue            FieldName = "revenue"
	FieldNetProfit          FieldName = "net_profit"
	FieldTotalAssets        FieldName = "total_assets"
	FieldTotalLiabilities   FieldName = "total_liabilities"
	FieldEquity             FieldName = "equity"
	FieldCurrentAssets      FieldName = "current_assets"
	FieldCurrentLiabilities FieldName = "current_liabilities"

	FieldOperatingCashFlow FieldName = "operating_cash_flow"
	FieldInvestingCashFlow FieldName = "investing_cash_flow"
	FieldFinancingCashFlow FieldName = "financing_cash_flow"

	FieldROA              FieldName = "roa"
	FieldROE              FieldName = "roe"
	FieldDebtToEquity     FieldName = "debt_to_equity"
	FieldCurrentLiquidity FieldName = "current_liquidity"
	FieldNetMargin        FieldName = "net_margin"
)

// CoreFields drive document confidence.
var CoreFields = []FieldName{FieldRevenue, FieldNetProfit, FieldTotalAssets, FieldEquity}

// Percent reports whether the field is stored in percent.
func (f FieldName) Percent() bool {
	return f == FieldROA || f == FieldROE || f == FieldNetMargin
}

// Ratio reports whether the field is derived from two other fields.
func (f FieldName) Ratio() bool {
	switch f {
	case FieldROA, FieldROE, FieldDebtToEquity, FieldCurrentLiquidity, FieldNetMargin:
		return true
	}
	return false
}

// Figure is one extracted or derived value.
type Figure struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
	Derived    bool    `json:"derived,omitempty"`
	Evidence   string  `json:"evidence,omitempty"`
	DocumentID string  `json:"document_id,omitempty"`
}

// DocumentIndicators holds what was extracted from one document. A field that
// was not found is absent from Figures, never zero.
type DocumentIndicators struct {
	DocumentID string               `json:"document_id"`
	Role       DocumentRole         `json:"role"`
	Figures    map[FieldName]Figure `json:"figures"`
	Period     string               `json:"period,omitempty"`
	Confidence float64              `json:"confidence"`
	Notes      []string             `json:"notes,omitempty"`
	Unanswered []FieldName          `json:"unanswered,omitempty"`
}

func NewDocumentIndicators(docID string, role DocumentRole) *DocumentIndicators {
	return &DocumentIndicators{
		DocumentID: docID,
		Role:       role,
		Figures:    map[FieldName]Figure{},
	}
}

// Get returns the figure for f if present.
func (d *DocumentIndicators) Get(f FieldName) (Figure, bool) {
	if d == nil {
		return Figure{}, false
	}
	fig, ok := d.Figures[f]
	return fig, ok
}

func (d *DocumentIndicators) Note(msg string) {
	d.Notes = append(d.Notes, msg)
}

// FinancialProfile merges every document's figures, keeping the most confident
// value per field, with ratios derived across documents.
type FinancialProfile struct {
	Figures    map[FieldName]Figure `json:"figures"`
	Period     string               `json:"period,omitempty"`
	Confidence float64              `json:"extraction_confidence"`
	Documents  int                  `json:"documents"`
}

// Get returns the figure for f if present.
func (p *FinancialProfile) Get(f FieldName) (Figure, bool) {
	if p == nil {
		return Figure{}, false
	}
	fig, ok := p.Figures[f]
	return fig, ok
}

// Empty reports whether the profile carries no figures at all.
func (p *FinancialProfile) Empty() bool {
	return p == nil || len(p.Figures) == 0
}
