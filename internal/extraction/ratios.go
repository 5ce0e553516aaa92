package extraction

import (
	"math"

	"github.com/maraichr/creditlens/pkg/models"
)

// DefaultConfidenceFloor is the operand confidence a ratio needs.
const DefaultConfidenceFloor = 0.5

type ratio struct {
	field       models.FieldName
	numerator   models.FieldName
	denominator models.FieldName
	scale       float64
}

var ratios = []ratio{
	{models.FieldROA, models.FieldNetProfit, models.FieldTotalAssets, 100},
	{models.FieldROE, models.FieldNetProfit, models.FieldEquity, 100},
	{models.FieldDebtToEquity, models.FieldTotalLiabilities, models.FieldEquity, 1},
	{models.FieldCurrentLiquidity, models.FieldCurrentAssets, models.FieldCurrentLiabilities, 1},
	{models.FieldNetMargin, models.FieldNetProfit, models.FieldRevenue, 100},
}

// DeriveRatios adds every ratio whose operands are both present with
// confidence above floor and whose denominator is non-zero. A ratio that
// cannot be derived is removed, never estimated. The derived confidence is the
// lower of the two operands.
func DeriveRatios(figures map[models.FieldName]models.Figure, floor float64) {
	for _, r := range ratios {
		delete(figures, r.field)

		num, ok := figures[r.numerator]
		if !ok || num.Confidence <= floor {
			continue
		}
		den, ok := figures[r.denominator]
		if !ok || den.Confidence <= floor || den.Value == 0 {
			continue
		}
		v := num.Value / den.Value * r.scale
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		docID := num.DocumentID
		if den.DocumentID != docID {
			docID = ""
		}
		figures[r.field] = models.Figure{
			Value:      round(v, 4),
			Confidence: math.Min(num.Confidence, den.Confidence),
			Derived:    true,
			DocumentID: docID,
		}
	}
}

// documentConfidence is the mean confidence of the extracted (non-derived)
// figures weighted by the share of core fields found. It is zero exactly when
// no core field was found.
func documentConfidence(figures map[models.FieldName]models.Figure) (float64, int) {
	var sum float64
	n := 0
	for _, f := range figures {
		if f.Derived {
			continue
		}
		sum += f.Confidence
		n++
	}
	core := 0
	for _, f := range models.CoreFields {
		if _, ok := figures[f]; ok {
			core++
		}
	}
	if n == 0 || core == 0 {
		return 0, core
	}
	c := round(sum/float64(n)*float64(core)/float64(len(models.CoreFields)), 4)
	return math.Max(c, minDocumentConfidence), core
}

// minDocumentConfidence keeps a document with a core field above zero after
// rounding.
const minDocumentConfidence = 0.0001

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
