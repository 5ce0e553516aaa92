package extraction

import (
	"sort"

	"github.com/maraichr/creditlens/pkg/models"
)

// Consolidate merges per-document figures into one profile: for each raw field
// the most confident value wins (earlier document on ties), then ratios are
// derived again across documents. Unknown-role documents contribute nothing.
func Consolidate(docs []*models.DocumentIndicators, floor float64) *models.FinancialProfile {
	p := &models.FinancialProfile{Figures: map[models.FieldName]models.Figure{}}

	var confSum, periodConf float64
	for _, d := range docs {
		if d == nil || d.Role == models.RoleUnknown {
			continue
		}
		p.Documents++
		confSum += d.Confidence
		if d.Period != "" && (p.Period == "" || d.Confidence > periodConf) {
			p.Period, periodConf = d.Period, d.Confidence
		}

		fields := make([]models.FieldName, 0, len(d.Figures))
		for f := range d.Figures {
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
		for _, f := range fields {
			fig := d.Figures[f]
			if fig.Derived {
				continue
			}
			if cur, ok := p.Figures[f]; !ok || fig.Confidence > cur.Confidence {
				p.Figures[f] = fig
			}
		}
	}

	DeriveRatios(p.Figures, floor)
	if p.Documents > 0 {
		p.Confidence = round(confSum/float64(p.Documents), 4)
	}
	return p
}
