package scoring

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maraichr/creditlens/internal/extraction"
	"github.com/maraichr/creditlens/pkg/models"
)

var mentionToken = regexp.MustCompile(`(\(?-?\d(?:[\d.,]*\d)?\)?)(?:\s*(\p{L}+))?`)

var mentionScales = map[string]float64{
	"k": 1e3, "mil": 1e3, "thousand": 1e3,
	"mi": 1e6, "mm": 1e6, "milhão": 1e6, "milhao": 1e6, "milhões": 1e6, "milhoes": 1e6, "million": 1e6, "millions": 1e6,
	"bi": 1e9, "bilhão": 1e9, "bilhao": 1e9, "bilhões": 1e9, "bilhoes": 1e9, "billion": 1e9, "billions": 1e9,
}

// mention is a number written in a factor text. Tolerance is half a unit of
// the last digit written, times the scale word that followed it.
type mention struct {
	raw       string
	value     float64
	tolerance float64
}

func mentions(text string) []mention {
	var out []mention
	for _, m := range mentionToken.FindAllStringSubmatch(text, -1) {
		tok := m[1]
		if strings.Count(tok, "(") != strings.Count(tok, ")") {
			tok = strings.Trim(tok, "()")
		}
		v, ok := extraction.ParseNumber(tok)
		if !ok {
			continue
		}
		scale := 1.0
		if s, ok := mentionScales[strings.ToLower(m[2])]; ok {
			scale = s
		}
		out = append(out, mention{
			raw:       strings.TrimSpace(m[0]),
			value:     math.Abs(v) * scale,
			tolerance: 0.5 * math.Pow10(-decimals(tok, v)) * scale,
		})
	}
	return out
}

// decimals is how many fraction digits tok was written with: the digits after
// the last separator when that separator parsed as a decimal point.
func decimals(tok string, v float64) int {
	i := strings.LastIndexAny(tok, ".,")
	if i < 0 {
		return 0
	}
	frac := 0
	for _, c := range tok[i+1:] {
		if c >= '0' && c <= '9' {
			frac++
		}
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, tok)
	whole, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}
	if math.Abs(math.Abs(v)*math.Pow10(frac)-whole) <= 1e-6*math.Max(1, whole) {
		return frac
	}
	return 0
}

// MentionsMatch reports whether every number written in text matches one of
// values at the precision it was written. The first offending number is
// returned when one does not.
func MentionsMatch(text string, values []float64) (string, bool) {
	for _, m := range mentions(text) {
		matched := false
		for _, v := range values {
			if math.Abs(m.value-math.Abs(v)) <= m.tolerance+1e-9*math.Max(1, math.Abs(v)) {
				matched = true
				break
			}
		}
		if !matched {
			return m.raw, false
		}
	}
	return "", true
}

// HasMentions reports whether text contains any number.
func HasMentions(text string) bool {
	return len(mentions(text)) > 0
}

// AgeYears is the company age, in years to one decimal, the way factor texts
// render it.
func AgeYears(incorporated, asOf time.Time) float64 {
	return round1(asOf.Sub(incorporated).Hours() / 24 / 365.25)
}

// RegistryMentions returns what a factor about a registry field may cite: the
// numbers it may write and a string it must contain. ok is false when the
// record does not carry the field.
func RegistryMentions(r *models.RegistryRecord, field string, asOf time.Time) (values []float64, must string, ok bool) {
	if r == nil {
		return nil, "", false
	}
	switch field {
	case models.RegistryStatus:
		return nil, r.Status, r.Status != ""
	case models.RegistryIncorporationDate:
		if r.IncorporationDate == nil {
			return nil, "", false
		}
		values = []float64{float64(r.IncorporationDate.Year())}
		if !asOf.IsZero() {
			values = append(values, AgeYears(*r.IncorporationDate, asOf))
		}
		return values, "", true
	case models.RegistryDeclaredCapital:
		if r.DeclaredCapital == nil {
			return nil, "", false
		}
		return []float64{*r.DeclaredCapital}, "", true
	}
	return nil, "", false
}

func containsFold(s, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
