package extraction

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var numberToken = regexp.MustCompile(`\(?-?\d(?:[\d.,]*\d)?\)?`)

// ParseNumber reads a monetary or ratio value written in Brazilian
// ("1.234.567,89") or international ("1,234,567.89") notation. Parentheses
// and a leading minus mark negatives; currency symbols are ignored.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	for _, cur := range []string{"R$", "US$", "$", "%", "\u00a0", " "} {
		s = strings.ReplaceAll(s, cur, "")
	}
	if s == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != ',' {
			return 0, false
		}
	}

	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	case dots == 1:
		// "1.500" is a thousands group; "17.4" and "0.125" are decimals.
		if i := strings.Index(s, "."); len(s)-i-1 == 3 && strings.TrimLeft(s[:i], "0") != "" {
			s = strings.Replace(s, ".", "", 1)
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// numericTokens returns every number that appears in text.
func numericTokens(text string) []float64 {
	matches := numberToken.FindAllString(text, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if strings.Count(m, "(") != strings.Count(m, ")") {
			m = strings.Trim(m, "()")
		}
		if v, ok := ParseNumber(m); ok {
			out = append(out, v)
		}
	}
	return out
}

var groundingScales = []float64{1, 1e3, 1e6}

// grounded reports whether v matches a number in the context, directly or
// after thousand/million scaling ("em milhares de reais").
func grounded(v float64, context string) bool {
	for _, t := range numericTokens(context) {
		for _, s := range groundingScales {
			if approxEqual(math.Abs(t)*s, math.Abs(v)) {
				return true
			}
		}
	}
	return false
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 0.005*math.Max(math.Abs(a), math.Abs(b))+1e-9
}

var (
	fullDatePattern  = regexp.MustCompile(`\b(\d{2})/(\d{2})/((?:19|20)\d{2})\b`)
	monthYearPattern = regexp.MustCompile(`(?i)\b(janeiro|fevereiro|março|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+(?:de\s+)?((?:19|20)\d{2})\b`)
	yearPattern      = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// DetectPeriod finds the reporting period in text: a full date, then a month
// and year, then the most frequent year (latest wins ties).
func DetectPeriod(text string) string {
	if m := fullDatePattern.FindString(text); m != "" {
		return m
	}
	if m := monthYearPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1]) + " de " + m[2]
	}

	counts := map[string]int{}
	for _, m := range yearPattern.FindAllString(text, -1) {
		counts[m]++
	}
	if len(counts) == 0 {
		return ""
	}
	years := make([]string, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool {
		if counts[years[i]] != counts[years[j]] {
			return counts[years[i]] > counts[years[j]]
		}
		return years[i] > years[j]
	})
	return years[0]
}
