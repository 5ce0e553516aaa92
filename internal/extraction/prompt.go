package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maraichr/creditlens/internal/index"
	"github.com/maraichr/creditlens/internal/llm"
)

const answerFormat = `Respond with a single JSON object:
{"found": true|false, "value": <number, or text for the period>, "confidence": <0.0-1.0>, "evidence": "<verbatim excerpt>"}
Use found=false when the excerpts do not state the value. Report amounts exactly as written, in the units of the excerpt; do not compute or convert.`

func buildPrompt(q Question, hits []index.Hit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question (%s): %s\n\n", q.Label, q.Text)
	sb.WriteString("Excerpts:\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "--- excerpt %d ---\n%s\n", i+1, h.Chunk.Text)
	}
	sb.WriteString("\n")
	sb.WriteString(answerFormat)
	return sb.String()
}

// answer is the model's reply to one question.
type answer struct {
	Found      bool            `json:"found"`
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
	Evidence   string          `json:"evidence"`
}

func parseAnswer(raw string) (answer, error) {
	obj, err := llm.ExtractJSON(raw)
	if err != nil {
		return answer{}, err
	}
	var a answer
	if err := json.Unmarshal([]byte(obj), &a); err != nil {
		return answer{}, fmt.Errorf("decode answer: %w", err)
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return a, nil
}

// number reads Value as a JSON number or a formatted numeric string.
func (a answer) number() (float64, bool) {
	if len(a.Value) == 0 || string(a.Value) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(a.Value, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		return ParseNumber(s)
	}
	return 0, false
}

// text reads Value as a string, rendering numbers verbatim.
func (a answer) text() string {
	if len(a.Value) == 0 || string(a.Value) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(a.Value))
}
