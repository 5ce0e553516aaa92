package scoring

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/maraichr/creditlens/pkg/models"
)

var asOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func mustEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultCalibration())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func activeRegistry(years int) *models.RegistryRecord {
	inc := asOf.AddDate(-years, 0, 0)
	return &models.RegistryRecord{CNPJ: "11222333000181", LegalName: "ACME", Status: "ATIVA", IncorporationDate: &inc}
}

func profile(figs map[models.FieldName]float64, conf float64) *models.FinancialProfile {
	p := &models.FinancialProfile{Figures: map[models.FieldName]models.Figure{}, Confidence: conf, Documents: 1}
	for f, v := range figs {
		p.Figures[f] = models.Figure{Value: v, Confidence: conf}
	}
	return p
}

func strongProfile() *models.FinancialProfile {
	return profile(map[models.FieldName]float64{
		models.FieldROA:              17.4,
		models.FieldDebtToEquity:     0.4,
		models.FieldCurrentLiquidity: 1.8,
	}, 0.9)
}

func findFactor(fs []models.Factor, text string) bool {
	for _, f := range fs {
		if f.Text == text {
			return true
		}
	}
	return false
}

func TestScoreStrongCompanyApproves(t *testing.T) {
	e := mustEngine(t)
	res := e.Score(Input{SubjectID: "11222333000181", Profile: strongProfile(), Registry: activeRegistry(10), AsOf: asOf}, nil)

	if res.FinancialScore != 8.3 {
		t.Errorf("expected financial 8.3, got %v", res.FinancialScore)
	}
	if res.NonFinancialScore != 8.5 {
		t.Errorf("expected non-financial 8.5, got %v", res.NonFinancialScore)
	}
	if res.OverallScore != 8.36 {
		t.Errorf("expected overall 8.36, got %v", res.OverallScore)
	}
	if res.Recommendation != models.RecommendApprove {
		t.Errorf("expected APPROVE, got %s", res.Recommendation)
	}
	if !findFactor(res.PositiveFactors, "Excellent ROA: 17.4%") {
		t.Errorf("expected ROA factor, got %+v", res.PositiveFactors)
	}
	for _, f := range res.PositiveFactors {
		if f.Source == models.SourceIndicator && f.Value == nil {
			t.Errorf("indicator factor %q has no value", f.Text)
		}
	}
	if !strings.Contains(res.Rationale, "APPROVE") || !strings.Contains(res.Rationale, "Excellent ROA") {
		t.Errorf("rationale should mention recommendation and factors: %s", res.Rationale)
	}
}

func TestScoreWithoutDocumentsNeverApproves(t *testing.T) {
	e := mustEngine(t)
	res := e.Score(Input{Registry: activeRegistry(30), AsOf: asOf, Signals: []models.ExternalSignal{
		{Title: "Prêmio de inovação", Relevance: 1, Category: models.SignalNews},
		{Title: "Expansão da fábrica", Relevance: 1, Category: models.SignalNews},
	}}, nil)

	if res.FinancialScore != 3.0 {
		t.Errorf("expected no-evidence financial score 3.0, got %v", res.FinancialScore)
	}
	if res.Recommendation == models.RecommendApprove {
		t.Error("approval without financial evidence")
	}
	if res.Confidence >= 0.7 {
		t.Errorf("expected low confidence, got %v", res.Confidence)
	}
	if len(res.PositiveFactors) == 0 {
		t.Error("expected registry and news factors")
	}
}

func TestRecommendCapsWithoutEvidence(t *testing.T) {
	e := mustEngine(t)
	if got := e.Recommend(9.5, false); got != models.RecommendReview {
		t.Errorf("expected REVIEW, got %s", got)
	}
	if got := e.Recommend(9.5, true); got != models.RecommendApprove {
		t.Errorf("expected APPROVE, got %s", got)
	}
}

func TestMapRecommendationMonotonic(t *testing.T) {
	th := DefaultCalibration().Thresholds
	rank := map[models.Recommendation]int{models.RecommendReject: 0, models.RecommendReview: 1, models.RecommendApprove: 2}
	prev := -1
	for s := 0.0; s <= 10.0; s += 0.05 {
		r := rank[MapRecommendation(s, th)]
		if r < prev {
			t.Fatalf("mapping decreased at %.2f", s)
		}
		prev = r
	}
	if MapRecommendation(7.0, th) != models.RecommendApprove || MapRecommendation(4.0, th) != models.RecommendReject {
		t.Error("threshold boundaries should be inclusive")
	}
	if MapRecommendation(5.5, th) != models.RecommendReview {
		t.Error("expected REVIEW between thresholds")
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	e := mustEngine(t)
	in := Input{Profile: strongProfile(), Registry: activeRegistry(3), AsOf: asOf, Signals: []models.ExternalSignal{
		{Title: "Processo", Snippet: "execução fiscal", Relevance: 0.5, Category: models.SignalLitigation},
	}}
	a := e.Score(in, nil)
	b := e.Score(in, nil)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("scores differ:\n%+v\n%+v", a, b)
	}
}

func TestScoreBandsAndClamping(t *testing.T) {
	e := mustEngine(t)
	weak := profile(map[models.FieldName]float64{
		models.FieldROA:              -4,
		models.FieldROE:              -10,
		models.FieldDebtToEquity:     -0.8,
		models.FieldCurrentLiquidity: 0.5,
		models.FieldNetMargin:        -3,
	}, 0.9)
	res := e.Score(Input{Profile: weak, AsOf: asOf}, nil)
	// 5 - 1.5 - 1 - 2 - 1 - 1.5 = -2 -> clamped
	if res.FinancialScore != 0 {
		t.Errorf("expected financial score clamped to 0, got %v", res.FinancialScore)
	}
	if !findFactor(res.NegativeFactors, "Negative equity: -0.80") {
		t.Errorf("expected negative equity factor, got %+v", res.NegativeFactors)
	}
	if res.Recommendation != models.RecommendReject {
		t.Errorf("expected REJECT, got %s", res.Recommendation)
	}
}

func TestNonFinancialSignalsAndStatus(t *testing.T) {
	e := mustEngine(t)
	reg := activeRegistry(1)
	reg.Status = "SUSPENSA"
	in := Input{Registry: reg, AsOf: asOf, Signals: []models.ExternalSignal{
		{Title: "Ação", Relevance: 1, Category: models.SignalLitigation},
		{Title: "Ação 2", Relevance: 1, Category: models.SignalLitigation},
		{Title: "Ação 3", Relevance: 1, Category: models.SignalLitigation},
		{Title: "Multa aplicada", Relevance: 0.5, Category: models.SignalNews},
	}}
	res := e.Score(in, nil)
	// 6 - 3 (status) - 0.5 (young) - 3 (litigation cap) - 0.5 (news)
	if res.NonFinancialScore != 0 {
		t.Errorf("expected 0, got %v", res.NonFinancialScore)
	}
	var lit *models.Factor
	for i := range res.NegativeFactors {
		if res.NegativeFactors[i].Source == models.SourceSignal && len(res.NegativeFactors[i].Signals) == 3 {
			lit = &res.NegativeFactors[i]
		}
	}
	if lit == nil {
		t.Fatalf("expected litigation factor indexing 3 signals, got %+v", res.NegativeFactors)
	}
}

func TestConfidenceBlend(t *testing.T) {
	e := mustEngine(t)
	signals := make([]models.ExternalSignal, 12)
	res := e.Score(Input{Profile: strongProfile(), Registry: activeRegistry(5), Signals: signals, AsOf: asOf}, nil)
	// 0.2 + 0.5*0.9 + 0.2 + 0.1
	if res.Confidence != 0.95 {
		t.Errorf("expected 0.95, got %v", res.Confidence)
	}

	weak := strongProfile()
	weak.Confidence = 0.1
	res = e.Score(Input{Profile: weak, Registry: activeRegistry(5), Signals: signals, AsOf: asOf}, nil)
	if res.Confidence >= 0.7 {
		t.Errorf("weak extraction must not yield high confidence, got %v", res.Confidence)
	}
}

func TestMergeAndFeedbackDropUnsupportedFactor(t *testing.T) {
	e := mustEngine(t)
	in := Input{Profile: strongProfile(), Registry: activeRegistry(10), AsOf: asOf}
	narr := Narrative{Text: "Boa saúde financeira.", Factors: []ProposedFactor{
		{Field: "ebitda", Polarity: PolarityPositive, Text: "Strong EBITDA margin"},
		{Field: string(models.FieldROA), Polarity: PolarityPositive, Text: "duplicate ROA"},
	}}

	first := e.Merge(e.Score(in, nil), in, narr, nil)
	if !findFactor(first.PositiveFactors, "Strong EBITDA margin") {
		t.Fatal("expected model factor merged on first attempt")
	}
	if findFactor(first.PositiveFactors, "duplicate ROA") {
		t.Error("expected duplicate field skipped")
	}
	if first.Narrative != "Boa saúde financeira." {
		t.Errorf("unexpected narrative %q", first.Narrative)
	}

	fb := &models.Feedback{Attempt: 1, Items: []models.FeedbackItem{{
		Check:   models.CheckFactorsSupported,
		Reason:  "factor references absent field ebitda",
		Factors: []string{"Strong EBITDA margin"},
	}}}
	second := e.Merge(e.Score(in, fb), in, narr, fb)
	if findFactor(second.PositiveFactors, "Strong EBITDA margin") {
		t.Error("expected unsupported factor dropped after feedback")
	}
	if strings.Contains(second.Rationale, "EBITDA") {
		t.Error("rationale should be regenerated without the dropped factor")
	}
	if second.OverallScore != first.OverallScore {
		t.Error("feedback must not change the score")
	}
}

func TestFeedbackRederivesMapping(t *testing.T) {
	e := mustEngine(t)
	in := Input{Profile: strongProfile(), Registry: activeRegistry(10), AsOf: asOf}
	fb := &models.Feedback{Items: []models.FeedbackItem{{Check: models.CheckRecommendationMapping}}}
	res := e.Score(in, fb)
	if res.Recommendation != MapRecommendation(res.OverallScore, e.Calibration().Thresholds) {
		t.Errorf("mapping not re-derived: %s for %.2f", res.Recommendation, res.OverallScore)
	}
	if !strings.Contains(res.Rationale, models.CheckRecommendationMapping) {
		t.Error("rationale should mention the feedback")
	}
}

func TestLoadCalibration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  approve: 8.0\n  reject: 3.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if cal.Thresholds.Approve != 8.0 || cal.Thresholds.Reject != 3.5 {
		t.Errorf("unexpected thresholds %+v", cal.Thresholds)
	}
	if len(cal.Financial.Rules) != len(DefaultCalibration().Financial.Rules) {
		t.Error("expected default rules kept")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("thresholds:\n  approve: 3\n  reject: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(bad); err == nil {
		t.Error("expected inverted thresholds to be rejected")
	}
}

func TestCalibrationMarshalRoundTrip(t *testing.T) {
	data, err := DefaultCalibration().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "cal.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if !reflect.DeepEqual(cal, DefaultCalibration()) {
		t.Error("calibration changed after YAML round trip")
	}
}
