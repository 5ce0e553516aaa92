package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/maraichr/creditlens/internal/documents"
	"github.com/maraichr/creditlens/internal/extraction"
	"github.com/maraichr/creditlens/internal/index"
	"github.com/maraichr/creditlens/internal/llm"
	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/internal/scoring"
	"github.com/maraichr/creditlens/internal/validation"
	"github.com/maraichr/creditlens/pkg/models"
)

const testCNPJ = "11222333000181"

var asOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRegistry struct {
	rec   *models.RegistryRecord
	err   error
	delay time.Duration
}

func (f *fakeRegistry) Lookup(ctx context.Context, _ string) (*models.RegistryRecord, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.rec, f.err
}

type fakeSearcher struct {
	signals []models.ExternalSignal
	err     error
}

func (f *fakeSearcher) Search(context.Context, string) ([]models.ExternalSignal, error) {
	return f.signals, f.err
}

// profileExtractor returns a fixed profile for every document set.
type profileExtractor struct {
	figures map[models.FieldName]float64
	conf    float64
	calls   atomic.Int32
}

func (p *profileExtractor) Extract(_ context.Context, docs []models.Document) (*extraction.Result, error) {
	p.calls.Add(1)
	res := &extraction.Result{Profile: &models.FinancialProfile{Figures: map[models.FieldName]models.Figure{}}}
	for i, d := range docs {
		ind := models.NewDocumentIndicators(d.ID, models.RoleBalanceSheet)
		if i == 0 {
			for f, v := range p.figures {
				fig := models.Figure{Value: v, Confidence: p.conf, DocumentID: d.ID}
				ind.Figures[f] = fig
				res.Profile.Figures[f] = fig
			}
			ind.Confidence = p.conf
		}
		res.Documents = append(res.Documents, ind)
	}
	res.Profile.Confidence = p.conf
	res.Profile.Documents = len(docs)
	return res, nil
}

// scriptedNarrator proposes the same factors on every call.
type scriptedNarrator struct {
	factors []scoring.ProposedFactor
	calls   atomic.Int32
}

func (n *scriptedNarrator) Narrate(context.Context, scoring.NarrativeRequest) (scoring.Narrative, error) {
	n.calls.Add(1)
	return scoring.Narrative{Text: "Model narrative.", Factors: n.factors}, nil
}

func activeRecord(years int) *models.RegistryRecord {
	inc := asOf.AddDate(-years, 0, 0)
	return &models.RegistryRecord{CNPJ: testCNPJ, LegalName: "ACME LTDA", Status: "ATIVA", IncorporationDate: &inc, Source: "receitaws"}
}

type harness struct {
	reg       *fakeRegistry
	search    *fakeSearcher
	extractor Extractor
	narrator  scoring.Narrator
	metrics   *Metrics
}

func (h harness) service(t *testing.T) *Service {
	t.Helper()
	cal := scoring.DefaultCalibration()
	eng, err := scoring.NewEngine(cal)
	if err != nil {
		t.Fatal(err)
	}
	opts := []ScoreOption{WithClock(func() time.Time { return asOf }), WithLanguage("en")}
	if h.narrator != nil {
		opts = append(opts, WithNarrator(h.narrator, time.Second))
	}
	ctrl := NewController(
		NewGatherStage(h.reg, h.search, time.Second, time.Second, discardLogger()),
		NewAnalyzeStage(h.extractor),
		NewScoreStage(eng, discardLogger(), opts...),
		NewValidateStage(validation.New(cal)),
		h.metrics,
		discardLogger(),
	)
	return NewService(documents.NewLoader(nil), ctrl, nil, models.DefaultMaxRetries, discardLogger())
}

func balanceSheet() []documents.Source {
	return []documents.Source{{Filename: "balanco.txt", Role: models.RoleBalanceSheet, Text: "BALANÇO PATRIMONIAL"}}
}

func TestScenarioNoDocumentsNeverApproves(t *testing.T) {
	ext := &profileExtractor{}
	h := harness{reg: &fakeRegistry{rec: activeRecord(10)}, search: &fakeSearcher{}, extractor: ext}

	s, err := h.service(t).Analyze(context.Background(), AnalyzeRequest{SubjectID: "11.222.333/0001-81"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Status != models.StatusApproved {
		t.Fatalf("expected APPROVED run, got %s (%s)", s.Status, s.Error)
	}
	if s.Risk.Recommendation == models.RecommendApprove {
		t.Errorf("expected REVIEW or REJECT without documents, got %s", s.Risk.Recommendation)
	}
	if s.Risk.Confidence >= 0.5 {
		t.Errorf("expected low confidence without financial evidence, got %v", s.Risk.Confidence)
	}
	if ext.calls.Load() != 0 {
		t.Error("extractor should not run without documents")
	}
	if s.SubjectID != testCNPJ {
		t.Errorf("expected normalized subject, got %s", s.SubjectID)
	}
}

func TestScenarioStrongCompanyApprovesFirstAttempt(t *testing.T) {
	h := harness{
		reg: &fakeRegistry{rec: activeRecord(10)},
		search: &fakeSearcher{signals: []models.ExternalSignal{
			{Title: "ACME anuncia expansão da fábrica", Relevance: 0.8, Category: models.SignalNews},
			{Title: "ACME recebe prêmio de inovação", Relevance: 0.8, Category: models.SignalNews},
		}},
		extractor: &profileExtractor{figures: map[models.FieldName]float64{
			models.FieldROA:              18,
			models.FieldROE:              25,
			models.FieldCurrentLiquidity: 2.3,
		}, conf: 0.9},
		narrator: &scriptedNarrator{},
	}

	s, err := h.service(t).Analyze(context.Background(), AnalyzeRequest{SubjectID: testCNPJ, Documents: balanceSheet()})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Status != models.StatusApproved || s.RetryCount != 0 {
		t.Fatalf("expected approval on first attempt, got %s after %d retries", s.Status, s.RetryCount)
	}
	r := s.Risk
	if r.FinancialScore < 8 || r.NonFinancialScore < 7.5 || math.Abs(r.OverallScore-8.72) > 0.01 {
		t.Errorf("unexpected scores %.2f / %.2f / %.2f", r.FinancialScore, r.NonFinancialScore, r.OverallScore)
	}
	if r.Recommendation != models.RecommendApprove || !r.Validated {
		t.Errorf("expected validated APPROVE, got %s validated=%v", r.Recommendation, r.Validated)
	}
	for _, c := range s.Validation.Checks {
		if !c.Passed {
			t.Errorf("check %s failed: %s", c.Name, c.Detail)
		}
	}
	if r.Narrative != "Model narrative." {
		t.Errorf("expected model narrative, got %q", r.Narrative)
	}
	if s.CompletedAt == nil {
		t.Error("expected completion time")
	}
}

func TestScenarioUnsupportedFactorIsDroppedOnRetry(t *testing.T) {
	narrator := &scriptedNarrator{factors: []scoring.ProposedFactor{
		{Field: string(models.FieldNetMargin), Polarity: scoring.PolarityPositive, Text: "Healthy net margin"},
	}}
	h := harness{
		reg:       &fakeRegistry{rec: activeRecord(10)},
		search:    &fakeSearcher{},
		extractor: &profileExtractor{figures: map[models.FieldName]float64{models.FieldROA: 18}, conf: 0.9},
		narrator:  narrator,
	}

	s, err := h.service(t).Analyze(context.Background(), AnalyzeRequest{SubjectID: testCNPJ, Documents: balanceSheet()})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Status != models.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", s.Status)
	}
	if s.RetryCount != 1 {
		t.Errorf("expected one retry, got %d", s.RetryCount)
	}
	if narrator.calls.Load() != 2 {
		t.Errorf("expected two scoring attempts, got %d", narrator.calls.Load())
	}
	for _, f := range s.Risk.Factors() {
		if f.Text == "Healthy net margin" {
			t.Error("unsupported factor survived the retry")
		}
	}

	var rejected bool
	for _, e := range s.Trace {
		if e.Stage == StageValidate && e.Attempt == 0 {
			rejected = strings.Contains(e.Message, string(models.VerdictRejected)) &&
				strings.Contains(e.Detail, models.CheckFactorsSupported)
		}
	}
	if !rejected {
		t.Errorf("expected first validation to reject on %s, trace %+v", models.CheckFactorsSupported, s.Trace)
	}
	if s.Feedback != nil {
		t.Error("feedback should be consumed by the retry")
	}
}

func TestScenarioFabricatedFigureNeverReachesReport(t *testing.T) {
	narrator := &scriptedNarrator{factors: []scoring.ProposedFactor{
		{Field: string(models.FieldRevenue), Polarity: scoring.PolarityPositive, Text: "Revenue of R$ 90 million shows scale"},
	}}
	h := harness{
		reg:    &fakeRegistry{rec: activeRecord(10)},
		search: &fakeSearcher{},
		extractor: &profileExtractor{figures: map[models.FieldName]float64{
			models.FieldROA:     18,
			models.FieldRevenue: 1_000_000,
		}, conf: 0.9},
		narrator: narrator,
	}

	s, err := h.service(t).Analyze(context.Background(), AnalyzeRequest{SubjectID: testCNPJ, Documents: balanceSheet()})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Status == models.StatusFailed {
		t.Fatalf("run failed: %s", s.Error)
	}
	for _, f := range s.Risk.Factors() {
		if strings.Contains(f.Text, "90 million") {
			t.Errorf("fabricated figure reached the result: %q", f.Text)
		}
	}
	if c, _ := s.Validation.Check(models.CheckFactorsSupported); !c.Passed {
		t.Errorf("expected factors to verify, got %s", c.Detail)
	}
}

const statement = `BALANÇO PATRIMONIAL EM 31/12/2023 (em reais)
Ativo circulante 400.000,00
Ativo total 1.000.000,00
Passivo circulante 200.000,00
Passivo total 600.000,00
Patrimônio líquido 400.000,00
DEMONSTRAÇÃO DO RESULTADO
Receita líquida 2.000.000,00
Lucro líquido 150.000,00`

type flatEmbedder struct{}

func (flatEmbedder) EmbedBatch(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

func (flatEmbedder) ModelID() string { return "flat" }

// slowProfitModel answers every question except net profit, which hangs.
type slowProfitModel struct{}

func (slowProfitModel) Complete(ctx context.Context, msgs []llm.Message, _ ...llm.Option) (string, error) {
	prompt := msgs[len(msgs)-1].Content
	answers := map[string]string{
		"net revenue":                        `{"found": true, "value": 2000000, "confidence": 0.9}`,
		"total assets":                       `{"found": true, "value": 1000000, "confidence": 0.9}`,
		"total liabilities excluding equity": `{"found": true, "value": 600000, "confidence": 0.9}`,
		"shareholders' equity":               `{"found": true, "value": 400000, "confidence": 0.9}`,
		"current assets":                     `{"found": true, "value": 400000, "confidence": 0.9}`,
		"current liabilities":                `{"found": true, "value": 200000, "confidence": 0.9}`,
	}
	if strings.Contains(prompt, "Question (net profit or loss)") {
		<-ctx.Done()
		return "", ctx.Err()
	}
	for label, ans := range answers {
		if strings.Contains(prompt, "Question ("+label+")") {
			return ans, nil
		}
	}
	return `{"found": false}`, nil
}

func (slowProfitModel) Model() string { return "slow" }

func TestScenarioFieldTimeoutLeavesRatiosAbsent(t *testing.T) {
	emb := flatEmbedder{}
	engine := extraction.NewEngine(
		index.NewBuilder(emb, 1000, 200, discardLogger()),
		emb, slowProfitModel{},
		extraction.Config{FieldTimeout: 50 * time.Millisecond},
		discardLogger(),
	)
	h := harness{reg: &fakeRegistry{rec: activeRecord(10)}, search: &fakeSearcher{}, extractor: engine}

	s, err := h.service(t).Analyze(context.Background(), AnalyzeRequest{
		SubjectID: testCNPJ,
		Documents: []documents.Source{{Filename: "balanco.txt", Role: models.RoleBalanceSheet, Text: statement}},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Status == models.StatusFailed {
		t.Fatalf("run failed: %s", s.Error)
	}
	for _, f := range []models.FieldName{models.FieldNetProfit, models.FieldROA, models.FieldROE} {
		if _, ok := s.Financials.Get(f); ok {
			t.Errorf("expected %s absent", f)
		}
	}
	ind := s.Indicators[models.RoleBalanceSheet]
	if ind == nil || ind.Confidence >= 0.9 {
		t.Fatalf("expected reduced document confidence, got %+v", ind)
	}
	for _, f := range s.Risk.Factors() {
		if f.Field == string(models.FieldROA) || f.Field == string(models.FieldROE) {
			t.Errorf("unexpected factor on missing ratio: %s", f.Text)
		}
	}
}

func TestGatherFailuresAreSoft(t *testing.T) {
	h := harness{
		reg:       &fakeRegistry{delay: 5 * time.Second},
		search:    &fakeSearcher{err: errors.New("tavily down")},
		extractor: &profileExtractor{},
	}
	ctrl := h.service(t).controller
	ctrl.gather = NewGatherStage(h.reg, h.search, 20*time.Millisecond, time.Second, discardLogger())

	s := ctrl.Run(context.Background(), models.NewRunState(testCNPJ, nil))
	if s.Status == models.StatusFailed {
		t.Fatalf("gather failures must not fail the run: %s", s.Error)
	}
	if s.Registry != nil || len(s.Signals) != 0 {
		t.Error("expected empty gather results")
	}
	var notes []string
	for _, e := range s.Trace {
		if e.Stage == StageGather {
			notes = append(notes, e.Message)
		}
	}
	joined := strings.Join(notes, "|")
	if !strings.Contains(joined, "registry lookup unavailable") || !strings.Contains(joined, "web search unavailable") {
		t.Errorf("expected soft-failure notes, got %v", notes)
	}
}

func TestGatherRegistryNotFound(t *testing.T) {
	g := NewGatherStage(&fakeRegistry{err: registry.ErrNotFound}, &fakeSearcher{}, time.Second, time.Second, discardLogger())
	s := models.NewRunState(testCNPJ, nil)
	if err := g.Execute(context.Background(), s); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if s.Registry != nil || s.Trace[0].Message != "registry record not found" {
		t.Errorf("unexpected state %+v", s.Trace)
	}
}

// Controller-level tests use stage stubs.

func stubRisk(s *models.RunState) {
	s.Risk = &models.RiskResult{OverallScore: 5, Recommendation: models.RecommendReview, Attempt: s.RetryCount}
}

func TestControllerRetryIsBounded(t *testing.T) {
	var scores, validations int
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	noop := NewStageFunc("noop", func(context.Context, *models.RunState) error { return nil })
	score := NewStageFunc(StageScore, func(_ context.Context, s *models.RunState) error {
		scores++
		stubRisk(s)
		return nil
	})
	reject := NewStageFunc(StageValidate, func(_ context.Context, s *models.RunState) error {
		validations++
		s.Validation = &models.ValidationResult{
			Verdict:  models.VerdictRejected,
			Feedback: &models.Feedback{Attempt: s.RetryCount, Items: []models.FeedbackItem{{Check: models.CheckFactorsSupported}}},
		}
		return nil
	})

	for _, limit := range []int{0, 1, 2, 3} {
		scores, validations = 0, 0
		s := models.NewRunState(testCNPJ, nil)
		s.MaxRetries = limit
		NewController(noop, noop, score, reject, metrics, discardLogger()).Run(context.Background(), s)

		if s.Status != models.StatusExhausted {
			t.Errorf("limit=%d: expected EXHAUSTED, got %s", limit, s.Status)
		}
		if s.RetryCount != limit || scores != limit+1 || validations != limit+1 {
			t.Errorf("limit=%d: retries=%d scores=%d validations=%d", limit, s.RetryCount, scores, validations)
		}
		if s.Risk == nil || s.Risk.Validated {
			t.Errorf("limit=%d: expected last risk result, unvalidated", limit)
		}
	}
	if got := testutil.ToFloat64(metrics.retries); got != 6 {
		t.Errorf("expected 6 retries recorded, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues(string(models.StatusExhausted))); got != 4 {
		t.Errorf("expected 4 exhausted runs, got %v", got)
	}
}

func TestControllerFeedbackReachesScoring(t *testing.T) {
	var seen []*models.Feedback
	noop := NewStageFunc("noop", func(context.Context, *models.RunState) error { return nil })
	score := NewStageFunc(StageScore, func(_ context.Context, s *models.RunState) error {
		seen = append(seen, s.Feedback)
		s.Feedback = nil
		stubRisk(s)
		return nil
	})
	validate := NewStageFunc(StageValidate, func(_ context.Context, s *models.RunState) error {
		if s.RetryCount == 0 {
			s.Validation = &models.ValidationResult{Verdict: models.VerdictRejected,
				Feedback: &models.Feedback{Items: []models.FeedbackItem{{Check: models.CheckRecommendationMapping}}}}
			return nil
		}
		s.Validation = &models.ValidationResult{Verdict: models.VerdictApproved}
		return nil
	})

	s := NewController(noop, noop, score, validate, nil, discardLogger()).Run(context.Background(), models.NewRunState(testCNPJ, nil))
	if s.Status != models.StatusApproved || !s.Risk.Validated {
		t.Fatalf("expected validated approval, got %s", s.Status)
	}
	if len(seen) != 2 || seen[0] != nil || !seen[1].Flagged(models.CheckRecommendationMapping) {
		t.Errorf("unexpected feedback sequence %+v", seen)
	}
}

func TestControllerPanicFailsRun(t *testing.T) {
	var ran bool
	noop := NewStageFunc("noop", func(context.Context, *models.RunState) error { return nil })
	boom := NewStageFunc(StageAnalyze, func(context.Context, *models.RunState) error { panic("index exploded") })
	after := NewStageFunc(StageScore, func(context.Context, *models.RunState) error { ran = true; return nil })

	s := NewController(noop, boom, after, noop, nil, discardLogger()).Run(context.Background(), models.NewRunState(testCNPJ, nil))
	if s.Status != models.StatusFailed {
		t.Fatalf("expected FAILED, got %s", s.Status)
	}
	if ran {
		t.Error("no stage may run after a failure")
	}
	if !strings.Contains(s.Error, "index exploded") {
		t.Errorf("expected panic message in error, got %q", s.Error)
	}
	last := s.Trace[len(s.Trace)-1]
	if last.Stage != StageAnalyze || !strings.Contains(last.Detail, "goroutine") {
		t.Errorf("expected stack trace in trace detail, got %+v", last)
	}
}

func TestControllerStageErrorFailsRun(t *testing.T) {
	noop := NewStageFunc("noop", func(context.Context, *models.RunState) error { return nil })
	broken := NewStageFunc(StageScore, func(context.Context, *models.RunState) error { return errors.New("calibration missing") })

	s := NewController(noop, noop, broken, noop, nil, discardLogger()).Run(context.Background(), models.NewRunState(testCNPJ, nil))
	if s.Status != models.StatusFailed || s.RetryCount != 0 {
		t.Errorf("expected FAILED without retry, got %s / %d", s.Status, s.RetryCount)
	}
	if s.CompletedAt == nil {
		t.Error("failed runs are completed too")
	}
	last := s.Trace[len(s.Trace)-1]
	for _, want := range []string{"stage=" + StageScore, "status=" + string(models.StatusScoring), "attempt=0/", "error_type=*errors.errorString", "calibration missing"} {
		if !strings.Contains(last.Detail, want) {
			t.Errorf("trace detail %q missing %q", last.Detail, want)
		}
	}
}

func TestControllerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	noop := NewStageFunc("noop", func(context.Context, *models.RunState) error { return nil })
	s := NewController(noop, noop, noop, noop, nil, discardLogger()).Run(ctx, models.NewRunState(testCNPJ, nil))
	if s.Status != models.StatusFailed || !strings.Contains(s.Error, "cancelled") {
		t.Errorf("expected cancelled run to fail, got %s %q", s.Status, s.Error)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	svc := harness{reg: &fakeRegistry{}, search: &fakeSearcher{}, extractor: &profileExtractor{}}.service(t)
	neg := -10.0

	tests := []struct {
		name string
		req  AnalyzeRequest
		want error
	}{
		{"bad check digit", AnalyzeRequest{SubjectID: "11222333000182"}, ErrInvalidSubject},
		{"short", AnalyzeRequest{SubjectID: "123"}, ErrInvalidSubject},
		{"pdf", AnalyzeRequest{SubjectID: testCNPJ, Documents: []documents.Source{{Filename: "a.pdf", Text: "x"}}}, ErrUnsupportedDocument},
		{"negative amount", AnalyzeRequest{SubjectID: testCNPJ, RequestedAmount: &neg}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Analyze(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !IsInputError(err) {
				t.Errorf("expected input error classification for %v", err)
			}
		})
	}
}

type memorySink struct{ saved []*models.RunState }

func (m *memorySink) Save(_ context.Context, s *models.RunState) error {
	m.saved = append(m.saved, s)
	return nil
}

type failingReader struct{ err error }

func (f failingReader) Read(context.Context, string, int64) ([]byte, error) { return nil, f.err }

func TestAnalyzeStoresLoadFailure(t *testing.T) {
	sink := &memorySink{}
	svc := harness{reg: &fakeRegistry{}, search: &fakeSearcher{}, extractor: &profileExtractor{}}.service(t)
	svc.sink = sink
	svc.loader = documents.NewLoader(failingReader{err: errors.New("connection reset")})
	req := AnalyzeRequest{
		RequestID: uuid.New(),
		SubjectID: testCNPJ,
		Documents: []documents.Source{{ObjectKey: "acme/dre.txt"}},
	}

	_, err := svc.Analyze(context.Background(), req)
	if !errors.Is(err, ErrDocumentLoad) {
		t.Fatalf("expected ErrDocumentLoad, got %v", err)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("expected a stored result, got %d", len(sink.saved))
	}
	s := sink.saved[0]
	if s.RequestID != req.RequestID || s.Status != models.StatusFailed {
		t.Errorf("expected FAILED result for %s, got %s %s", req.RequestID, s.RequestID, s.Status)
	}
	if !strings.Contains(s.Error, "connection reset") || s.CompletedAt == nil {
		t.Errorf("unexpected failure record: %+v", s)
	}
	if len(s.Trace) != 1 || s.Trace[0].Stage != "load" {
		t.Errorf("expected a load trace entry, got %+v", s.Trace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Analyze(ctx, req); err == nil {
		t.Fatal("expected error on cancelled load")
	}
	if len(sink.saved) != 1 {
		t.Errorf("expected nothing stored for an interrupted load, got %d", len(sink.saved))
	}
}

func TestAnalyzeSavesResult(t *testing.T) {
	sink := &memorySink{}
	svc := harness{reg: &fakeRegistry{rec: activeRecord(3)}, search: &fakeSearcher{}, extractor: &profileExtractor{}}.service(t)
	svc.sink = sink

	s, err := svc.Analyze(context.Background(), AnalyzeRequest{SubjectID: testCNPJ, Purpose: "working capital"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(sink.saved) != 1 || sink.saved[0].RequestID != s.RequestID {
		t.Errorf("expected result saved once, got %d", len(sink.saved))
	}
	if s.Purpose != "working capital" {
		t.Errorf("expected purpose carried into state, got %q", s.Purpose)
	}
}
