// Package extraction turns financial statement text into confidence-scored
// figures using retrieval over an embedding index and a grounded language model.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maraichr/creditlens/internal/embedding"
	"github.com/maraichr/creditlens/internal/index"
	"github.com/maraichr/creditlens/internal/llm"
	"github.com/maraichr/creditlens/pkg/models"
)

// NoteInsufficientData marks a document with no core field found.
const NoteInsufficientData = "insufficient data"

type Config struct {
	TopK             int
	MinSimilarity    float64
	ConfidenceFloor  float64
	FieldTimeout     time.Duration
	EmbeddingTimeout time.Duration
	Concurrency      int
	MaxAnswerTokens  int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = DefaultConfidenceFloor
	}
	if c.FieldTimeout <= 0 {
		c.FieldTimeout = 30 * time.Second
	}
	if c.EmbeddingTimeout <= 0 {
		c.EmbeddingTimeout = 60 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxAnswerTokens <= 0 {
		c.MaxAnswerTokens = 300
	}
	return c
}

// Result is the outcome of one extraction run.
type Result struct {
	Documents []*models.DocumentIndicators
	Profile   *models.FinancialProfile
	// IndexKey is empty when no index was built.
	IndexKey string
	Notes    []string
}

// ByRole maps each role to its most confident document. Later documents of the
// same role are kept only if strictly more confident.
func (r *Result) ByRole() map[models.DocumentRole]*models.DocumentIndicators {
	out := map[models.DocumentRole]*models.DocumentIndicators{}
	for _, d := range r.Documents {
		if cur, ok := out[d.Role]; !ok || d.Confidence > cur.Confidence {
			out[d.Role] = d
		}
	}
	return out
}

// Engine runs the extraction battery, then fills gaps from labelled statement
// lines. A nil builder, embedder or completer disables retrieval; documents
// then carry only labelled-line figures.
type Engine struct {
	builder   *index.Builder
	embedder  embedding.Embedder
	completer llm.Completer
	cfg       Config
	logger    *slog.Logger
}

func NewEngine(builder *index.Builder, embedder embedding.Embedder, completer llm.Completer, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		builder:   builder,
		embedder:  embedder,
		completer: completer,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Extract never fails on data problems: empty documents, embedding outages and
// model errors degrade to notes and whatever the labelled-line pass finds.
// Only a cancelled ctx is returned as an error.
func (e *Engine) Extract(ctx context.Context, docs []models.Document) (*Result, error) {
	res := &Result{}
	classified := make([]models.Document, 0, len(docs))
	byID := map[string]*models.DocumentIndicators{}

	for _, d := range docs {
		role := d.Role
		if role == "" {
			role = Classify(d.Text)
		}
		ind := models.NewDocumentIndicators(d.ID, role)
		res.Documents = append(res.Documents, ind)
		byID[d.ID] = ind

		if strings.TrimSpace(d.Text) == "" {
			ind.Note("empty or unreadable document")
			continue
		}
		if role == models.RoleUnknown {
			ind.Note("document role could not be determined; indexed but excluded from KPI extraction")
		}
		d.Role = role
		classified = append(classified, d)
	}

	if len(classified) > 0 {
		if err := e.extractAll(ctx, classified, byID, res); err != nil {
			return nil, err
		}
	}

	for _, d := range classified {
		if d.Role == models.RoleUnknown {
			continue
		}
		ind := byID[d.ID]
		if n := mergeLabelled(ind, ExtractLabelled(d)); n > 0 {
			ind.Note(fmt.Sprintf("%d figure(s) read from labelled statement lines", n))
		}
		if ind.Period == "" {
			ind.Period = DetectPeriod(d.Text)
		}
	}

	for _, ind := range res.Documents {
		if ind.Role == models.RoleUnknown {
			continue
		}
		DeriveRatios(ind.Figures, e.cfg.ConfidenceFloor)
		conf, core := documentConfidence(ind.Figures)
		ind.Confidence = conf
		if core == 0 {
			ind.Note(NoteInsufficientData)
		}
	}

	res.Profile = Consolidate(res.Documents, e.cfg.ConfidenceFloor)
	return res, nil
}

func (e *Engine) extractAll(ctx context.Context, docs []models.Document, byID map[string]*models.DocumentIndicators, res *Result) error {
	noteAll := func(msg string) {
		res.Notes = append(res.Notes, msg)
		for _, d := range docs {
			byID[d.ID].Note(msg)
		}
	}

	if e.builder == nil || e.embedder == nil || e.completer == nil {
		noteAll("extraction unavailable: no embedding or language model configured")
		return nil
	}

	ectx, cancel := context.WithTimeout(ctx, e.cfg.EmbeddingTimeout)
	idx, err := e.builder.Build(ectx, docs)
	var qvecs [][]float32
	if err == nil {
		qvecs, err = e.embedQuestions(ectx)
	}
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("embedding index unavailable", slog.String("error", err.Error()))
		noteAll("embedding unavailable: " + err.Error())
		return nil
	}
	res.IndexKey = idx.Key()

	qs := Questions()
	for _, d := range docs {
		if d.Role == models.RoleUnknown {
			continue
		}
		if err := e.extractDocument(ctx, idx, d, qs, qvecs, byID[d.ID]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) embedQuestions(ctx context.Context) ([][]float32, error) {
	qs := Questions()
	texts := make([]string, len(qs))
	for i, q := range qs {
		texts[i] = q.Text
	}
	vecs, err := embedding.EmbedTexts(ctx, e.embedder, texts, embedding.InputQuery)
	if err != nil {
		return nil, fmt.Errorf("embed questions: %w", err)
	}
	return vecs, nil
}

// fieldResult is the outcome of one question against one document.
type fieldResult struct {
	q      Question
	figure *models.Figure
	period string
	note   string
}

func (e *Engine) extractDocument(ctx context.Context, idx *index.Index, doc models.Document, qs []Question, qvecs [][]float32, ind *models.DocumentIndicators) error {
	inDoc := func(c index.Chunk) bool { return c.DocumentID == doc.ID }

	results := make([]fieldResult, len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, q := range qs {
		g.Go(func() error {
			hits := idx.Search(qvecs[i], e.cfg.TopK, e.cfg.MinSimilarity, inDoc)
			results[i] = e.askField(gctx, doc.ID, q, hits)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range results {
		switch {
		case r.q.Field == FieldPeriod:
			ind.Period = r.period
		case r.figure != nil:
			ind.Figures[r.q.Field] = *r.figure
		default:
			ind.Unanswered = append(ind.Unanswered, r.q.Field)
		}
		if r.note != "" {
			ind.Note(r.note)
		}
	}
	if ind.Period == "" {
		ind.Period = DetectPeriod(doc.Text)
	}
	sort.Slice(ind.Unanswered, func(i, j int) bool { return ind.Unanswered[i] < ind.Unanswered[j] })

	e.logger.Debug("document extracted",
		slog.String("document_id", doc.ID),
		slog.String("role", string(doc.Role)),
		slog.Int("figures", len(ind.Figures)),
		slog.Int("unanswered", len(ind.Unanswered)))
	return nil
}

// askField asks the model one question over the retrieved excerpts. Any failure
// leaves the field not found.
func (e *Engine) askField(ctx context.Context, docID string, q Question, hits []index.Hit) fieldResult {
	r := fieldResult{q: q}
	if len(hits) == 0 {
		return r
	}

	fctx, cancel := context.WithTimeout(ctx, e.cfg.FieldTimeout)
	defer cancel()

	raw, err := e.completer.Complete(fctx,
		[]llm.Message{{Role: "user", Content: buildPrompt(q, hits)}},
		llm.Grounded(), llm.JSON(), llm.WithTemperature(0), llm.WithMaxTokens(e.cfg.MaxAnswerTokens))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded) {
			r.note = fmt.Sprintf("%s: model call timed out", q.Field)
		} else {
			r.note = fmt.Sprintf("%s: model call failed", q.Field)
		}
		e.logger.Warn("field extraction failed",
			slog.String("document_id", docID),
			slog.String("field", string(q.Field)),
			slog.String("error", err.Error()))
		return r
	}

	a, err := parseAnswer(raw)
	if err != nil {
		r.note = fmt.Sprintf("%s: unparseable model answer", q.Field)
		return r
	}
	if !a.Found || a.Confidence <= 0 {
		return r
	}

	if q.Field == FieldPeriod {
		r.period = a.text()
		return r
	}

	v, ok := a.number()
	if !ok {
		r.note = fmt.Sprintf("%s: answer is not a number", q.Field)
		return r
	}
	var excerpts strings.Builder
	for _, h := range hits {
		excerpts.WriteString(h.Chunk.Text)
		excerpts.WriteByte('\n')
	}
	if !grounded(v, excerpts.String()) {
		r.note = fmt.Sprintf("%s: value %v not present in retrieved text", q.Field, v)
		return r
	}

	r.figure = &models.Figure{
		Value:      v,
		Confidence: a.Confidence,
		Evidence:   truncate(a.Evidence, 300),
		DocumentID: docID,
	}
	return r
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
