package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/internal/websearch"
	"github.com/maraichr/creditlens/pkg/models"
)

// GatherStage fetches the registry record and external signals concurrently.
// Both lookups are soft: a failure or timeout leaves the field empty and adds a
// trace note.
type GatherStage struct {
	registry        registry.Lookup
	searcher        websearch.Searcher
	registryTimeout time.Duration
	searchTimeout   time.Duration
	logger          *slog.Logger
}

// NewGatherStage accepts nil collaborators; the corresponding lookup is skipped.
func NewGatherStage(lookup registry.Lookup, searcher websearch.Searcher, registryTimeout, searchTimeout time.Duration, logger *slog.Logger) *GatherStage {
	if registryTimeout <= 0 {
		registryTimeout = 15 * time.Second
	}
	if searchTimeout <= 0 {
		searchTimeout = 20 * time.Second
	}
	return &GatherStage{
		registry:        lookup,
		searcher:        searcher,
		registryTimeout: registryTimeout,
		searchTimeout:   searchTimeout,
		logger:          logger,
	}
}

func (g *GatherStage) Name() string { return StageGather }

func (g *GatherStage) Execute(ctx context.Context, s *models.RunState) error {
	var (
		rec     *models.RegistryRecord
		recErr  error
		signals []models.ExternalSignal
		sigErr  error
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if g.registry == nil {
			recErr = errors.New("registry lookup not configured")
			return nil
		}
		callCtx, cancel := context.WithTimeout(egCtx, g.registryTimeout)
		defer cancel()
		rec, recErr = g.registry.Lookup(callCtx, s.SubjectID)
		return nil
	})
	eg.Go(func() error {
		if g.searcher == nil {
			sigErr = errors.New("web search not configured")
			return nil
		}
		callCtx, cancel := context.WithTimeout(egCtx, g.searchTimeout)
		defer cancel()
		signals, sigErr = g.searcher.Search(callCtx, s.SubjectID)
		return nil
	})
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("gather: %w", err)
	}

	switch {
	case recErr == nil && rec != nil:
		s.Registry = rec
		s.Tracef(StageGather, "registry record found", fmt.Sprintf("source=%s status=%s", rec.Source, rec.Status))
	case errors.Is(recErr, registry.ErrNotFound):
		s.Tracef(StageGather, "registry record not found", "")
	default:
		s.Tracef(StageGather, "registry lookup unavailable", errDetail(recErr))
		g.logger.Warn("registry lookup failed",
			slog.String("request_id", s.RequestID.String()),
			slog.String("error", errDetail(recErr)))
	}

	if sigErr != nil {
		s.Tracef(StageGather, "web search unavailable", sigErr.Error())
		g.logger.Warn("web search failed",
			slog.String("request_id", s.RequestID.String()),
			slog.String("error", sigErr.Error()))
	} else {
		if signals == nil {
			signals = []models.ExternalSignal{}
		}
		s.Signals = signals
		s.Tracef(StageGather, "external signals collected", fmt.Sprintf("count=%d", len(signals)))
	}
	return nil
}

func errDetail(err error) string {
	if err == nil {
		return "empty response"
	}
	return err.Error()
}
