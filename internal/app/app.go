// Package app assembles the analysis service from configuration. Every binary
// builds the same graph; optional infrastructure degrades to a warning.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/creditlens/internal/config"
	"github.com/maraichr/creditlens/internal/documents"
	"github.com/maraichr/creditlens/internal/embedding"
	"github.com/maraichr/creditlens/internal/extraction"
	"github.com/maraichr/creditlens/internal/index"
	"github.com/maraichr/creditlens/internal/llm"
	"github.com/maraichr/creditlens/internal/pipeline"
	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/internal/scoring"
	"github.com/maraichr/creditlens/internal/store"
	"github.com/maraichr/creditlens/internal/store/minio"
	"github.com/maraichr/creditlens/internal/store/postgres"
	vk "github.com/maraichr/creditlens/internal/store/valkey"
	"github.com/maraichr/creditlens/internal/validation"
	"github.com/maraichr/creditlens/internal/websearch"
)

// Options selects which optional infrastructure Build may connect to.
type Options struct {
	// Registerer receives pipeline metrics; nil disables them.
	Registerer prometheus.Registerer
	// Offline skips Valkey, Postgres and MinIO.
	Offline bool
}

// App is the assembled service and the infrastructure it holds open.
type App struct {
	Service     *pipeline.Service
	Calibration scoring.Calibration
	Embedder    embedding.Embedder

	// Valkey is nil when unavailable; Results is then nil too.
	Valkey  valkey.Client
	Results *vk.ResultStore

	Probes map[string]func(ctx context.Context) error

	pool    *pgxpool.Pool
	offline bool
}

// Close releases connections opened by Build.
func (a *App) Close() {
	if a.Valkey != nil {
		a.Valkey.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Build wires the pipeline described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{Probes: map[string]func(ctx context.Context) error{}, offline: opts.Offline}

	cal := scoring.DefaultCalibration()
	if cfg.Pipeline.CalibrationFile != "" {
		loaded, err := scoring.LoadCalibration(cfg.Pipeline.CalibrationFile)
		if err != nil {
			return nil, fmt.Errorf("load calibration: %w", err)
		}
		cal = loaded
		logger.Info("calibration loaded", slog.String("file", cfg.Pipeline.CalibrationFile))
	}
	a.Calibration = cal

	var metrics *pipeline.Metrics
	if opts.Registerer != nil {
		metrics = pipeline.NewMetrics(opts.Registerer)
	}

	if !opts.Offline {
		a.connect(ctx, cfg, logger)
	}

	// Embedder (optional; without it extraction yields no figures)
	embedder, err := embedding.NewEmbedder(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if embedder != nil {
		logger.Info("embedder configured", slog.String("model", embedder.ModelID()))
	} else {
		logger.Warn("no embedding provider configured, document extraction disabled")
	}
	a.Embedder = embedder

	completer, err := llm.NewCompleter(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("language model: %w", err)
	}
	if completer == nil {
		logger.Warn("no language model configured, extraction and narratives use fallbacks")
	}

	var builder *index.Builder
	if embedder != nil {
		builderOpts, err := a.indexOptions(ctx, cfg, metrics, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		builder = index.NewBuilder(embedder, cfg.Index.ChunkSize, cfg.Index.ChunkOverlap, logger, builderOpts...)
	}

	extractor := extraction.NewEngine(builder, embedder, completer, extraction.Config{
		TopK:             cfg.Index.TopK,
		MinSimilarity:    cfg.Index.MinSimilarity,
		ConfidenceFloor:  cfg.Pipeline.ConfidenceFloor,
		FieldTimeout:     cfg.Pipeline.FieldTimeout,
		EmbeddingTimeout: cfg.Pipeline.EmbeddingTimeout,
		MaxAnswerTokens:  cfg.LLM.MaxTokens,
	}, logger)

	var lookup registry.Lookup = registry.NewClient(cfg.Registry.PrimaryURL, cfg.Registry.FallbackURL, logger)
	if a.Valkey != nil {
		lookup = registry.NewCachedLookup(lookup, a.Valkey, cfg.Registry.CacheTTL, logger)
	}

	var searcher websearch.Searcher
	if cfg.Search.TavilyAPIKey != "" {
		searcher = websearch.NewClient(cfg.Search.TavilyAPIKey, cfg.Search.BaseURL, cfg.Search.MaxResults, logger)
	} else {
		logger.Warn("TAVILY_API_KEY not set, external signals disabled")
	}

	engine, err := scoring.NewEngine(cal)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("scoring engine: %w", err)
	}
	scoreOpts := []pipeline.ScoreOption{pipeline.WithLanguage(cfg.LLM.Language)}
	if completer != nil {
		narrator := scoring.NewLLMNarrator(completer, cfg.LLM.Language, cfg.LLM.MaxTokens)
		scoreOpts = append(scoreOpts, pipeline.WithNarrator(narrator, cfg.Pipeline.NarrativeTimeout))
	}

	controller := pipeline.NewController(
		pipeline.NewGatherStage(lookup, searcher, cfg.Pipeline.RegistryTimeout, cfg.Pipeline.SearchTimeout, logger),
		pipeline.NewAnalyzeStage(extractor),
		pipeline.NewScoreStage(engine, logger, scoreOpts...),
		pipeline.NewValidateStage(validation.New(cal)),
		metrics,
		logger,
	)

	var docStore documents.Reader
	if cfg.S3.Bucket != "" {
		s3Store, err := documents.NewS3Store(ctx, cfg.S3)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("s3 document store: %w", err)
		}
		docStore = s3Store
		logger.Info("s3 document store configured", slog.String("bucket", cfg.S3.Bucket))
	}

	var sink pipeline.ResultSink
	if a.Results != nil {
		sink = a.Results
	}
	a.Service = pipeline.NewService(documents.NewLoader(docStore), controller, sink, cfg.Pipeline.MaxRetries, logger)
	return a, nil
}

// connect opens the optional stores. Failures are logged and the feature
// they back is disabled.
func (a *App) connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	client, err := vk.NewClient(cfg.Valkey)
	if err != nil {
		logger.Warn("valkey unavailable, async analyses and shared caches disabled", slog.String("error", err.Error()))
	} else {
		a.Valkey = client
		a.Results = vk.NewResultStore(client, cfg.Valkey.ResultTTL)
		a.Probes["valkey"] = func(ctx context.Context) error {
			return client.Do(ctx, client.B().Ping().Build()).Error()
		}
		logger.Info("connected to valkey")
	}

	if cfg.Database.Enabled {
		pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			logger.Warn("postgres unavailable, pgvector index cache disabled", slog.String("error", err.Error()))
		} else {
			if err := store.New(pool).Migrate(ctx); err != nil {
				logger.Warn("postgres migration failed, pgvector index cache disabled", slog.String("error", err.Error()))
				pool.Close()
				return
			}
			a.pool = pool
			a.Probes["postgres"] = pool.Ping
			logger.Info("connected to database")
		}
	}
}

func (a *App) indexOptions(ctx context.Context, cfg *config.Config, metrics *pipeline.Metrics, logger *slog.Logger) ([]index.BuilderOption, error) {
	var opts []index.BuilderOption

	if cfg.Index.MemoryEntries > 0 {
		mem, err := index.NewMemoryCache(cfg.Index.MemoryEntries)
		if err != nil {
			return nil, fmt.Errorf("memory index cache: %w", err)
		}
		opts = append(opts, index.WithCache(mem))
	}
	if cfg.Index.CacheDir != "" {
		disk, err := index.NewDiskCache(cfg.Index.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("disk index cache: %w", err)
		}
		opts = append(opts, index.WithCache(disk))
	}
	if a.pool != nil {
		opts = append(opts, index.WithCache(store.NewIndexCache(store.New(a.pool))))
	}
	if cfg.MinIO.Enabled && !a.offline {
		mc, err := minio.NewClient(cfg.MinIO)
		if err == nil {
			err = mc.EnsureBucket(ctx)
		}
		if err != nil {
			logger.Warn("minio unavailable, object index cache disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, index.WithCache(minio.NewIndexCache(mc)))
			logger.Info("connected to minio", slog.String("bucket", mc.Bucket()))
		}
	}
	if a.Valkey != nil {
		opts = append(opts, index.WithLocker(vk.NewLocker(a.Valkey, cfg.Index.LockTTL)))
	}
	if metrics != nil {
		opts = append(opts, index.WithObserver(metrics.ObserveIndexCache))
	}
	return opts, nil
}
