package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	httpadapter "github.com/kirillkom/retrieval-engine/internal/adapters/http"
	"github.com/kirillkom/retrieval-engine/internal/composition"
	"github.com/kirillkom/retrieval-engine/internal/config"
	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/fusion"
	"github.com/kirillkom/retrieval-engine/internal/core/ingest"
	"github.com/kirillkom/retrieval-engine/internal/core/pipeline"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
	"github.com/kirillkom/retrieval-engine/internal/core/registry"
	"github.com/kirillkom/retrieval-engine/internal/core/rerank"
	"github.com/kirillkom/retrieval-engine/internal/core/retrieve"
	"github.com/kirillkom/retrieval-engine/internal/core/transform"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/embcache"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/retrieval-engine/internal/observability/metrics"
)

type App struct {
	Config       config.Config
	Handler      http.Handler
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	pipelineMetrics := metrics.NewPipelineMetrics("retrieval-api")

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, resilience.DefaultSettings())
	var embedder ports.Embedder = ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	var cacheStore *embcache.RedisStore
	if cfg.EmbedCacheOn {
		store, err := embcache.NewRedisStore(embcache.RedisConfig{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		cacheStore = store
		embedder = embcache.NewCachedEmbedder(
			embedder, store, cfg.OllamaEmbedModel,
			time.Duration(cfg.EmbedCacheTTLS)*time.Second, pipelineMetrics,
		)
	}

	vectorStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	var db *sql.DB
	var chunkRepo *postgres.ChunkRepository
	if cfg.PostgresEnabled {
		opened, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = opened
		chunkRepo = postgres.NewChunkRepository(db)
		if err := chunkRepo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	var chunkSource ports.ChunkSource
	if chunkRepo != nil {
		chunkSource = chunkRepo
	}
	reg := registry.New()
	registerComponents(reg, cfg, embedder, generator, vectorStore, chunkSource)

	spec := composition.Default()
	if cfg.CompositionPath != "" {
		loaded, err := composition.Load(cfg.CompositionPath)
		if err != nil {
			return nil, fmt.Errorf("load composition: %w", err)
		}
		spec = loaded
	}
	applyConfigDefaults(&spec, cfg)

	orchestrator, err := composition.Build(reg, spec, pipelineMetrics)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	var writer ingest.ChunkWriter
	if chunkRepo != nil {
		writer = chunkRepo
	}
	ingestService := ingest.NewService(embedder, vectorStore, writer)

	router := httpadapter.NewRouter(orchestrator, ingestService, httpadapter.Options{
		RateLimitRPS:      cfg.APIRateLimitRPS,
		RateLimitBurst:    cfg.APIRateLimitBurst,
		MaxInFlight:       cfg.APIMaxInFlight,
		BackpressureWait:  time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
		MetricsMiddleware: pipelineMetrics.Middleware,
		MetricsHandler:    pipelineMetrics.Handler(),
	})

	return &App{
		Config:       cfg,
		Handler:      router.Handler(),
		Orchestrator: orchestrator,
		Metrics:      pipelineMetrics,

		closeFn: func() {
			if cacheStore != nil {
				cacheStore.Close()
			}
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// applyConfigDefaults fills spec slots the composition file left empty from
// environment configuration.
func applyConfigDefaults(spec *composition.Spec, cfg config.Config) {
	if spec.Fusion.Method == "" {
		spec.Fusion.Method = cfg.FusionStrategy
	}
	if spec.Fusion.RRFK == 0 {
		spec.Fusion.RRFK = cfg.FusionRRFK
	}
	if spec.Limits.CandidateLimit == 0 {
		spec.Limits.CandidateLimit = cfg.CandidateLimit
	}
	if spec.Limits.DefaultLimit == 0 {
		spec.Limits.DefaultLimit = cfg.TopK
	}
	if spec.Limits.BranchTimeout == 0 {
		spec.Limits.BranchTimeout = composition.Duration(time.Duration(cfg.BranchTimeoutMS) * time.Millisecond)
	}
}

// registerComponents wires every pipeline implementation into the registry.
// Factories close over shared collaborators; composite components resolve
// their parts through the registry itself.
func registerComponents(
	reg *registry.Registry,
	cfg config.Config,
	embedder ports.Embedder,
	generator ports.Generator,
	vectorStore ports.VectorStore,
	chunkSource ports.ChunkSource,
) {
	reg.MustRegister(registry.KindTransformer, "expansion", func(registry.Config) (any, error) {
		return transform.NewExpansion(generator), nil
	})
	reg.MustRegister(registry.KindTransformer, "hyde", func(c registry.Config) (any, error) {
		return transform.NewHypothetical(generator, c.Int("max_chars", 0)), nil
	})
	reg.MustRegister(registry.KindTransformer, "step_back", func(registry.Config) (any, error) {
		return transform.NewStepBack(generator), nil
	})
	reg.MustRegister(registry.KindTransformer, "decompose", func(c registry.Config) (any, error) {
		return transform.NewDecompose(generator, c.Int("max_sub", 0)), nil
	})
	reg.MustRegister(registry.KindTransformer, "chain", func(c registry.Config) (any, error) {
		names, err := c.RequireStrings("stages")
		if err != nil {
			return nil, err
		}
		stages := make([]transform.Transformer, 0, len(names))
		for _, name := range names {
			instance, err := reg.Create(registry.KindTransformer, name, c.Sub(name))
			if err != nil {
				return nil, err
			}
			stage, ok := instance.(transform.Transformer)
			if !ok {
				return nil, fmt.Errorf("chain stage %q has wrong type %T", name, instance)
			}
			stages = append(stages, stage)
		}
		return transform.NewChain(stages...), nil
	})

	reg.MustRegister(registry.KindRetriever, "vector", func(c registry.Config) (any, error) {
		return retrieve.NewVector(embedder, vectorStore, filterFromConfig(c), c.Float("min_score", 0)), nil
	})
	reg.MustRegister(registry.KindRetriever, "keyword", func(c registry.Config) (any, error) {
		if chunkSource == nil {
			return nil, fmt.Errorf("keyword retriever requires the relational chunk store")
		}
		return retrieve.NewKeyword(chunkSource, filterFromConfig(c), c.Int("candidates", cfg.KeywordCandidates)), nil
	})
	reg.MustRegister(registry.KindRetriever, "hybrid", func(c registry.Config) (any, error) {
		names := c.Strings("branches")
		if len(names) == 0 {
			names = []string{"vector", "keyword"}
		}
		branches, err := resolveRetrievers(reg, names, c)
		if err != nil {
			return nil, err
		}
		return retrieve.NewHybrid(
			branches,
			fusion.Method(c.String("method", string(fusion.MethodRRF))),
			fusionOptions(c, cfg),
			time.Duration(c.Int("branch_timeout_ms", cfg.BranchTimeoutMS))*time.Millisecond,
			c.Int("candidates", cfg.CandidateLimit),
		), nil
	})
	reg.MustRegister(registry.KindRetriever, "multi_query", func(c registry.Config) (any, error) {
		base, err := resolveRetriever(reg, c.String("base", "vector"), c)
		if err != nil {
			return nil, err
		}
		instance, err := reg.Create(registry.KindTransformer, c.String("transformer", "decompose"), c.Sub("transformer_params"))
		if err != nil {
			return nil, err
		}
		transformer, ok := instance.(transform.Transformer)
		if !ok {
			return nil, fmt.Errorf("multi_query transformer has wrong type %T", instance)
		}
		return retrieve.NewMultiQuery(
			base,
			transformer,
			fusion.Method(c.String("method", string(fusion.MethodRRF))),
			fusionOptions(c, cfg),
			c.Int("max_queries", 0),
			time.Duration(c.Int("branch_timeout_ms", cfg.BranchTimeoutMS))*time.Millisecond,
		), nil
	})
	reg.MustRegister(registry.KindRetriever, "specialized", func(c registry.Config) (any, error) {
		base, err := resolveRetriever(reg, c.String("base", "hybrid"), c)
		if err != nil {
			return nil, err
		}
		abbreviations := retrieve.DefaultAbbreviations
		if sub := c.Sub("abbreviations"); len(sub) > 0 {
			abbreviations = make(map[string]string, len(sub))
			for alias := range sub {
				abbreviations[alias] = sub.String(alias, "")
			}
		}
		return retrieve.NewSpecialized(base, abbreviations, c.Float("intent_boost", 0)), nil
	})

	reg.MustRegister(registry.KindReranker, "similarity", func(registry.Config) (any, error) {
		return rerank.NewSimilarity(embedder), nil
	})
	reg.MustRegister(registry.KindReranker, "llm", func(c registry.Config) (any, error) {
		return rerank.NewLLM(generator, c.Int("batch_size", 0)), nil
	})
	reg.MustRegister(registry.KindReranker, "multi_stage", func(c registry.Config) (any, error) {
		names := c.Strings("stages")
		if len(names) == 0 {
			names = []string{"similarity", "llm"}
		}
		stages := make([]rerank.Reranker, 0, len(names))
		for _, name := range names {
			instance, err := reg.Create(registry.KindReranker, name, c.Sub(name))
			if err != nil {
				return nil, err
			}
			stage, ok := instance.(rerank.Reranker)
			if !ok {
				return nil, fmt.Errorf("rerank stage %q has wrong type %T", name, instance)
			}
			stages = append(stages, stage)
		}
		return rerank.NewMultiStage(
			stages,
			c.Floats("weights"),
			c.Float("score_weight", rerank.DefaultScoreWeight),
			c.Float("rank_weight", rerank.DefaultRankWeight),
		), nil
	})
	reg.MustRegister(registry.KindReranker, "domain", func(c registry.Config) (any, error) {
		var base rerank.Reranker
		if name := c.String("base", ""); name != "" {
			instance, err := reg.Create(registry.KindReranker, name, c.Sub("base_params"))
			if err != nil {
				return nil, err
			}
			typed, ok := instance.(rerank.Reranker)
			if !ok {
				return nil, fmt.Errorf("domain base reranker has wrong type %T", instance)
			}
			base = typed
		}
		boosts := rerank.Boosts{
			Pricing:       c.Float("pricing_boost", 0),
			Comparison:    c.Float("comparison_boost", 0),
			Configuration: c.Float("configuration_boost", 0),
			Entity:        c.Float("entity_boost", 0),
		}
		return rerank.NewSpecialized(base, boosts, c.Strings("entities")), nil
	})
}

func resolveRetriever(reg *registry.Registry, name string, c registry.Config) (retrieve.Retriever, error) {
	instance, err := reg.Create(registry.KindRetriever, name, c.Sub(name))
	if err != nil {
		return nil, err
	}
	retriever, ok := instance.(retrieve.Retriever)
	if !ok {
		return nil, fmt.Errorf("retriever %q has wrong type %T", name, instance)
	}
	return retriever, nil
}

func resolveRetrievers(reg *registry.Registry, names []string, c registry.Config) ([]retrieve.Retriever, error) {
	out := make([]retrieve.Retriever, 0, len(names))
	for _, name := range names {
		retriever, err := resolveRetriever(reg, name, c)
		if err != nil {
			return nil, err
		}
		out = append(out, retriever)
	}
	return out, nil
}

func filterFromConfig(c registry.Config) domain.SearchFilter {
	return domain.SearchFilter{
		Category: c.String("category", ""),
		Source:   c.String("source", ""),
	}
}

func fusionOptions(c registry.Config, cfg config.Config) fusion.Options {
	return fusion.Options{
		RRFK:    c.Int("rrf_k", cfg.FusionRRFK),
		Weights: c.Floats("weights"),
	}
}
