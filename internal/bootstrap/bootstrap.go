// Package bootstrap wires configuration into running components. The API
// process gets the full pipeline with persistence and events; the MCP
// process gets the stateless retrieval subset.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/config"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/ports"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/usecase"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/cache/redis"
	natsbus "github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/events/nats"
	neo4jgraph "github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/graph/neo4j"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/llm/openai"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/repository/postgres"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/vector/qdrant"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Ask      *usecase.AskUseCase
	Search   *usecase.SearchUseCase
	Sessions *usecase.SessionUseCase

	Normalizer *usecase.Normalizer
	Filters    *usecase.FilterGenerator

	Events  ports.EventBus
	Metrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sessions := postgres.NewSessionStore(db)
	if err := sessions.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	routing := postgres.NewRoutingStore(db)

	m := metrics.NewHTTPServerMetrics("api")

	ret, err := newRetrieval(cfg, m, m.RecordTokenUsage)
	if err != nil {
		return nil, err
	}

	// Events are optional; without a broker the pipeline runs, only the
	// audit trail goes dark.
	var events ports.EventBus
	var bus *natsbus.Bus
	if cfg.NATSURL != "" {
		bus, err = natsbus.New(natsbus.Config{
			URL:        cfg.NATSURL,
			ClientName: "customs-api",
			Resilience: resilience.DefaultConfig(),
		})
		if err != nil {
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		events = bus
	}

	router := usecase.NewRouter(ret.llm, routing, events, m, ret.specialists, usecase.RouterConfig{})

	askUC := usecase.NewAskUseCase(
		ret.normalizer,
		ret.filters,
		ret.retriever,
		router,
		ret.specialists,
		sessions,
		ret.cache,
		ret.llm,
		events,
		usecase.AskConfig{
			TopK:              cfg.RetrievalTopK,
			MaxHistory:        cfg.SessionMaxHistory,
			SpecialistTimeout: time.Duration(cfg.SpecialistTimeoutSeconds) * time.Second,
			AnswerMaxTokens:   cfg.AnswerMaxTokens,
			SessionCacheTTL:   time.Duration(cfg.SessionCacheTTLSeconds) * time.Second,
		},
	)
	searchUC := usecase.NewSearchUseCase(ret.normalizer, ret.filters, ret.retriever, ret.specialists)
	sessionUC := usecase.NewSessionUseCase(sessions, routing, ret.cache)

	return &App{
		Config: cfg,

		Ask:      askUC,
		Search:   searchUC,
		Sessions: sessionUC,

		Normalizer: ret.normalizer,
		Filters:    ret.filters,

		Events:  events,
		Metrics: m,

		closeFn: func() {
			if bus != nil {
				bus.Close()
			}
			ret.close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// SearchApp carries the stateless retrieval pipeline for processes that
// answer search and classification calls without sessions or persistence.
type SearchApp struct {
	Config config.Config

	Search     *usecase.SearchUseCase
	Normalizer *usecase.Normalizer
	Filters    *usecase.FilterGenerator

	closeFn func()
}

func NewSearchOnly(cfg config.Config) (*SearchApp, error) {
	ret, err := newRetrieval(cfg, nil, nil)
	if err != nil {
		return nil, err
	}
	searchUC := usecase.NewSearchUseCase(ret.normalizer, ret.filters, ret.retriever, ret.specialists)

	return &SearchApp{
		Config:     cfg,
		Search:     searchUC,
		Normalizer: ret.normalizer,
		Filters:    ret.filters,
		closeFn:    ret.close,
	}, nil
}

func (a *SearchApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// retrieval is the component set shared by both process flavors.
type retrieval struct {
	llm         *openai.Client
	cache       ports.CacheStore
	normalizer  *usecase.Normalizer
	filters     *usecase.FilterGenerator
	retriever   *usecase.CascadingRetriever
	specialists *usecase.SpecialistSet

	closeFns []func()
}

func newRetrieval(
	cfg config.Config,
	observer ports.PipelineObserver,
	onUsage func(operation, model string, promptTokens, completionTokens int),
) (*retrieval, error) {
	var closeFns []func()

	// The remote cache is optional; the normalizer keeps its in-process
	// cache either way.
	var cache ports.CacheStore
	if cfg.RedisAddr != "" {
		redisCache, err := redis.New(redis.Config{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		cache = redisCache
		closeFns = append(closeFns, redisCache.Close)
	}

	llm := openai.New(openai.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		ChatModel:         cfg.OpenAIChatModel,
		EmbedModel:        cfg.OpenAIEmbedModel,
		EmbedDimensions:   cfg.OpenAIEmbedDimensions,
		MaxConcurrent:     cfg.OpenAIMaxConcurrent,
		RequestsPerSecond: float64(cfg.OpenAIRequestsPerSec),
		CallTimeout:       time.Duration(cfg.OpenAITimeoutSeconds) * time.Second,
		Resilience:        resilience.DefaultConfig(),
		OnUsage:           onUsage,
	})

	index := qdrant.New(qdrant.Config{
		BaseURL:    cfg.QdrantURL,
		Collection: cfg.QdrantCollection,
		Resilience: resilience.DefaultConfig(),
	})

	// Citations resolve through the graph when one is deployed, otherwise
	// through an exact payload scroll on the index itself.
	var resolver ports.ReferenceResolver
	if cfg.Neo4jURI != "" {
		graph, err := neo4jgraph.New(neo4jgraph.Config{
			URI:         cfg.Neo4jURI,
			Username:    cfg.Neo4jUsername,
			Password:    cfg.Neo4jPassword,
			Database:    cfg.Neo4jDatabase,
			MaxPassages: cfg.ReferenceMaxPassages,
			Resilience:  resilience.DefaultConfig(),
		})
		if err != nil {
			return nil, fmt.Errorf("init citation graph: %w", err)
		}
		resolver = graph
		closeFns = append(closeFns, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graph.Close(closeCtx)
		})
	} else {
		resolver = qdrant.NewCitationResolver(index, cfg.ReferenceMaxPassages)
	}

	normalizer := usecase.NewNormalizer(llm, cache, observer, usecase.NormalizerConfig{
		CacheCapacity: cfg.ClassifyCacheSize,
		CacheTTL:      time.Duration(cfg.ClassifyCacheTTLSeconds) * time.Second,
	})
	filters := usecase.NewFilterGenerator(llm, usecase.FilterGeneratorConfig{})
	specialists := usecase.DefaultSpecialists()
	retriever := usecase.NewCascadingRetriever(
		llm,
		index,
		resolver,
		normalizer,
		usecase.NewScorer(),
		observer,
		usecase.RetrieverConfig{},
	)

	return &retrieval{
		llm:         llm,
		cache:       cache,
		normalizer:  normalizer,
		filters:     filters,
		retriever:   retriever,
		specialists: specialists,
		closeFns:    closeFns,
	}, nil
}

func (r *retrieval) close() {
	for i := len(r.closeFns) - 1; i >= 0; i-- {
		r.closeFns[i]()
	}
}
