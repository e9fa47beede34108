// Package neo4j resolves law/article citations to vector point ids using
// the regulation graph. Passage nodes carry the id of their indexed vector
// point, so resolved references can be fetched from the index directly.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
)

const cypherResolve = `
MATCH (a:Article {law_name: $law_name, article: $article})<-[:BELONGS_TO]-(p:Passage)
RETURN p.point_id AS point_id
ORDER BY p.seq ASC, p.point_id ASC
LIMIT $limit`

type Config struct {
	URI      string
	Username string
	Password string
	Database string

	// MaxPassages caps how many passages one citation may expand into.
	MaxPassages int
	Timeout     time.Duration

	Resilience resilience.Config
}

type Resolver struct {
	driver      neo4j.DriverWithContext
	database    string
	maxPassages int
	timeout     time.Duration
	exec        *resilience.Executor
}

func New(cfg Config) (*Resolver, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Resolver{
		driver:      driver,
		database:    cfg.Database,
		maxPassages: cfg.MaxPassages,
		timeout:     cfg.Timeout,
		exec:        resilience.NewExecutor(cfg.Resilience),
	}, nil
}

// Resolve returns the point ids of the passages belonging to the cited
// article. An unknown citation resolves to an empty list, not an error.
func (r *Resolver) Resolve(ctx context.Context, ref domain.Reference) ([]string, error) {
	if ref.LawName == "" || ref.Article == "" {
		return nil, nil
	}
	params := map[string]any{
		"law_name": ref.LawName,
		"article":  ref.Article,
		"limit":    r.maxPassages,
	}
	return resilience.Call(ctx, r.exec, "resolve_reference", classifyNeo4jError,
		func(ctx context.Context) ([]string, error) {
			ctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			result, err := neo4j.ExecuteQuery(ctx, r.driver, cypherResolve, params,
				neo4j.EagerResultTransformer,
				neo4j.ExecuteQueryWithDatabase(r.database),
				neo4j.ExecuteQueryWithReadersRouting(),
			)
			if err != nil {
				return nil, fmt.Errorf("resolve %s#%s: %w", ref.LawName, ref.Article, err)
			}
			ids := make([]string, 0, len(result.Records))
			for _, record := range result.Records {
				value, ok := record.Get("point_id")
				if !ok {
					continue
				}
				if id, ok := value.(string); ok && id != "" {
					ids = append(ids, id)
				}
			}
			return ids, nil
		})
}

func (r *Resolver) Ping(ctx context.Context) error {
	if err := r.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j connectivity: %w", err)
	}
	return nil
}

func (r *Resolver) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
