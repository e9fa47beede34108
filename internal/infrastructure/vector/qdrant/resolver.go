package qdrant

import (
	"context"
	"fmt"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

// CitationResolver maps a law/article citation to the point IDs of the
// passages indexed under it, using an exact payload scroll on the same
// collection that serves vector search. It is the default resolver when no
// citation graph is deployed.
type CitationResolver struct {
	client      *Client
	maxPassages int
}

// NewCitationResolver caps each citation at maxPassages expansions so a
// frequently amended article cannot flood the candidate pool.
func NewCitationResolver(client *Client, maxPassages int) *CitationResolver {
	if maxPassages <= 0 {
		maxPassages = 5
	}
	return &CitationResolver{client: client, maxPassages: maxPassages}
}

// Resolve returns point IDs for the cited article. An unknown citation
// resolves to an empty list, not an error.
func (r *CitationResolver) Resolve(ctx context.Context, ref domain.Reference) ([]string, error) {
	if ref.LawName == "" || ref.Article == "" {
		return nil, nil
	}
	filter := domain.MetadataFilter{
		domain.FieldLawName: ref.LawName,
		domain.FieldArticle: ref.Article,
	}
	hits, err := r.client.scroll(ctx, "resolve_reference", filter, r.maxPassages)
	if err != nil {
		return nil, fmt.Errorf("resolve %s#%s: %w", ref.LawName, ref.Article, err)
	}
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.ID != "" {
			ids = append(ids, hit.ID)
		}
	}
	return ids, nil
}
