package knowledge

import (
	"context"
	"fmt"
)

// Retriever ranks the facts of a Source against a query.
type Retriever struct {
	source Source
	limit  int
}

func NewRetriever(source Source) *Retriever {
	return &Retriever{source: source, limit: MaxResults}
}

// Retrieve re-reads the source and returns at most MaxResults facts sharing at least
// one token with query. Any source fault yields no facts and an error matching
// ErrRetrievalFailure; callers are expected to continue without facts.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	if r == nil || r.source == nil {
		return nil, nil
	}
	facts, err := r.source.Facts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailure, err)
	}
	return Rank(query, facts, r.limit), nil
}
