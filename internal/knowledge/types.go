package knowledge

import (
	"context"
	"errors"
)

// MaxResults caps how many ranked facts a retrieval returns.
const MaxResults = 8

// ErrRetrievalFailure wraps any fault while loading or parsing the knowledge store.
var ErrRetrievalFailure = errors.New("knowledge retrieval failed")

// ErrUnsupportedShape is returned when the store document is not a JSON array.
var ErrUnsupportedShape = errors.New("knowledge store is not a JSON array")

// Source yields every fact text in store order. Implementations are read-only and
// must be safe for concurrent callers; they are consulted on every retrieval.
type Source interface {
	Facts(ctx context.Context) ([]string, error)
	Close() error
}
