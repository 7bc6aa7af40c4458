package knowledge

import (
	"context"
	"strings"
)

// NewSource creates a postgres-backed source when a database URL is configured,
// otherwise a file source for path.
func NewSource(ctx context.Context, path, databaseURL string) (Source, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFileSource(path), nil
	}
	return NewPostgresSource(ctx, databaseURL)
}
