package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads facts from a knowledge_facts table. The table is owned by
// whoever curates the knowledge base; this source only ever selects from it.
//
//	CREATE TABLE knowledge_facts (id BIGSERIAL PRIMARY KEY, text TEXT, content TEXT);
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	return newPostgresSourceFromConfig(ctx, cfg)
}

func newPostgresSourceFromConfig(ctx context.Context, cfg *pgxpool.Config) (*PostgresSource, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresSource{pool: pool}, nil
}

func (s *PostgresSource) Facts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(text, ''), COALESCE(content, '')
		 FROM knowledge_facts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query knowledge facts: %w", err)
	}
	defer rows.Close()

	var facts []string
	for rows.Next() {
		var text, content string
		if err := rows.Scan(&text, &content); err != nil {
			return nil, fmt.Errorf("scan knowledge row: %w", err)
		}
		if fact, ok := pickText(text, content); ok {
			facts = append(facts, fact)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge rows: %w", err)
	}
	return facts, nil
}

func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}
