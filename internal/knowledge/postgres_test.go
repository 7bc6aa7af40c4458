package knowledge

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requirePostgres returns a pool config whose search_path points at a fresh schema
// that is dropped when the test ends.
func requirePostgres(t *testing.T) (*pgxpool.Config, *pgxpool.Pool, string) {
	t.Helper()

	databaseURL := os.Getenv("KNOWLEDGE_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("skipping postgres test: set KNOWLEDGE_DATABASE_URL to enable")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, databaseURL)
	require.NoError(t, err)
	if err := admin.Ping(ctx); err != nil {
		admin.Close()
		t.Skipf("skipping postgres test: ping: %v", err)
	}

	schema := fmt.Sprintf("robotbuddy_test_%d", time.Now().UnixNano())
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(databaseURL)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return cfg, admin, schema
}

func TestPostgresSourceReadsFactsInIDOrder(t *testing.T) {
	cfg, admin, schema := requirePostgres(t)
	ctx := context.Background()

	_, err := admin.Exec(ctx, `CREATE TABLE `+schema+`.knowledge_facts (id BIGSERIAL PRIMARY KEY, text TEXT, content TEXT)`)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, `INSERT INTO `+schema+`.knowledge_facts (text, content) VALUES
		('  de kat slaapt veel ', NULL),
		(NULL, 'de hond blaft'),
		('   ', 'robots laden op'),
		(NULL, NULL),
		('', '')`)
	require.NoError(t, err)

	src, err := newPostgresSourceFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer src.Close()

	facts, err := src.Facts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"de kat slaapt veel", "de hond blaft", "robots laden op"}, facts)

	got, err := NewRetriever(src).Retrieve(ctx, "blaft de hond")
	require.NoError(t, err)
	assert.Equal(t, []string{"de hond blaft", "de kat slaapt veel"}, got)
}

func TestPostgresSourceWrapsQueryErrors(t *testing.T) {
	cfg, _, _ := requirePostgres(t)
	ctx := context.Background()

	src, err := newPostgresSourceFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Facts(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query knowledge facts")
}

func TestNewPostgresSourceRejectsBadURL(t *testing.T) {
	_, err := NewPostgresSource(context.Background(), "postgres://%zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse postgres config")
}
