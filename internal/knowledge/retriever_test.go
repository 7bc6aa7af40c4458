package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStore(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory_store.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRetrieveMixedStoreScenario(t *testing.T) {
	path := writeStore(t, `["de hond blaft", {"text": "de kat slaapt veel"}]`)
	r := NewRetriever(NewFileSource(path))

	got, err := r.Retrieve(context.Background(), "kat slaapt")
	require.NoError(t, err)
	assert.Equal(t, []string{"de kat slaapt veel"}, got)
}

func TestRetrieveMissingFileIsEmptyWithoutError(t *testing.T) {
	r := NewRetriever(NewFileSource(filepath.Join(t.TempDir(), "absent.json")))
	got, err := r.Retrieve(context.Background(), "kat")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveCorruptFileIsRetrievalFailure(t *testing.T) {
	for name, body := range map[string]string{
		"truncated": `["de kat`,
		"object":    `{"text": "de kat"}`,
		"number":    `42`,
	} {
		t.Run(name, func(t *testing.T) {
			r := NewRetriever(NewFileSource(writeStore(t, body)))
			got, err := r.Retrieve(context.Background(), "kat")
			require.ErrorIs(t, err, ErrRetrievalFailure)
			assert.Empty(t, got)
		})
	}
}

func TestParseFactsShapes(t *testing.T) {
	facts, err := ParseFacts([]byte(`[
		"  plain  ",
		"",
		{"text": "from text"},
		{"text": "   ", "content": "from content"},
		{"content": "only content"},
		{"text": 7},
		{"other": "ignored"},
		12,
		null,
		["nested"]
	]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "from text", "from content", "only content"}, facts)
}

func TestParseFactsUnsupportedShape(t *testing.T) {
	_, err := ParseFacts([]byte(`{"facts": []}`))
	require.ErrorIs(t, err, ErrUnsupportedShape)
}

func TestRankIsStableAndCapped(t *testing.T) {
	facts := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		facts = append(facts, fmt.Sprintf("kat nummer %d", i))
	}
	facts = append(facts, "kat en hond samen")

	got := Rank("kat hond", facts, 0)
	require.Len(t, got, MaxResults)
	assert.Equal(t, "kat en hond samen", got[0])
	for i := 1; i < len(got); i++ {
		assert.Equal(t, fmt.Sprintf("kat nummer %d", i-1), got[i])
	}
}

func TestScoreOrderingInvariants(t *testing.T) {
	facts := []string{
		"appels zijn rood",
		"appels en peren",
		"bananen zijn geel",
		"peren en appels zijn lekker",
		"niets gemeen",
	}
	scored := Score("appels peren zijn", facts)
	for i, s := range scored {
		assert.Positive(t, s.Overlap)
		if i > 0 {
			assert.LessOrEqual(t, s.Overlap, scored[i-1].Overlap)
		}
	}
	assert.Equal(t, "peren en appels zijn lekker", scored[0].Text)
	assert.Equal(t, 3, scored[0].Overlap)
	assert.Equal(t, "appels zijn rood", scored[1].Text)
	assert.Equal(t, "appels en peren", scored[2].Text)
}

func TestTokenizeSplitsOnNonWordRuns(t *testing.T) {
	got := Tokenize("Hé, wat-is DIT?? snake_case 42!")
	want := map[string]struct{}{
		"hé": {}, "wat": {}, "is": {}, "dit": {}, "snake_case": {}, "42": {},
	}
	assert.Equal(t, want, got)
	assert.Empty(t, Tokenize("?!  ..."))
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := NewRetriever(NewStaticSource("de kat", "de hond"))
	got, err := r.Retrieve(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileSourceConcurrentReaders(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 50; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%q", fmt.Sprintf("feit %d over katten", i))
	}
	b.WriteString("]")
	r := NewRetriever(NewFileSource(writeStore(t, b.String())))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Retrieve(context.Background(), "katten")
			if err != nil {
				errs <- err
				return
			}
			if len(got) != MaxResults {
				errs <- fmt.Errorf("len = %d", len(got))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestFileSourceIsReadFreshEveryCall(t *testing.T) {
	path := writeStore(t, `["de kat slaapt"]`)
	r := NewRetriever(NewFileSource(path))

	got, err := r.Retrieve(context.Background(), "hond")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(path, []byte(`["de hond blaft"]`), 0o644))
	got, err = r.Retrieve(context.Background(), "hond")
	require.NoError(t, err)
	assert.Equal(t, []string{"de hond blaft"}, got)
}

func TestNewSourceDefaultsToFile(t *testing.T) {
	src, err := NewSource(context.Background(), "store.json", "  ")
	require.NoError(t, err)
	fs, ok := src.(*FileSource)
	require.True(t, ok)
	assert.Equal(t, "store.json", fs.Path())
}
