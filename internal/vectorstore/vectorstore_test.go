package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finchat/internal/model"
)

// stubEmbedder maps known texts to fixed unit vectors so similarity
// scores are fully deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"fees question":   {1, 0, 0},
		"fee schedule":    {1, 0, 0},
		"security basics": {0, 1, 0},
	}}
	return New(Options{
		DataDir:             t.TempDir(),
		IndexName:           "faq-index",
		SimilarityThreshold: 0.75,
	}, embedder, zap.NewNop())
}

func seedStore(t *testing.T, store *Store, namespace string) {
	t.Helper()
	err := store.UpsertDocuments(context.Background(), []model.Document{
		{ID: "doc-fees", Text: "fee schedule", Metadata: map[string]any{"category": "Fees", "version": 2}},
		{ID: "doc-security", Text: "security basics", Metadata: map[string]any{"category": "Security"}},
	}, namespace)
	require.NoError(t, err)
}

func TestSearchSimilar(t *testing.T) {
	t.Run("threshold discards weak matches", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "faq")

		results, err := store.SearchSimilar(context.Background(), "fees question", 3, "faq", nil)
		require.NoError(t, err)

		require.Len(t, results, 1)
		assert.Equal(t, "doc-fees", results[0].ID)
		assert.Equal(t, "fee schedule", results[0].Text)
		assert.GreaterOrEqual(t, results[0].Score, 0.75)
	})

	t.Run("metadata round-trips with scalar types", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "faq")

		results, err := store.SearchSimilar(context.Background(), "fees question", 3, "faq", nil)
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Equal(t, "Fees", results[0].Metadata["category"])
		// JSON decoding widens numbers to float64.
		assert.Equal(t, float64(2), results[0].Metadata["version"])
	})

	t.Run("category filter restricts candidates", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "faq")

		results, err := store.SearchSimilar(context.Background(), "security basics", 3, "faq",
			map[string]string{"category": "Security"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc-security", results[0].ID)
	})

	t.Run("empty index returns no results", func(t *testing.T) {
		store := newTestStore(t)

		results, err := store.SearchSimilar(context.Background(), "fees question", 3, "faq", nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("query failure surfaces instead of being retried away", func(t *testing.T) {
		store := newTestStore(t)
		store.embedder.(*stubEmbedder).vectors["broken query"] = []float32{}
		seedStore(t, store, "faq")

		_, err := store.SearchSimilar(context.Background(), "broken query", 3, "faq", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vector query failed")
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "faq")

		results, err := store.SearchSimilar(context.Background(), "fees question", 3, "other", nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestUpsertReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "faq")

	err := store.UpsertDocuments(context.Background(), []model.Document{
		{ID: "doc-fees", Text: "fee schedule", Metadata: map[string]any{"category": "Pricing"}},
	}, "faq")
	require.NoError(t, err)

	results, err := store.SearchSimilar(context.Background(), "fees question", 3, "faq", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Pricing", results[0].Metadata["category"])

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVectors)
}

func TestDeleteByIDs(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "faq")

	require.NoError(t, store.DeleteByIDs(context.Background(), []string{"doc-fees"}, "faq"))

	results, err := store.SearchSimilar(context.Background(), "fees question", 3, "faq", nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "faq")
	require.NoError(t, store.UpsertDocuments(context.Background(), []model.Document{
		{ID: "doc-x", Text: "fee schedule"},
	}, "archive"))

	stats, err := store.Stats()
	require.NoError(t, err)

	assert.Equal(t, "faq-index", stats.IndexName)
	assert.Equal(t, 3, stats.TotalVectors)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, 2, stats.Namespaces["faq"])
	assert.Equal(t, 1, stats.Namespaces["archive"])
}
