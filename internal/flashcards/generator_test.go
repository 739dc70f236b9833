package flashcards

import (
	"context"
	"testing"

	"studymosaic/internal/config"
	"studymosaic/internal/models"
	"studymosaic/internal/providers"

	"github.com/stretchr/testify/require"
)

func mockManager(t *testing.T) *providers.Manager {
	t.Helper()
	mgr, err := providers.NewManager(config.Config{LLMProviders: "mock", EmbedProviders: "mock", EmbedDim: 64})
	require.NoError(t, err)
	return mgr
}

func TestLLMGeneratorFirstRoundCitesContext(t *testing.T) {
	var observed []string
	gen := NewLLMGenerator(mockManager(t), func(op string, _ providers.ProviderInfo, _, _ string, _ error) {
		observed = append(observed, op)
	})

	chunks := []models.RetrievedChunk{
		{ChunkID: "doc-p1-c0", Page: 1, Text: "Boyle's law relates pressure and volume."},
		{ChunkID: "doc-p2-c0", Page: 2, Text: "Charles's law relates volume and temperature."},
	}
	out, err := gen.GenerateRound(context.Background(), RoundInput{Request: "gas laws", Chunks: chunks, Round: 1})
	require.NoError(t, err)
	require.False(t, out.NoFurtherChanges)

	items, err := CoerceItems(out.Raw)
	require.NoError(t, err)
	ids := ExtractCitedIDs(items)
	require.Contains(t, ids, "doc-p1-c0")
	require.Contains(t, ids, "doc-p2-c0")
	require.Equal(t, []string{"flashcard_generate"}, observed)
}

func TestLLMGeneratorRefineTargetsOnlyMissing(t *testing.T) {
	gen := NewLLMGenerator(mockManager(t), nil)
	chunks := []models.RetrievedChunk{
		{ChunkID: "doc-p1-c0", Page: 1, Text: "cited already"},
		{ChunkID: "doc-p3-c1", Page: 3, Text: "still uncovered"},
	}
	out, err := gen.GenerateRound(context.Background(), RoundInput{
		Request:         "gas laws",
		Chunks:          chunks,
		MissingChunkIDs: []string{"doc-p3-c1"},
		Round:           2,
	})
	require.NoError(t, err)

	items, err := CoerceItems(out.Raw)
	require.NoError(t, err)
	ids := ExtractCitedIDs(items)
	require.Contains(t, ids, "doc-p3-c1")
	require.NotContains(t, ids, "doc-p1-c0")
}

func TestLLMGeneratorRefineStopSignal(t *testing.T) {
	gen := NewLLMGenerator(mockManager(t), nil)
	out, err := gen.GenerateRound(context.Background(), RoundInput{
		Request:         "gas laws",
		Chunks:          []models.RetrievedChunk{{ChunkID: "doc-p1-c0", Page: 1, Text: "cited already"}},
		MissingChunkIDs: nil,
		Round:           2,
	})
	require.NoError(t, err)
	require.True(t, out.NoFurtherChanges)
	require.Empty(t, out.Raw)
}
