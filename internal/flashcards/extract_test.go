package flashcards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoerceItemsWrapperJSON(t *testing.T) {
	raw := `{"flashcards":[{"id":"f1","question":"What is entropy?","answer":"A measure of disorder.","citations":[{"text":"entropy measures disorder","location":{"page":3,"chunk_id":"notes-p3-c0"}}]}]}`
	items, err := CoerceItems(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "What is entropy?", items[0].Question)
	require.Equal(t, "notes-p3-c0", items[0].Citations[0].Location.ChunkID)
}

func TestCoerceItemsFencedJSON(t *testing.T) {
	raw := "```json\n{\"flashcards\":[{\"id\":\"f1\",\"question\":\"Q\",\"answer\":\"A\",\"citations\":[]}]}\n```"
	items, err := CoerceItems(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestCoerceItemsBareList(t *testing.T) {
	raw := `[{"id":"f1","question":"Q1","answer":"A1"},{"id":"f2","question":"Q2","answer":"A2"}]`
	items, err := CoerceItems(raw)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestCoerceItemsSingleCard(t *testing.T) {
	items, err := CoerceItems(`{"id":"f1","question":"Q","answer":"A"}`)
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = CoerceItems(Flashcard{ID: "f2", Question: "Q2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestCoerceItemsDecodedWrapper(t *testing.T) {
	v := map[string]any{"flashcards": []any{map[string]any{"id": "f1", "question": "Q", "answer": "A"}}}
	items, err := CoerceItems(v)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestCoerceItemsUnusable(t *testing.T) {
	for _, bad := range []any{nil, "", "not json at all", 42, "{\"triples\":[]}"} {
		items, err := CoerceItems(bad)
		require.Error(t, err, "input %v", bad)
		require.Empty(t, items)
	}
}

func TestExtractCitedIDs(t *testing.T) {
	items := []Flashcard{
		{Question: "Q1", Citations: []Citation{
			{Location: Location{ChunkID: "a-p1-c0"}},
			{Location: Location{ChunkID: "a-p1-c0"}},
			{Location: Location{ChunkID: "  "}},
		}},
		{Question: "Q2", Citations: []Citation{{Location: Location{ChunkID: "a-p2-c1"}}}},
	}
	require.Equal(t, []string{"a-p1-c0", "a-p1-c0", "a-p2-c1"}, ExtractCitedIDs(items))
}

func TestNormalizeQuestion(t *testing.T) {
	require.Equal(t, NormalizeQuestion("What  is   Entropy?"), NormalizeQuestion("what is entropy?\n"))
}
