package activities

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"studymosaic/internal/config"
	"studymosaic/internal/util"

	"github.com/stretchr/testify/require"
)

func testActivities() *Activities {
	return &Activities{cfg: config.Config{ChunkSize: 20, ChunkOverlap: 5, MaxPDFsPerSession: 5}}
}

func TestChunkPagesStableIDs(t *testing.T) {
	a := testActivities()
	in := ChunkPagesInput{
		SessionID:  "s1",
		DocumentID: "doc1",
		PDF:        "thermo-notes.pdf",
		Pages: []PageText{
			{Page: 1, Text: "abcdefghijklmnopqrstuvwxyz"},
			{Page: 3, Text: "short"},
		},
	}
	out, err := a.ChunkPagesActivity(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)
	require.Equal(t, "thermo-notes-p1-c0", out.Chunks[0].ChunkID)
	require.Equal(t, 0, out.Chunks[0].CharStart)
	require.Equal(t, 20, out.Chunks[0].CharEnd)

	// Local chunk index restarts per page.
	last := out.Chunks[len(out.Chunks)-1]
	require.Equal(t, "thermo-notes-p3-c0", last.ChunkID)
	require.Equal(t, 3, last.Page)

	// Re-chunking identical content yields the identical id set.
	again, err := a.ChunkPagesActivity(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, out.Chunks, again.Chunks)
}

func TestChunkPagesFinalWindowEndsAtPageLength(t *testing.T) {
	a := testActivities()
	text := "0123456789012345678901234567"
	out, err := a.ChunkPagesActivity(context.Background(), ChunkPagesInput{
		PDF:   "doc.pdf",
		Pages: []PageText{{Page: 1, Text: text}},
	})
	require.NoError(t, err)
	require.Equal(t, len(text), out.Chunks[len(out.Chunks)-1].CharEnd)
}

func TestListPDFsEnforcesSessionLimit(t *testing.T) {
	a := testActivities()
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	_, err := a.ListPDFsActivity(context.Background(), ListPDFsInput{InputDir: dir})
	require.True(t, errors.Is(err, util.ErrTooManyDocuments))
}

func TestListPDFsRejectsEmptyDir(t *testing.T) {
	a := testActivities()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	_, err := a.ListPDFsActivity(context.Background(), ListPDFsInput{InputDir: dir})
	require.True(t, errors.Is(err, util.ErrInvalidArgument))
}

func TestListPDFsSortedPaths(t *testing.T) {
	a := testActivities()
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "c.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	out, err := a.ListPDFsActivity(context.Background(), ListPDFsInput{InputDir: dir})
	require.NoError(t, err)
	require.Len(t, out.Paths, 3)
	require.Equal(t, filepath.Join(dir, "a.PDF"), out.Paths[0])
}
