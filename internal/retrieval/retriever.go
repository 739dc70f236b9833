// Package retrieval turns similarity hits into the chunk records the
// flashcard loop consumes.
package retrieval

import (
	"context"

	"studymosaic/internal/models"
	"studymosaic/internal/vector"
)

// Searcher is the slice of the vector index the retriever needs.
type Searcher interface {
	Query(ctx context.Context, sessionID, queryText string, topK int) ([]vector.Hit, error)
	Count(ctx context.Context, sessionID string) (int, error)
}

type Retriever struct {
	index Searcher
	topK  int
}

func NewRetriever(index Searcher, topK int) *Retriever {
	return &Retriever{index: index, topK: topK}
}

// Retrieve returns up to topK chunks nearest the request text, best first.
// Score is 1 minus cosine distance so higher means more similar. An empty
// session yields an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, request string) ([]models.RetrievedChunk, error) {
	n, err := r.index.Count(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []models.RetrievedChunk{}, nil
	}
	hits, err := r.index.Query(ctx, sessionID, request, r.topK)
	if err != nil {
		return nil, err
	}
	out := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.RetrievedChunk{
			ChunkID:   h.ChunkID,
			Text:      h.Text,
			Page:      h.Page,
			PDF:       h.PDF,
			CharStart: h.CharStart,
			CharEnd:   h.CharEnd,
			Distance:  h.Distance,
			Score:     1 - h.Distance,
		})
	}
	return out, nil
}
