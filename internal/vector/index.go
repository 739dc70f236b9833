// Package vector provides the per-session vector index over Postgres with
// the pgvector extension.
package vector

import (
	"context"
	"fmt"
	"strings"

	"studymosaic/internal/embedding"
	"studymosaic/internal/models"
	"studymosaic/internal/storage"
	"studymosaic/internal/util"

	"github.com/jackc/pgx/v5"
)

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Item is one document to index: raw text plus the chunk metadata persisted
// alongside it. The session id acts as the collection key.
type Item struct {
	ChunkID    string
	DocumentID string
	PDF        string
	Page       int
	CharStart  int
	CharEnd    int
	Text       string
}

// Hit is one similarity match, distance ascending means nearest first.
type Hit struct {
	ChunkID   string
	Text      string
	PDF       string
	Page      int
	CharStart int
	CharEnd   int
	Distance  float64
}

// Index upserts and queries chunk vectors scoped by session. Vectors are
// computed through the embedding client when the caller does not supply them.
type Index struct {
	q            Queryer
	chunks       *storage.ChunkRepo
	embedder     *embedding.Client
	embedVersion string
}

func NewIndex(q Queryer, chunks *storage.ChunkRepo, embedder *embedding.Client, embedVersion string) *Index {
	return &Index{q: q, chunks: chunks, embedder: embedder, embedVersion: embedVersion}
}

// Upsert writes items idempotently. Pass vectors of equal length to reuse
// precomputed embeddings; pass nil to have the index embed item texts itself.
func (ix *Index) Upsert(ctx context.Context, sessionID string, items []Item, vectors [][]float32) error {
	if len(items) == 0 {
		return nil
	}
	if vectors != nil && len(vectors) != len(items) {
		return fmt.Errorf("%w: %d vectors for %d items", util.ErrInvalidArgument, len(vectors), len(items))
	}
	if vectors == nil {
		texts := make([]string, 0, len(items))
		for _, it := range items {
			texts = append(texts, it.Text)
		}
		embedded, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		vectors = embedded
	}
	records := make([]storage.ChunkRecord, 0, len(items))
	for i, it := range items {
		var lit *string
		if len(vectors[i]) > 0 {
			s := ToLiteral(vectors[i])
			lit = &s
		}
		records = append(records, storage.ChunkRecord{
			ChunkID:          it.ChunkID,
			SessionID:        sessionID,
			DocumentID:       it.DocumentID,
			PDF:              it.PDF,
			Page:             it.Page,
			CharStart:        it.CharStart,
			CharEnd:          it.CharEnd,
			Text:             util.SanitizeText(it.Text),
			EmbeddingVersion: ix.embedVersion,
			EmbeddingVector:  lit,
		})
	}
	return ix.chunks.UpsertChunks(ctx, records)
}

// Query embeds the query text and returns up to topK nearest chunks by
// cosine distance. Fewer rows than topK means the collection is smaller.
func (ix *Index) Query(ctx context.Context, sessionID, queryText string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", util.ErrInvalidArgument, topK)
	}
	queryVec, err := ix.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, err
	}
	return ix.QueryByVector(ctx, sessionID, queryVec, topK)
}

func (ix *Index) QueryByVector(ctx context.Context, sessionID string, queryVec []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", util.ErrInvalidArgument, topK)
	}
	rows, err := ix.q.Query(ctx, `
SELECT c.chunk_id,
       c.text,
       c.pdf,
       c.page,
       c.char_start,
       c.char_end,
       c.embedding <=> $2::vector AS distance
FROM chunks c
WHERE c.session_id = $1
  AND c.embedding IS NOT NULL
ORDER BY c.embedding <=> $2::vector
LIMIT $3`, sessionID, ToLiteral(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrIndexQuery, err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, topK)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.Text, &h.PDF, &h.Page, &h.CharStart, &h.CharEnd, &h.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan hit: %w", util.ErrIndexQuery, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate hits: %w", util.ErrIndexQuery, err)
	}
	return hits, nil
}

func (ix *Index) Count(ctx context.Context, sessionID string) (int, error) {
	return ix.chunks.CountBySession(ctx, sessionID)
}

func (ix *Index) ListMetadata(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	return ix.chunks.ListChunkMetadata(ctx, sessionID)
}

// ToLiteral renders a vector as the pgvector text literal.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
