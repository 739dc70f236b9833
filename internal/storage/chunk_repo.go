package storage

import (
	"context"
	"fmt"

	"studymosaic/internal/models"
	"studymosaic/internal/util"
)

// ChunkRecord is the persisted shape of a chunk. EmbeddingVector, when set,
// is a pgvector literal like "[0.1,0.2,...]".
type ChunkRecord struct {
	ChunkID          string
	SessionID        string
	DocumentID       string
	PDF              string
	Page             int
	CharStart        int
	CharEnd          int
	Text             string
	EmbeddingVersion string
	EmbeddingVector  *string
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// UpsertChunks writes chunk rows transactionally. Re-upserting a chunk_id in
// the same session replaces its text, metadata and vector.
func (r *ChunkRepo) UpsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", util.ErrIndexWrite, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, session_id, document_id, pdf, page, char_start, char_end, text, embedding_version, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CASE WHEN $10::text IS NULL THEN NULL ELSE $10::vector END)
ON CONFLICT (session_id, chunk_id)
DO UPDATE SET
  document_id = EXCLUDED.document_id,
  pdf = EXCLUDED.pdf,
  page = EXCLUDED.page,
  char_start = EXCLUDED.char_start,
  char_end = EXCLUDED.char_end,
  text = EXCLUDED.text,
  embedding_version = EXCLUDED.embedding_version,
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
			c.ChunkID, c.SessionID, c.DocumentID, c.PDF, c.Page, c.CharStart, c.CharEnd, c.Text, c.EmbeddingVersion, c.EmbeddingVector,
		)
		if err != nil {
			return fmt.Errorf("%w: upsert chunk %s: %w", util.ErrIndexWrite, c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit chunks tx: %w", util.ErrIndexWrite, err)
	}
	return nil
}

func (r *ChunkRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE session_id=$1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count chunks: %w", util.ErrIndexQuery, err)
	}
	return n, nil
}

// ListChunkMetadata returns stored chunk metadata for a session, in document
// order. Meant for introspection endpoints, not for coverage accounting.
func (r *ChunkRepo) ListChunkMetadata(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, session_id::text, document_id, pdf, page, char_start, char_end, embedding_version, created_at
FROM chunks
WHERE session_id=$1
ORDER BY pdf ASC, page ASC, char_start ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunk metadata: %w", util.ErrIndexQuery, err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ChunkID, &c.SessionID, &c.DocumentID, &c.PDF, &c.Page, &c.CharStart, &c.CharEnd, &c.EmbeddingVersion, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan chunk metadata: %w", util.ErrIndexQuery, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunk metadata: %w", util.ErrIndexQuery, err)
	}
	return out, nil
}
