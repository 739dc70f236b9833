package storage

import (
	"context"
	"fmt"

	"studymosaic/internal/models"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) UpsertDocument(ctx context.Context, d models.Document) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (document_id, session_id, filename, title, pages, status, fail_reason)
VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, NULLIF($7,''))
ON CONFLICT (document_id)
DO UPDATE SET
  session_id = EXCLUDED.session_id,
  filename = EXCLUDED.filename,
  title = COALESCE(EXCLUDED.title, documents.title),
  pages = COALESCE(EXCLUDED.pages, documents.pages),
  status = EXCLUDED.status,
  fail_reason = EXCLUDED.fail_reason,
  updated_at = NOW()`,
		d.DocumentID, d.SessionID, d.Filename, d.Title, d.Pages, d.Status, d.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) ListDocumentsBySession(ctx context.Context, sessionID string) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT document_id, session_id::text, filename, COALESCE(title,''), pages, status, COALESCE(fail_reason,''), created_at, updated_at
FROM documents
WHERE session_id=$1
ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.DocumentID, &d.SessionID, &d.Filename, &d.Title, &d.Pages, &d.Status, &d.FailReason, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) CountDocumentsBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE session_id=$1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (r *DocumentRepo) GetDocumentByID(ctx context.Context, sessionID, documentID string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `
SELECT document_id, session_id::text, filename, COALESCE(title,''), pages, status, COALESCE(fail_reason,''), created_at, updated_at
FROM documents
WHERE session_id=$1 AND document_id=$2`, sessionID, documentID).
		Scan(&d.DocumentID, &d.SessionID, &d.Filename, &d.Title, &d.Pages, &d.Status, &d.FailReason, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return models.Document{}, fmt.Errorf("get document by id: %w", err)
	}
	return d, nil
}
