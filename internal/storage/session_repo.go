package storage

import (
	"context"
	"fmt"

	"studymosaic/internal/models"
)

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) CreateSession(ctx context.Context, s models.Session) error {
	_, err := r.db.Pool.Exec(ctx, `INSERT INTO sessions (session_id, name) VALUES ($1, $2)`, s.SessionID, s.Name)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT session_id::text, name, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Session, 0)
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.SessionID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
