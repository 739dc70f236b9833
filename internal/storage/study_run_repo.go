package storage

import (
	"context"
	"fmt"
)

type StudyRunRepo struct {
	db *DB
}

func NewStudyRunRepo(db *DB) *StudyRunRepo {
	return &StudyRunRepo{db: db}
}

func (r *StudyRunRepo) CreateRun(ctx context.Context, studyRunID, sessionID, request string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO study_runs (study_run_id, session_id, request, status)
VALUES ($1, $2, $3, 'pending')`, studyRunID, sessionID, request)
	if err != nil {
		return fmt.Errorf("create study run: %w", err)
	}
	return nil
}

func (r *StudyRunRepo) UpdateRunStatus(ctx context.Context, studyRunID, status, outPath string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE study_runs SET status=$2, out_path=NULLIF($3,'') WHERE study_run_id=$1`, studyRunID, status, outPath)
	if err != nil {
		return fmt.Errorf("update study run: %w", err)
	}
	return nil
}

func (r *StudyRunRepo) GetRunPath(ctx context.Context, studyRunID string) (string, string, error) {
	var outPath string
	var status string
	if err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(out_path,''), status FROM study_runs WHERE study_run_id=$1`, studyRunID).Scan(&outPath, &status); err != nil {
		return "", "", fmt.Errorf("get study run: %w", err)
	}
	return outPath, status, nil
}
