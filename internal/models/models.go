package models

import "time"

type Session struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Document struct {
	DocumentID string    `json:"document_id"`
	SessionID  string    `json:"session_id"`
	Filename   string    `json:"filename"`
	Title      string    `json:"title,omitempty"`
	Pages      *int      `json:"pages,omitempty"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Chunk is the atomic unit of retrieval and citation. ChunkID is derived
// deterministically from (source document, page, local index) and stays
// stable across re-ingestion of unchanged content.
type Chunk struct {
	ChunkID          string    `json:"chunk_id"`
	SessionID        string    `json:"session_id"`
	DocumentID       string    `json:"document_id"`
	PDF              string    `json:"pdf"`
	Page             int       `json:"page"`
	CharStart        int       `json:"char_start"`
	CharEnd          int       `json:"char_end"`
	Text             string    `json:"text"`
	EmbeddingVersion string    `json:"embedding_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// RetrievedChunk is a Chunk as returned by similarity search, with the cosine
// distance of the match (ascending order means nearest first).
type RetrievedChunk struct {
	ChunkID   string  `json:"chunk_id"`
	Text      string  `json:"text"`
	Page      int     `json:"page"`
	PDF       string  `json:"pdf"`
	CharStart int     `json:"char_start"`
	CharEnd   int     `json:"char_end"`
	Distance  float64 `json:"distance"`
	Score     float64 `json:"score"`
}

type StudyRun struct {
	StudyRunID string    `json:"study_run_id"`
	SessionID  string    `json:"session_id"`
	Request    string    `json:"request"`
	Status     string    `json:"status"`
	OutPath    string    `json:"out_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
