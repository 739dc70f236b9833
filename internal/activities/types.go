package activities

import (
	"studymosaic/internal/flashcards"
	"studymosaic/internal/models"
)

type ListPDFsInput struct {
	InputDir string `json:"input_dir"`
}

type ListPDFsOutput struct {
	Paths []string `json:"paths"`
}

type ComputeDocumentIDInput struct {
	DocumentPath string `json:"document_path"`
}

type ComputeDocumentIDOutput struct {
	DocumentID string `json:"document_id"`
}

type ExtractPagesInput struct {
	DocumentPath string `json:"document_path"`
}

type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type ExtractPagesOutput struct {
	Title string     `json:"title"`
	Pages []PageText `json:"pages"`
}

type ChunkPagesInput struct {
	SessionID    string     `json:"session_id"`
	DocumentID   string     `json:"document_id"`
	PDF          string     `json:"pdf"`
	Pages        []PageText `json:"pages"`
	ChunkSize    int        `json:"chunk_size"`
	ChunkOverlap int        `json:"chunk_overlap"`
}

type ChunkItem struct {
	ChunkID   string `json:"chunk_id"`
	Page      int    `json:"page"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
	Text      string `json:"text"`
}

type ChunkPagesOutput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type EmbedChunksInput struct {
	Operation     string      `json:"operation"`
	SessionID     string      `json:"session_id"`
	DocumentID    string      `json:"document_id"`
	ProviderIndex int         `json:"provider_index"`
	Input         []ChunkItem `json:"input"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type UpsertChunksInput struct {
	SessionID  string      `json:"session_id"`
	DocumentID string      `json:"document_id"`
	PDF        string      `json:"pdf"`
	Chunks     []ChunkItem `json:"chunks"`
	Vectors    [][]float32 `json:"vectors,omitempty"`
}

type WriteDocumentArtifactsInput struct {
	SessionID  string      `json:"session_id"`
	DocumentID string      `json:"document_id"`
	PDF        string      `json:"pdf"`
	Title      string      `json:"title"`
	Pages      int         `json:"pages"`
	Chunks     []ChunkItem `json:"chunks"`
}

type UpdateDocumentStatusInput struct {
	DocumentID string `json:"document_id"`
	SessionID  string `json:"session_id"`
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	Pages      int    `json:"pages"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason"`
}

type RetrieveChunksInput struct {
	SessionID     string `json:"session_id"`
	Request       string `json:"request"`
	TopK          int    `json:"top_k"`
	ProviderIndex int    `json:"provider_index"`
}

type RetrieveChunksOutput struct {
	Chunks []models.RetrievedChunk `json:"chunks"`
}

type GenerateFlashcardsInput struct {
	SessionID         string                  `json:"session_id"`
	StudyRunID        string                  `json:"study_run_id"`
	Request           string                  `json:"request"`
	CoverageThreshold float64                 `json:"coverage_threshold"`
	MaxRounds         int                     `json:"max_rounds"`
	Chunks            []models.RetrievedChunk `json:"chunks"`
}

type GenerateFlashcardsOutput struct {
	Result flashcards.StudyResult `json:"result"`
}

type WriteStudyDeckInput struct {
	SessionID  string                 `json:"session_id"`
	StudyRunID string                 `json:"study_run_id"`
	Request    string                 `json:"request"`
	Result     flashcards.StudyResult `json:"result"`
}

type WriteStudyDeckOutput struct {
	OutPath string `json:"out_path"`
}

type UpdateStudyRunInput struct {
	StudyRunID string `json:"study_run_id"`
	Status     string `json:"status"`
	OutPath    string `json:"out_path"`
}

type LogLLMCallInput struct {
	CallID       string `json:"call_id"`
	Operation    string `json:"operation"`
	SessionID    string `json:"session_id"`
	DocumentID   string `json:"document_id"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	RequestID    string `json:"request_id"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type"`
}

type ListSessionDocumentsInput struct {
	SessionID string `json:"session_id"`
}

type SessionDocument struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Title      string `json:"title,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}

type ListSessionDocumentsOutput struct {
	Documents []SessionDocument `json:"documents"`
}

type WriteSessionSummaryInput struct {
	SessionID string         `json:"session_id"`
	Summary   map[string]any `json:"summary"`
}
