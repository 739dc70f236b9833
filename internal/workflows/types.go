package workflows

type SessionIngestInput struct {
	SessionID             string `json:"session_id"`
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	EmbedProviders        int    `json:"embed_providers"`
	CooldownSeconds       int    `json:"cooldown_seconds"`
	ChunkSize             int    `json:"chunk_size"`
	ChunkOverlap          int    `json:"chunk_overlap"`
}

type DocumentProcessInput struct {
	SessionID       string `json:"session_id"`
	DocumentPath    string `json:"document_path"`
	ChunkSize       int    `json:"chunk_size"`
	ChunkOverlap    int    `json:"chunk_overlap"`
	EmbedProviders  int    `json:"embed_providers"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

type StudyBuildInput struct {
	StudyRunID        string  `json:"study_run_id"`
	SessionID         string  `json:"session_id"`
	Request           string  `json:"request"`
	CoverageThreshold float64 `json:"coverage_threshold"`
	MaxRounds         int     `json:"max_rounds"`
	TopK              int     `json:"top_k"`
	EmbedProviders    int     `json:"embed_providers"`
	CooldownSeconds   int     `json:"cooldown_seconds"`
}

type DocumentStatus struct {
	DocumentID   string            `json:"document_id"`
	DocumentPath string            `json:"document_path"`
	CurrentStep  string            `json:"current_step"`
	Status       string            `json:"status"`
	FailReason   string            `json:"fail_reason,omitempty"`
	Providers    []string          `json:"providers_used"`
	RetryCounts  map[string]int    `json:"retry_counts"`
	Steps        map[string]string `json:"steps"`
}

type SessionIngestProgress struct {
	SessionID     string            `json:"session_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerDocument   map[string]string `json:"per_document_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}

type StudyProgress struct {
	StudyRunID string  `json:"study_run_id"`
	SessionID  string  `json:"session_id"`
	Stage      string  `json:"stage"`
	Chunks     int     `json:"chunks"`
	Coverage   float64 `json:"coverage"`
	Rounds     int     `json:"rounds"`
	Cards      int     `json:"cards"`
}
