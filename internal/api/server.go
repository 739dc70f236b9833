package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studymosaic/internal/config"
	"studymosaic/internal/embedding"
	"studymosaic/internal/flashcards"
	"studymosaic/internal/models"
	"studymosaic/internal/providers"
	"studymosaic/internal/retrieval"
	"studymosaic/internal/storage"
	"studymosaic/internal/util"
	"studymosaic/internal/vector"
	"studymosaic/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg          config.Config
	db           *storage.DB
	sessionRepo  *storage.SessionRepo
	documentRepo *storage.DocumentRepo
	chunkRepo    *storage.ChunkRepo
	runRepo      *storage.StudyRunRepo
	providers    *providers.Manager
	temporal     tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:          cfg,
		db:           db,
		sessionRepo:  storage.NewSessionRepo(db),
		documentRepo: storage.NewDocumentRepo(db),
		chunkRepo:    storage.NewChunkRepo(db),
		runRepo:      storage.NewStudyRunRepo(db),
		providers:    pm,
		temporal:     tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionsScoped)
	mux.HandleFunc("/study", s.handleStudy)
	mux.HandleFunc("/study-runs", s.handleStudyRuns)
	mux.HandleFunc("/study-runs/", s.handleStudyRunsScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.sessionRepo.ListSessions(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("name is required"))
			return
		}

		sessionID := uuid.NewString()
		if err := s.sessionRepo.CreateSession(r.Context(), models.Session{SessionID: sessionID, Name: req.Name}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := util.EnsureDir(filepath.Join(s.cfg.DataInRoot, sessionID)); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := util.EnsureDir(filepath.Join(s.cfg.DataOutRoot, sessionID)); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"session_id": sessionID, "name": req.Name})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleSessionsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	sessionID := parts[0]

	if len(parts) == 2 && parts[1] == "upload" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r, sessionID)
		return
	}

	if len(parts) == 2 && parts[1] == "documents" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		docs, err := s.documentRepo.ListDocumentsBySession(r.Context(), sessionID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
		return
	}

	if len(parts) == 2 && parts[1] == "ingest" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		wfID := "ingest-" + sessionID
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                                       wfID,
			TaskQueue:                                s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}, workflows.SessionIngestWorkflow, workflows.SessionIngestInput{
			SessionID:             sessionID,
			InputDir:              filepath.Join(s.cfg.DataInRoot, sessionID),
			MaxConcurrentChildren: s.cfg.IngestMaxChildren,
			EmbedProviders:        s.providers.EmbedCount(),
			CooldownSeconds:       s.cfg.ProviderCooldownSecs,
			ChunkSize:             s.cfg.ChunkSize,
			ChunkOverlap:          s.cfg.ChunkOverlap,
		})
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
		return
	}

	if len(parts) == 2 && parts[1] == "progress" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var prog workflows.SessionIngestProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+sessionID, "", workflows.QueryGetProgress)
		if err != nil {
			// Fall back to DB-derived progress when no workflow is queryable.
			docs, dErr := s.documentRepo.ListDocumentsBySession(r.Context(), sessionID)
			if dErr != nil {
				writeErr(w, http.StatusInternalServerError, dErr)
				return
			}
			per := make(map[string]string, len(docs))
			done := 0
			failed := 0
			for _, d := range docs {
				per[d.Filename] = d.Status
				if d.Status == "processed" {
					done++
				}
				if d.Status == "failed" {
					failed++
				}
			}
			writeJSON(w, http.StatusOK, workflows.SessionIngestProgress{
				SessionID:   sessionID,
				Total:       len(docs),
				Done:        done,
				Failed:      failed,
				PerDocument: per,
			})
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
		return
	}

	if len(parts) == 2 && parts[1] == "chunks" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		count, err := s.chunkRepo.CountBySession(r.Context(), sessionID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		meta, err := s.chunkRepo.ListChunkMetadata(r.Context(), sessionID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": count, "chunks": meta})
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	pdfs := make([]*multipart.FileHeader, 0, len(files))
	for _, fh := range files {
		if strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
			pdfs = append(pdfs, fh)
		}
	}
	if len(pdfs) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	// The per-session PDF cap is enforced before any file is written.
	existing, err := s.documentRepo.CountDocumentsBySession(r.Context(), sessionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if existing+len(pdfs) > s.cfg.MaxPDFsPerSession {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: session allows at most %d pdfs", util.ErrTooManyDocuments, s.cfg.MaxPDFsPerSession))
		return
	}

	inDir := filepath.Join(s.cfg.DataInRoot, sessionID)
	if err := util.EnsureDir(inDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	type uploadResult struct {
		Filename   string `json:"filename"`
		DocumentID string `json:"document_id"`
	}
	out := make([]uploadResult, 0, len(pdfs))

	for _, fh := range pdfs {
		documentID, savedPath, err := saveUploadedFile(inDir, fh)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.documentRepo.UpsertDocument(r.Context(), models.Document{
			DocumentID: documentID,
			SessionID:  sessionID,
			Filename:   filepath.Base(savedPath),
			Status:     "pending",
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, uploadResult{Filename: filepath.Base(savedPath), DocumentID: documentID})
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploaded": out})
}

// handleStudy runs the coverage loop synchronously and returns the deck with
// a human-readable coverage summary.
func (s *Server) handleStudy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		SessionID         string  `json:"session_id"`
		Request           string  `json:"request"`
		CoverageThreshold float64 `json:"coverage_threshold"`
		MaxRounds         int     `json:"max_rounds"`
		TopK              int     `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Request = strings.TrimSpace(req.Request)
	if req.SessionID == "" || req.Request == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("session_id and request are required"))
		return
	}
	if req.CoverageThreshold == 0 {
		req.CoverageThreshold = s.cfg.CoverageThreshold
	}
	if req.CoverageThreshold <= 0 || req.CoverageThreshold > 1 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("coverage_threshold must be in (0,1]"))
		return
	}
	if req.MaxRounds == 0 {
		req.MaxRounds = s.cfg.MaxRounds
	}
	if req.MaxRounds < 1 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("max_rounds must be >= 1"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.TopK
	}
	if intent := flashcards.RouteIntent(req.Request); intent != flashcards.IntentFlashcards {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unsupported study intent %q", intent))
		return
	}

	chunks, err := s.retrieve(r.Context(), req.SessionID, req.Request, req.TopK)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}

	gen := flashcards.NewLLMGenerator(s.providers, nil)
	loop, err := flashcards.NewLoop(gen, req.CoverageThreshold, req.MaxRounds)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	result, err := loop.Run(r.Context(), req.Request, chunks)
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("generation failed: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  result,
		"summary": result.CoverageSummary(),
	})
}

// retrieve walks the embed providers in preferred order until one of them
// yields a query embedding.
func (s *Server) retrieve(ctx context.Context, sessionID, request string, topK int) ([]models.RetrievedChunk, error) {
	var lastErr error
	for _, idx := range s.providers.PreferredEmbedOrder() {
		provider, _ := s.providers.EmbedProviderByIndex(idx)
		client := embedding.NewClient(provider, embedding.DefaultRetryPolicy(s.cfg), s.cfg.EmbedDim)
		index := vector.NewIndex(s.db.Pool, s.chunkRepo, client, s.cfg.EmbedVersion)
		chunks, err := retrieval.NewRetriever(index, topK).Retrieve(ctx, sessionID, request)
		if err == nil {
			return chunks, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("retrieval failed: %w", lastErr)
}

func (s *Server) handleStudyRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		SessionID         string  `json:"session_id"`
		Request           string  `json:"request"`
		CoverageThreshold float64 `json:"coverage_threshold"`
		MaxRounds         int     `json:"max_rounds"`
		TopK              int     `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Request) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("session_id and request are required"))
		return
	}
	runID := uuid.NewString()
	if err := s.runRepo.CreateRun(r.Context(), runID, req.SessionID, req.Request); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "study-" + runID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.StudyBuildWorkflow, workflows.StudyBuildInput{
		StudyRunID:        runID,
		SessionID:         req.SessionID,
		Request:           req.Request,
		CoverageThreshold: req.CoverageThreshold,
		MaxRounds:         req.MaxRounds,
		TopK:              req.TopK,
		EmbedProviders:    s.providers.EmbedCount(),
		CooldownSeconds:   s.cfg.ProviderCooldownSecs,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"study_run_id": runID, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleStudyRunsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/study-runs/"), "/"), "/")
	if len(parts) < 2 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	runID := parts[0]
	switch parts[1] {
	case "progress":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var prog workflows.StudyProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), "study-"+runID, "", workflows.QueryGetStudyProgress)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
	case "deck":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		outPath, status, err := s.runRepo.GetRunPath(r.Context(), runID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		if outPath == "" {
			writeJSON(w, http.StatusOK, map[string]any{"status": status})
			return
		}
		b, err := os.ReadFile(outPath)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		var result flashcards.StudyResult
		if err := json.Unmarshal(b, &result); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  status,
			"result":  result,
			"summary": result.CoverageSummary(),
			"path":    outPath,
		})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (documentID, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*.pdf")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}

	documentID = fmt.Sprintf("%x", h.Sum(nil))
	finalPath := util.SafeJoin(dstDir, fh.Filename)
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("seek temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}

	return documentID, finalPath, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "SM-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "SM-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "SM-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "SM-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "SM-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "SM-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "SM-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "SM-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "SM-API-5020"
		msg = "Upstream provider unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "name is required"):
			msg = "Session name is required."
		case strings.Contains(low, "session_id and request are required"):
			msg = "Both session and request are required."
		case strings.Contains(low, "no files provided"):
			msg = "No PDF files were provided."
		case strings.Contains(low, "too many documents"):
			msg = "Too many PDFs for one session. Remove some and retry."
		case strings.Contains(low, "coverage_threshold"):
			msg = "coverage_threshold must be between 0 (exclusive) and 1 (inclusive)."
		case strings.Contains(low, "max_rounds"):
			msg = "max_rounds must be at least 1."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
