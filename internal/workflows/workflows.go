package workflows

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"studymosaic/internal/activities"
	"studymosaic/internal/providers"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetDocumentStatus = "GetDocumentStatus"
	QueryGetProgress       = "GetProgress"
	QueryGetStudyProgress  = "GetStudyProgress"
)

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

// SessionIngestWorkflow fans the session's PDFs out to child workflows in
// bounded batches and writes a session summary artifact at the end.
func SessionIngestWorkflow(ctx workflow.Context, input SessionIngestInput) (string, error) {
	progress := SessionIngestProgress{
		SessionID:     input.SessionID,
		PerDocument:   map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (SessionIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListPDFsOutput
	if err := workflow.ExecuteActivity(ctx, "ListPDFsActivity", activities.ListPDFsInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	paths := listOut.Paths
	progress.Total = len(paths)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paths); i += maxChildren {
		end := i + maxChildren
		if end > len(paths) {
			end = len(paths)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			progress.PerDocument[path] = "processing"
			workflowID := "document-" + sanitizeID(input.SessionID) + "-" + sanitizeID(filepath.Base(path))
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentProcessWorkflow, DocumentProcessInput{
				SessionID:       input.SessionID,
				DocumentPath:    path,
				ChunkSize:       input.ChunkSize,
				ChunkOverlap:    input.ChunkOverlap,
				EmbedProviders:  input.EmbedProviders,
				CooldownSeconds: input.CooldownSeconds,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			path := childPaths[idx]
			if err != nil {
				progress.Failed++
				progress.PerDocument[path] = "failed"
				continue
			}
			if childStatus == "failed" {
				progress.Failed++
			}
			progress.Done++
			progress.PerDocument[path] = childStatus
		}
	}

	_ = workflow.ExecuteActivity(ctx, "WriteSessionSummaryActivity", activities.WriteSessionSummaryInput{
		SessionID: input.SessionID,
		Summary: map[string]any{
			"session_id":          input.SessionID,
			"total":               progress.Total,
			"done":                progress.Done,
			"failed":              progress.Failed,
			"per_document_status": progress.PerDocument,
			"generated_at":        workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

// DocumentProcessWorkflow runs one PDF through hash, extract, chunk, embed
// and upsert, recording per-step status for the progress query.
func DocumentProcessWorkflow(ctx workflow.Context, input DocumentProcessInput) (string, error) {
	status := DocumentStatus{
		DocumentPath: input.DocumentPath,
		CurrentStep:  "init",
		Status:       "processing",
		RetryCounts:  map[string]int{},
		Steps:        map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetDocumentStatus, func() (DocumentStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	filename := filepath.Base(input.DocumentPath)
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	providerCount := input.EmbedProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	state := newProviderState()

	status.CurrentStep = "compute_document_id"
	status.Steps[status.CurrentStep] = "processing"
	var computeOut activities.ComputeDocumentIDOutput
	if err := workflow.ExecuteActivity(ctx, "ComputeDocumentIDActivity", activities.ComputeDocumentIDInput{DocumentPath: input.DocumentPath}).Get(ctx, &computeOut); err != nil {
		return "", err
	}
	status.DocumentID = computeOut.DocumentID
	status.Steps[status.CurrentStep] = "done"

	_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: computeOut.DocumentID,
		SessionID:  input.SessionID,
		Filename:   filename,
		Status:     "processing",
	}).Get(ctx, nil)

	status.CurrentStep = "extract_pages"
	status.Steps[status.CurrentStep] = "processing"
	var pagesOut activities.ExtractPagesOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractPagesActivity", activities.ExtractPagesInput{DocumentPath: input.DocumentPath}).Get(ctx, &pagesOut); err != nil {
		if isNoTextError(err) {
			status.Status = "failed"
			status.FailReason = "no extractable text found (OCR not enabled)"
			status.Steps[status.CurrentStep] = "failed"
			_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
				DocumentID: computeOut.DocumentID,
				SessionID:  input.SessionID,
				Filename:   filename,
				Status:     "failed",
				FailReason: status.FailReason,
			}).Get(ctx, nil)
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk_pages"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkPagesOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkPagesActivity", activities.ChunkPagesInput{
		SessionID:    input.SessionID,
		DocumentID:   computeOut.DocumentID,
		PDF:          filename,
		Pages:        pagesOut.Pages,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunkOut); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_chunks"
	status.Steps[status.CurrentStep] = "processing"
	embedOut, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksInput{
		Operation:  "embed",
		SessionID:  input.SessionID,
		DocumentID: computeOut.DocumentID,
		Input:      chunkOut.Chunks,
	}, status.RetryCounts)
	if err != nil {
		return "", err
	}
	status.Providers = append(status.Providers, embedOut.ProviderName)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "upsert_chunks"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{
		SessionID:  input.SessionID,
		DocumentID: computeOut.DocumentID,
		PDF:        filename,
		Chunks:     chunkOut.Chunks,
		Vectors:    embedOut.Vectors,
	}).Get(ctx, nil); err != nil {
		if isInvalidTextEncodingError(err) {
			status.Status = "failed"
			status.FailReason = "document contains invalid text encoding after extraction"
			status.Steps[status.CurrentStep] = "failed"
			_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
				DocumentID: computeOut.DocumentID,
				SessionID:  input.SessionID,
				Filename:   filename,
				Status:     "failed",
				FailReason: status.FailReason,
			}).Get(ctx, nil)
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "write_artifacts"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "WriteDocumentArtifactsActivity", activities.WriteDocumentArtifactsInput{
		SessionID:  input.SessionID,
		DocumentID: computeOut.DocumentID,
		PDF:        filename,
		Title:      pagesOut.Title,
		Pages:      len(pagesOut.Pages),
		Chunks:     chunkOut.Chunks,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_processed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: computeOut.DocumentID,
		SessionID:  input.SessionID,
		Filename:   filename,
		Title:      pagesOut.Title,
		Pages:      len(pagesOut.Pages),
		Status:     "processed",
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = "processed"
	return status.Status, nil
}

// StudyBuildWorkflow retrieves grounding chunks, runs the coverage loop and
// persists the resulting deck.
func StudyBuildWorkflow(ctx workflow.Context, input StudyBuildInput) (string, error) {
	progress := StudyProgress{StudyRunID: input.StudyRunID, SessionID: input.SessionID, Stage: "init"}
	if err := workflow.SetQueryHandler(ctx, QueryGetStudyProgress, func() (StudyProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	_ = workflow.ExecuteActivity(ctx, "UpdateStudyRunActivity", activities.UpdateStudyRunInput{StudyRunID: input.StudyRunID, Status: "running"}).Get(ctx, nil)

	embedProviders := input.EmbedProviders
	if embedProviders <= 0 {
		embedProviders = 1
	}
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	state := newProviderState()

	progress.Stage = "retrieving"
	retrieved, err := callRetrieveWithFailover(ctx, &state, embedProviders, cooldown, activities.RetrieveChunksInput{
		SessionID: input.SessionID,
		Request:   input.Request,
		TopK:      input.TopK,
	})
	if err != nil {
		_ = workflow.ExecuteActivity(ctx, "UpdateStudyRunActivity", activities.UpdateStudyRunInput{StudyRunID: input.StudyRunID, Status: "failed"}).Get(ctx, nil)
		return "", err
	}
	progress.Chunks = len(retrieved.Chunks)

	progress.Stage = "generating"
	var genOut activities.GenerateFlashcardsOutput
	if err := workflow.ExecuteActivity(ctx, "GenerateFlashcardsActivity", activities.GenerateFlashcardsInput{
		SessionID:         input.SessionID,
		StudyRunID:        input.StudyRunID,
		Request:           input.Request,
		CoverageThreshold: input.CoverageThreshold,
		MaxRounds:         input.MaxRounds,
		Chunks:            retrieved.Chunks,
	}).Get(ctx, &genOut); err != nil {
		_ = workflow.ExecuteActivity(ctx, "UpdateStudyRunActivity", activities.UpdateStudyRunInput{StudyRunID: input.StudyRunID, Status: "failed"}).Get(ctx, nil)
		return "", err
	}
	progress.Coverage = genOut.Result.Coverage
	progress.Rounds = genOut.Result.Rounds
	progress.Cards = len(genOut.Result.Items)

	progress.Stage = "writing"
	var deckOut activities.WriteStudyDeckOutput
	if err := workflow.ExecuteActivity(ctx, "WriteStudyDeckActivity", activities.WriteStudyDeckInput{
		SessionID:  input.SessionID,
		StudyRunID: input.StudyRunID,
		Request:    input.Request,
		Result:     genOut.Result,
	}).Get(ctx, &deckOut); err != nil {
		return "", err
	}
	_ = workflow.ExecuteActivity(ctx, "UpdateStudyRunActivity", activities.UpdateStudyRunInput{StudyRunID: input.StudyRunID, Status: "completed", OutPath: deckOut.OutPath}).Get(ctx, nil)
	progress.Stage = "done"
	return deckOut.OutPath, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksInput, retryCounts map[string]int) (activities.EmbedChunksOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	maxAttempts := providerCount * 4
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedChunksOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
				Operation:    input.Operation,
				SessionID:    input.SessionID,
				DocumentID:   input.DocumentID,
				ProviderName: out.ProviderName,
				Model:        out.Model,
				RequestID:    fmt.Sprintf("%s-%d", input.Operation, attempt),
				Status:       "ok",
			}).Get(ctx, nil)
			return out, nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
			Operation:    input.Operation,
			SessionID:    input.SessionID,
			DocumentID:   input.DocumentID,
			ProviderName: fmt.Sprintf("provider-%d", idx),
			RequestID:    fmt.Sprintf("%s-%d", input.Operation, attempt),
			Status:       "failed",
			ErrorType:    string(errType),
		}).Get(ctx, nil)
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.EmbedChunksOutput{}, lastErr
}

func callRetrieveWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.RetrieveChunksInput) (activities.RetrieveChunksOutput, error) {
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.RetrieveChunksOutput
		err := workflow.ExecuteActivity(ctx, "RetrieveChunksActivity", input).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		switch providers.ClassifyError(err) {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate, providers.ErrorTransient:
			state.retries["retrieve"]++
			if state.retries["retrieve"] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries["retrieve"])*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all retrieval providers exhausted")
	}
	return activities.RetrieveChunksOutput{}, lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func isNoTextError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no extractable text")
}

func isInvalidTextEncodingError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "invalid byte sequence") || strings.Contains(e, "sqlstate 22021")
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
