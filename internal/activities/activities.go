package activities

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"studymosaic/internal/config"
	"studymosaic/internal/embedding"
	"studymosaic/internal/flashcards"
	"studymosaic/internal/models"
	"studymosaic/internal/providers"
	"studymosaic/internal/retrieval"
	"studymosaic/internal/storage"
	"studymosaic/internal/util"
	"studymosaic/internal/vector"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

type Activities struct {
	cfg          config.Config
	db           *storage.DB
	sessionRepo  *storage.SessionRepo
	documentRepo *storage.DocumentRepo
	chunkRepo    *storage.ChunkRepo
	runRepo      *storage.StudyRunRepo
	llmAuditRepo *storage.LLMAuditRepo
	providers    *providers.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:          cfg,
		db:           db,
		sessionRepo:  storage.NewSessionRepo(db),
		documentRepo: storage.NewDocumentRepo(db),
		chunkRepo:    storage.NewChunkRepo(db),
		runRepo:      storage.NewStudyRunRepo(db),
		llmAuditRepo: storage.NewLLMAuditRepo(db),
		providers:    pm,
	}, nil
}

// indexFor builds a session index backed by the embed provider at the given
// index, with the standard retry policy around it.
func (a *Activities) indexFor(providerIndex int) *vector.Index {
	provider, _ := a.providers.EmbedProviderByIndex(providerIndex)
	client := embedding.NewClient(provider, embedding.DefaultRetryPolicy(a.cfg), a.cfg.EmbedDim)
	return vector.NewIndex(a.db.Pool, a.chunkRepo, client, a.cfg.EmbedVersion)
}

func (a *Activities) ListPDFsActivity(ctx context.Context, in ListPDFsInput) (ListPDFsOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListPDFsOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(in.InputDir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return ListPDFsOutput{}, fmt.Errorf("%w: no pdf documents in %s", util.ErrInvalidArgument, in.InputDir)
	}
	if len(paths) > a.cfg.MaxPDFsPerSession {
		return ListPDFsOutput{}, fmt.Errorf("%w: %d pdfs exceeds limit of %d", util.ErrTooManyDocuments, len(paths), a.cfg.MaxPDFsPerSession)
	}
	return ListPDFsOutput{Paths: paths}, nil
}

func (a *Activities) ComputeDocumentIDActivity(ctx context.Context, in ComputeDocumentIDInput) (ComputeDocumentIDOutput, error) {
	_ = ctx
	f, err := os.Open(in.DocumentPath)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()
	sum, err := util.SHA256HexFromReader(f)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("hash file: %w", err)
	}
	return ComputeDocumentIDOutput{DocumentID: sum}, nil
}

func (a *Activities) ExtractPagesActivity(ctx context.Context, in ExtractPagesInput) (ExtractPagesOutput, error) {
	_ = ctx
	f, r, err := pdf.Open(in.DocumentPath)
	if err != nil {
		return ExtractPagesOutput{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	out := ExtractPagesOutput{Pages: make([]PageText, 0, r.NumPage())}
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		p := r.Page(pageNum)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A single broken page should not sink the document.
			continue
		}
		text = util.SanitizeText(strings.TrimSpace(text))
		if text == "" {
			continue
		}
		out.Pages = append(out.Pages, PageText{Page: pageNum, Text: text})
	}
	if len(out.Pages) == 0 {
		return ExtractPagesOutput{}, util.ErrNoExtractableText
	}
	out.Title = heuristicTitle(out.Pages[0].Text)
	return out, nil
}

// ChunkPagesActivity windows each page independently so chunk ids and char
// offsets stay page-relative. The id is "<stem>-p<page>-c<n>" and is stable
// across re-ingestion of unchanged content.
func (a *Activities) ChunkPagesActivity(ctx context.Context, in ChunkPagesInput) (ChunkPagesOutput, error) {
	_ = ctx
	size := in.ChunkSize
	if size <= 0 {
		size = a.cfg.ChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = a.cfg.ChunkOverlap
	}
	stem := strings.TrimSuffix(in.PDF, filepath.Ext(in.PDF))

	out := ChunkPagesOutput{Chunks: make([]ChunkItem, 0, len(in.Pages))}
	for _, page := range in.Pages {
		windows, err := util.ChunkText(page.Text, size, overlap)
		if err != nil {
			return ChunkPagesOutput{}, err
		}
		local := 0
		for _, w := range windows {
			text := util.SanitizeText(w.Text)
			if strings.TrimSpace(text) == "" {
				continue
			}
			out.Chunks = append(out.Chunks, ChunkItem{
				ChunkID:   fmt.Sprintf("%s-p%d-c%d", stem, page.Page, local),
				Page:      page.Page,
				CharStart: w.CharStart,
				CharEnd:   w.CharEnd,
				Text:      text,
			})
			local++
		}
	}
	return out, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	provider, ref := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	client := embedding.NewClient(provider, embedding.DefaultRetryPolicy(a.cfg), a.cfg.EmbedDim)
	texts := make([]string, 0, len(in.Input))
	for _, c := range in.Input {
		texts = append(texts, c.Text)
	}
	vectors, err := client.Embed(ctx, texts)
	if err != nil {
		return EmbedChunksOutput{}, err
	}
	return EmbedChunksOutput{Vectors: vectors, ProviderName: ref.Name}, nil
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) error {
	items := make([]vector.Item, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		items = append(items, vector.Item{
			ChunkID:    c.ChunkID,
			DocumentID: in.DocumentID,
			PDF:        in.PDF,
			Page:       c.Page,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
			Text:       c.Text,
		})
	}
	return a.indexFor(0).Upsert(ctx, in.SessionID, items, in.Vectors)
}

// WriteDocumentArtifactsActivity writes a per-document metadata.json and a
// chunks.jsonl so a processed document can be inspected without the database.
func (a *Activities) WriteDocumentArtifactsActivity(ctx context.Context, in WriteDocumentArtifactsInput) error {
	_ = ctx
	base := filepath.Join(a.cfg.DataOutRoot, in.SessionID, "documents", in.DocumentID)
	if err := util.EnsureDir(base); err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(filepath.Join(base, "metadata.json"), map[string]any{
		"document_id": in.DocumentID,
		"pdf":         in.PDF,
		"title":       in.Title,
		"pages":       in.Pages,
		"chunks":      len(in.Chunks),
	}); err != nil {
		return err
	}
	rows := make([]any, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		rows = append(rows, map[string]any{
			"chunk_id":    c.ChunkID,
			"page":        c.Page,
			"char_start":  c.CharStart,
			"char_end":    c.CharEnd,
			"text_sha256": util.SHA256Hex([]byte(c.Text)),
			"text":        c.Text,
		})
	}
	return util.WriteJSONLinesAtomic(filepath.Join(base, "chunks.jsonl"), rows)
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	var pages *int
	if in.Pages > 0 {
		pages = &in.Pages
	}
	return a.documentRepo.UpsertDocument(ctx, models.Document{
		DocumentID: in.DocumentID,
		SessionID:  in.SessionID,
		Filename:   in.Filename,
		Title:      in.Title,
		Pages:      pages,
		Status:     in.Status,
		FailReason: in.FailReason,
	})
}

func (a *Activities) RetrieveChunksActivity(ctx context.Context, in RetrieveChunksInput) (RetrieveChunksOutput, error) {
	topK := in.TopK
	if topK <= 0 {
		topK = a.cfg.TopK
	}
	retriever := retrieval.NewRetriever(a.indexFor(in.ProviderIndex), topK)
	chunks, err := retriever.Retrieve(ctx, in.SessionID, in.Request)
	if err != nil {
		return RetrieveChunksOutput{}, err
	}
	return RetrieveChunksOutput{Chunks: chunks}, nil
}

// GenerateFlashcardsActivity runs the whole coverage loop as one activity:
// rounds are sequential and prompt-dependent, so there is nothing for the
// workflow layer to schedule between them.
func (a *Activities) GenerateFlashcardsActivity(ctx context.Context, in GenerateFlashcardsInput) (GenerateFlashcardsOutput, error) {
	threshold := in.CoverageThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = a.cfg.CoverageThreshold
	}
	maxRounds := in.MaxRounds
	if maxRounds < 1 {
		maxRounds = a.cfg.MaxRounds
	}
	if intent := flashcards.RouteIntent(in.Request); intent != flashcards.IntentFlashcards {
		return GenerateFlashcardsOutput{}, fmt.Errorf("%w: unsupported study intent %q", util.ErrInvalidArgument, intent)
	}

	observe := func(op string, info providers.ProviderInfo, _ string, _ string, callErr error) {
		status := "success"
		errType := ""
		if callErr != nil {
			status = "error"
			errType = string(providers.ClassifyError(callErr))
		}
		_ = a.llmAuditRepo.Insert(ctx, storage.LLMCallRecord{
			CallID:       uuid.NewString(),
			Operation:    op,
			SessionID:    in.SessionID,
			ProviderName: info.Name,
			Model:        info.Model,
			RequestID:    in.StudyRunID,
			Status:       status,
			ErrorType:    errType,
		})
	}

	gen := flashcards.NewLLMGenerator(a.providers, observe)
	loop, err := flashcards.NewLoop(gen, threshold, maxRounds)
	if err != nil {
		return GenerateFlashcardsOutput{}, err
	}
	result, err := loop.Run(ctx, in.Request, in.Chunks)
	if err != nil {
		return GenerateFlashcardsOutput{}, err
	}
	return GenerateFlashcardsOutput{Result: *result}, nil
}

func (a *Activities) WriteStudyDeckActivity(ctx context.Context, in WriteStudyDeckInput) (WriteStudyDeckOutput, error) {
	_ = ctx
	base := filepath.Join(a.cfg.DataOutRoot, in.SessionID, "studies", in.StudyRunID)
	if err := util.EnsureDir(base); err != nil {
		return WriteStudyDeckOutput{}, err
	}
	deckPath := filepath.Join(base, "deck.json")
	if err := util.WriteJSONAtomic(deckPath, in.Result); err != nil {
		return WriteStudyDeckOutput{}, err
	}
	summary := fmt.Sprintf("# Study deck\n\nRequest: %s\n\n%s", in.Request, in.Result.CoverageSummary())
	if err := util.WriteTextAtomic(filepath.Join(base, "summary.md"), summary); err != nil {
		return WriteStudyDeckOutput{}, err
	}
	return WriteStudyDeckOutput{OutPath: deckPath}, nil
}

func (a *Activities) UpdateStudyRunActivity(ctx context.Context, in UpdateStudyRunInput) error {
	return a.runRepo.UpdateRunStatus(ctx, in.StudyRunID, in.Status, in.OutPath)
}

func (a *Activities) LogLLMCallActivity(ctx context.Context, in LogLLMCallInput) error {
	return a.llmAuditRepo.Insert(ctx, storage.LLMCallRecord{
		CallID:       in.CallID,
		Operation:    in.Operation,
		SessionID:    in.SessionID,
		DocumentID:   in.DocumentID,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		RequestID:    in.RequestID,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
	})
}

func (a *Activities) ListSessionDocumentsActivity(ctx context.Context, in ListSessionDocumentsInput) (ListSessionDocumentsOutput, error) {
	docs, err := a.documentRepo.ListDocumentsBySession(ctx, in.SessionID)
	if err != nil {
		return ListSessionDocumentsOutput{}, err
	}
	out := ListSessionDocumentsOutput{Documents: make([]SessionDocument, 0, len(docs))}
	for _, d := range docs {
		pages := 0
		if d.Pages != nil {
			pages = *d.Pages
		}
		out.Documents = append(out.Documents, SessionDocument{
			DocumentID: d.DocumentID,
			Filename:   d.Filename,
			Title:      d.Title,
			Pages:      pages,
			Status:     d.Status,
			FailReason: d.FailReason,
		})
	}
	return out, nil
}

func (a *Activities) WriteSessionSummaryActivity(ctx context.Context, in WriteSessionSummaryInput) error {
	_ = ctx
	outPath := filepath.Join(a.cfg.DataOutRoot, in.SessionID, "session_summary.json")
	return util.WriteJSONAtomic(outPath, in.Summary)
}

func heuristicTitle(firstPage string) string {
	s := bufio.NewScanner(strings.NewReader(firstPage))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line != "" {
			return util.DisplaySnippet(line, 200)
		}
	}
	return ""
}
