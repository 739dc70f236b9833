package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListPDFsActivity)
	w.RegisterActivity(a.ComputeDocumentIDActivity)
	w.RegisterActivity(a.ExtractPagesActivity)
	w.RegisterActivity(a.ChunkPagesActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.UpsertChunksActivity)
	w.RegisterActivity(a.WriteDocumentArtifactsActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
	w.RegisterActivity(a.RetrieveChunksActivity)
	w.RegisterActivity(a.GenerateFlashcardsActivity)
	w.RegisterActivity(a.WriteStudyDeckActivity)
	w.RegisterActivity(a.UpdateStudyRunActivity)
	w.RegisterActivity(a.LogLLMCallActivity)
	w.RegisterActivity(a.ListSessionDocumentsActivity)
	w.RegisterActivity(a.WriteSessionSummaryActivity)
}
