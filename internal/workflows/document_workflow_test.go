package workflows

import (
	"context"
	"errors"
	"testing"

	"studymosaic/internal/activities"
	"studymosaic/internal/flashcards"
	"studymosaic/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func TestDocumentProcessWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentProcessWorkflow)
	registerActivityName(env, "ComputeDocumentIDActivity", func(context.Context, activities.ComputeDocumentIDInput) (activities.ComputeDocumentIDOutput, error) {
		return activities.ComputeDocumentIDOutput{}, nil
	})
	registerActivityName(env, "UpdateDocumentStatusActivity", func(context.Context, activities.UpdateDocumentStatusInput) error { return nil })
	registerActivityName(env, "ExtractPagesActivity", func(context.Context, activities.ExtractPagesInput) (activities.ExtractPagesOutput, error) {
		return activities.ExtractPagesOutput{}, nil
	})
	registerActivityName(env, "ChunkPagesActivity", func(context.Context, activities.ChunkPagesInput) (activities.ChunkPagesOutput, error) {
		return activities.ChunkPagesOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
	registerActivityName(env, "WriteDocumentArtifactsActivity", func(context.Context, activities.WriteDocumentArtifactsInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })

	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, activities.ComputeDocumentIDInput{DocumentPath: "/tmp/notes.pdf"}).Return(activities.ComputeDocumentIDOutput{DocumentID: "doc123"}, nil)
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractPagesActivity", mock.Anything, activities.ExtractPagesInput{DocumentPath: "/tmp/notes.pdf"}).Return(activities.ExtractPagesOutput{
		Title: "Intro to Thermodynamics",
		Pages: []activities.PageText{{Page: 1, Text: "heat flows from hot to cold"}},
	}, nil)
	env.OnActivity("ChunkPagesActivity", mock.Anything, mock.Anything).Return(activities.ChunkPagesOutput{
		Chunks: []activities.ChunkItem{{ChunkID: "notes-p1-c0", Page: 1, CharEnd: 27, Text: "heat flows from hot to cold"}},
	}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock"}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteDocumentArtifactsActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentProcessWorkflow, DocumentProcessInput{SessionID: "s1", DocumentPath: "/tmp/notes.pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}

func TestDocumentProcessWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentProcessWorkflow)
	registerActivityName(env, "ComputeDocumentIDActivity", func(context.Context, activities.ComputeDocumentIDInput) (activities.ComputeDocumentIDOutput, error) {
		return activities.ComputeDocumentIDOutput{}, nil
	})
	registerActivityName(env, "UpdateDocumentStatusActivity", func(context.Context, activities.UpdateDocumentStatusInput) error { return nil })
	registerActivityName(env, "ExtractPagesActivity", func(context.Context, activities.ExtractPagesInput) (activities.ExtractPagesOutput, error) {
		return activities.ExtractPagesOutput{}, nil
	})

	env.OnActivity("ComputeDocumentIDActivity", mock.Anything, mock.Anything).Return(activities.ComputeDocumentIDOutput{DocumentID: "doc123"}, nil)
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractPagesActivity", mock.Anything, mock.Anything).Return(activities.ExtractPagesOutput{}, errors.New("no extractable text found in PDF"))

	env.ExecuteWorkflow(DocumentProcessWorkflow, DocumentProcessInput{SessionID: "s1", DocumentPath: "/tmp/notes.pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestStudyBuildWorkflowCompletes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(StudyBuildWorkflow)
	registerActivityName(env, "UpdateStudyRunActivity", func(context.Context, activities.UpdateStudyRunInput) error { return nil })
	registerActivityName(env, "RetrieveChunksActivity", func(context.Context, activities.RetrieveChunksInput) (activities.RetrieveChunksOutput, error) {
		return activities.RetrieveChunksOutput{}, nil
	})
	registerActivityName(env, "GenerateFlashcardsActivity", func(context.Context, activities.GenerateFlashcardsInput) (activities.GenerateFlashcardsOutput, error) {
		return activities.GenerateFlashcardsOutput{}, nil
	})
	registerActivityName(env, "WriteStudyDeckActivity", func(context.Context, activities.WriteStudyDeckInput) (activities.WriteStudyDeckOutput, error) {
		return activities.WriteStudyDeckOutput{}, nil
	})

	env.OnActivity("UpdateStudyRunActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("RetrieveChunksActivity", mock.Anything, mock.Anything).Return(activities.RetrieveChunksOutput{
		Chunks: []models.RetrievedChunk{{ChunkID: "notes-p1-c0", Text: "heat flows", Page: 1}},
	}, nil)
	env.OnActivity("GenerateFlashcardsActivity", mock.Anything, mock.Anything).Return(activities.GenerateFlashcardsOutput{
		Result: flashcards.StudyResult{
			Items:         []flashcards.Flashcard{{ID: "f1", Question: "Q", Answer: "A"}},
			Coverage:      1,
			CitedChunkIDs: []string{"notes-p1-c0"},
			TotalChunks:   1,
			Rounds:        1,
		},
	}, nil)
	env.OnActivity("WriteStudyDeckActivity", mock.Anything, mock.Anything).Return(activities.WriteStudyDeckOutput{OutPath: "/out/s1/studies/r1/deck.json"}, nil)

	env.ExecuteWorkflow(StudyBuildWorkflow, StudyBuildInput{StudyRunID: "r1", SessionID: "s1", Request: "thermo", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "/out/s1/studies/r1/deck.json", out)
}
