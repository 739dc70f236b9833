package flashcards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"studymosaic/internal/models"
	"studymosaic/internal/util"

	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	outputs []RoundOutput
	errs    []error
	calls   int
	inputs  []RoundInput
}

func (g *scriptedGenerator) GenerateRound(_ context.Context, in RoundInput) (RoundOutput, error) {
	i := g.calls
	g.calls++
	g.inputs = append(g.inputs, in)
	if i < len(g.errs) && g.errs[i] != nil {
		return RoundOutput{}, g.errs[i]
	}
	if i < len(g.outputs) {
		return g.outputs[i], nil
	}
	return RoundOutput{Raw: `{"flashcards":[]}`}, nil
}

func tenChunks() []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, 0, 10)
	for i := 0; i < 10; i++ {
		out = append(out, models.RetrievedChunk{
			ChunkID: fmt.Sprintf("c%d", i),
			Text:    fmt.Sprintf("chunk %d body", i),
			Page:    i + 1,
		})
	}
	return out
}

// roundJSON builds one card per cited chunk id, questions prefixed to stay
// distinct across rounds.
func roundJSON(t *testing.T, qPrefix string, ids ...string) string {
	t.Helper()
	set := FlashcardSet{}
	for i, id := range ids {
		set.Flashcards = append(set.Flashcards, Flashcard{
			ID:       fmt.Sprintf("%s-%d", qPrefix, i),
			Question: fmt.Sprintf("%s question %d?", qPrefix, i),
			Answer:   "answer",
			Citations: []Citation{
				{Text: "quote", Location: Location{Page: i + 1, ChunkID: id}},
			},
		})
	}
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	return string(raw)
}

func TestLoopStopsWhenCoverageReached(t *testing.T) {
	gen := &scriptedGenerator{outputs: []RoundOutput{
		{Raw: roundJSON(t, "r1", "c0", "c1", "c2")},
		{Raw: roundJSON(t, "r2", "c3", "c4", "c5", "c6")},
	}}
	loop, err := NewLoop(gen, 0.5, 3)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "thermodynamics basics", tenChunks())
	require.NoError(t, err)
	require.Equal(t, 2, res.Rounds)
	require.Equal(t, 2, gen.calls)
	require.Equal(t, 10, res.TotalChunks)
	require.Len(t, res.CitedChunkIDs, 7)
	require.InDelta(t, 0.7, res.Coverage, 1e-9)

	// Round 2 must have been told exactly what was still missing.
	require.Equal(t, []string{"c3", "c4", "c5", "c6", "c7", "c8", "c9"}, gen.inputs[1].MissingChunkIDs)
	require.Len(t, gen.inputs[1].PriorItems, 3)
}

func TestLoopDedupAcrossRounds(t *testing.T) {
	dupe := `{"flashcards":[{"id":"x","question":"R1 Question 0?","answer":"other answer","citations":[{"text":"q","location":{"page":1,"chunk_id":"c9"}}]}]}`
	gen := &scriptedGenerator{outputs: []RoundOutput{
		{Raw: roundJSON(t, "r1", "c0")},
		{Raw: dupe},
		{Raw: `{"flashcards":[]}`},
	}}
	loop, err := NewLoop(gen, 0.99, 3)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "req", tenChunks())
	require.NoError(t, err)
	require.Len(t, res.Items, 1, "duplicate normalized question must be dropped")
	// The dropped duplicate's citation of c9 must not count toward coverage.
	require.Equal(t, []string{"c0"}, res.CitedChunkIDs)
	require.InDelta(t, 0.1, res.Coverage, 1e-9)
}

func TestLoopRoundBudgetTerminates(t *testing.T) {
	gen := &scriptedGenerator{outputs: []RoundOutput{
		{Raw: roundJSON(t, "r1", "c0")},
		{Raw: roundJSON(t, "r2", "c1")},
		{Raw: roundJSON(t, "r3", "c2")},
		{Raw: roundJSON(t, "r4", "c3")},
	}}
	loop, err := NewLoop(gen, 0.9, 3)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "req", tenChunks())
	require.NoError(t, err, "budget exhaustion is a normal terminal condition")
	require.Equal(t, 3, res.Rounds)
	require.Equal(t, 3, gen.calls)
	require.InDelta(t, 0.3, res.Coverage, 1e-9)
}

func TestLoopZeroChunks(t *testing.T) {
	gen := &scriptedGenerator{}
	loop, err := NewLoop(gen, 0.8, 3)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "req", nil)
	require.NoError(t, err)
	require.Zero(t, gen.calls, "generation must not run with nothing to ground on")
	require.Empty(t, res.Items)
	require.Empty(t, res.CitedChunkIDs)
	require.Zero(t, res.Coverage)
	require.Zero(t, res.TotalChunks)
}

func TestLoopMalformedRoundIsEmptyRound(t *testing.T) {
	gen := &scriptedGenerator{outputs: []RoundOutput{
		{Raw: "the model rambled instead of emitting json"},
		{Raw: roundJSON(t, "r2", "c0", "c1", "c2", "c3", "c4")},
	}}
	loop, err := NewLoop(gen, 0.5, 3)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "req", tenChunks())
	require.NoError(t, err)
	require.Equal(t, 2, res.Rounds)
	require.Len(t, res.Items, 5)
	require.InDelta(t, 0.5, res.Coverage, 1e-9)
}

func TestLoopCoverageMonotonic(t *testing.T) {
	gen := &scriptedGenerator{outputs: []RoundOutput{
		{Raw: roundJSON(t, "r1", "c0", "c1")},
		{Raw: "garbage"},
		{Raw: roundJSON(t, "r3", "c2")},
	}}
	loop, err := NewLoop(gen, 0.99, 3)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "req", tenChunks())
	require.NoError(t, err)
	// A garbage round in the middle never shrinks the cited set.
	require.Equal(t, []string{"c0", "c1", "c2"}, res.CitedChunkIDs)
	require.InDelta(t, 0.3, res.Coverage, 1e-9)
}

func TestLoopStopSignal(t *testing.T) {
	gen := &scriptedGenerator{outputs: []RoundOutput{
		{Raw: roundJSON(t, "r1", "c0")},
		{NoFurtherChanges: true},
	}}
	loop, err := NewLoop(gen, 0.9, 5)
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "req", tenChunks())
	require.NoError(t, err)
	require.Equal(t, 2, res.Rounds, "stop signal must end the loop below threshold")
	require.Len(t, res.Items, 1)
}

func TestLoopGeneratorErrorPropagates(t *testing.T) {
	boom := errors.New("provider transport down")
	gen := &scriptedGenerator{errs: []error{boom}}
	loop, err := NewLoop(gen, 0.8, 3)
	require.NoError(t, err)

	_, err = loop.Run(context.Background(), "req", tenChunks())
	require.ErrorIs(t, err, boom)
}

func TestLoopCancelledBeforeRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{}
	loop, err := NewLoop(gen, 0.8, 3)
	require.NoError(t, err)

	_, err = loop.Run(ctx, "req", tenChunks())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, gen.calls)
}

func TestNewLoopValidatesParams(t *testing.T) {
	_, err := NewLoop(&scriptedGenerator{}, 0, 3)
	require.ErrorIs(t, err, util.ErrInvalidArgument)
	_, err = NewLoop(&scriptedGenerator{}, 1.2, 3)
	require.ErrorIs(t, err, util.ErrInvalidArgument)
	_, err = NewLoop(&scriptedGenerator{}, 0.8, 0)
	require.ErrorIs(t, err, util.ErrInvalidArgument)
}
