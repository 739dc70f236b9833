package flashcards

import (
	"context"
	"fmt"

	"studymosaic/internal/models"
	"studymosaic/internal/util"
)

// RoundInput is everything one generation round sees. Round 1 gets the full
// chunk context; later rounds additionally carry the prior draft and the
// chunk ids still uncited so the model can target the gap.
type RoundInput struct {
	Request         string
	Chunks          []models.RetrievedChunk
	PriorItems      []Flashcard
	MissingChunkIDs []string
	Round           int
}

// RoundOutput is the raw model payload plus the explicit refinement stop
// signal. NoFurtherChanges forces the loop to stop after this round even if
// coverage is still below threshold.
type RoundOutput struct {
	Raw              string
	NoFurtherChanges bool
}

// Generator is the structured completion capability the loop drives.
type Generator interface {
	GenerateRound(ctx context.Context, in RoundInput) (RoundOutput, error)
}

// Loop runs the round-bounded generate/evaluate/refine state machine. One
// Loop value is safe for concurrent invocations; all round state lives in
// Run.
type Loop struct {
	gen       Generator
	threshold float64
	maxRounds int
}

func NewLoop(gen Generator, coverageThreshold float64, maxRounds int) (*Loop, error) {
	if coverageThreshold <= 0 || coverageThreshold > 1 {
		return nil, fmt.Errorf("%w: coverage threshold must be in (0,1], got %v", util.ErrInvalidArgument, coverageThreshold)
	}
	if maxRounds < 1 {
		return nil, fmt.Errorf("%w: max rounds must be >= 1, got %d", util.ErrInvalidArgument, maxRounds)
	}
	return &Loop{gen: gen, threshold: coverageThreshold, maxRounds: maxRounds}, nil
}

// Run executes up to maxRounds rounds against the fixed chunk set and
// returns the deduplicated cumulative result. Zero chunks is a terminal
// "nothing to ground on" condition reported without invoking generation.
// Malformed model output is an empty round, never an error; transport
// errors from the generator do abort the invocation. Cancellation is
// honored at round boundaries only.
func (l *Loop) Run(ctx context.Context, request string, chunks []models.RetrievedChunk) (*StudyResult, error) {
	totalIDs := make([]string, 0, len(chunks))
	seenID := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, dup := seenID[c.ChunkID]; dup {
			continue
		}
		seenID[c.ChunkID] = struct{}{}
		totalIDs = append(totalIDs, c.ChunkID)
	}
	if len(totalIDs) == 0 {
		return &StudyResult{Items: []Flashcard{}, Coverage: 0, CitedChunkIDs: []string{}, TotalChunks: 0, Rounds: 0}, nil
	}

	items := make([]Flashcard, 0, 16)
	seenQuestion := make(map[string]struct{})
	cited := make(map[string]struct{})
	missing := totalIDs
	rounds := 0

	for round := 1; round <= l.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := l.gen.GenerateRound(ctx, RoundInput{
			Request:         request,
			Chunks:          chunks,
			PriorItems:      items,
			MissingChunkIDs: missing,
			Round:           round,
		})
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		rounds = round

		if newItems, cerr := CoerceItems(out.Raw); cerr == nil {
			items = mergeItems(items, newItems, seenQuestion, cited)
		}

		report := EvaluateCoverage(totalIDs, cited, l.threshold, round, l.maxRounds)
		missing = report.MissingChunkIDs
		if out.NoFurtherChanges || !report.ShouldContinue {
			break
		}
	}

	final := EvaluateCoverage(totalIDs, cited, l.threshold, rounds, l.maxRounds)
	citedInOrder := make([]string, 0, len(totalIDs))
	for _, id := range totalIDs {
		if _, ok := cited[id]; ok {
			citedInOrder = append(citedInOrder, id)
		}
	}
	return &StudyResult{
		Items:         items,
		Coverage:      final.Coverage,
		CitedChunkIDs: citedInOrder,
		TotalChunks:   len(totalIDs),
		Rounds:        rounds,
	}, nil
}

// mergeItems applies question-text dedup: a card whose normalized question
// is already present is dropped outright, its citations are not merged.
// Only kept cards contribute to the cited set.
func mergeItems(items, incoming []Flashcard, seenQuestion, cited map[string]struct{}) []Flashcard {
	for _, card := range incoming {
		nq := NormalizeQuestion(card.Question)
		if nq == "" {
			continue
		}
		if _, dup := seenQuestion[nq]; dup {
			continue
		}
		seenQuestion[nq] = struct{}{}
		items = append(items, card)
		for _, id := range ExtractCitedIDs([]Flashcard{card}) {
			cited[id] = struct{}{}
		}
	}
	return items
}
