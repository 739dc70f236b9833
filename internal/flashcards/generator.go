package flashcards

import (
	"context"
	"fmt"
	"strings"

	"studymosaic/internal/providers"
)

const (
	opGenerate = "flashcard_generate"
	opRefine   = "flashcard_refine"
)

// CallObserver receives one record per completed model call so callers can
// audit usage. It must not block for long; it runs inline.
type CallObserver func(op string, info providers.ProviderInfo, prompt, output string, callErr error)

// LLMGenerator backs the loop with the configured LLM providers, walking
// them in preferred order and falling through to the next on any error.
type LLMGenerator struct {
	mgr     *providers.Manager
	observe CallObserver
}

func NewLLMGenerator(mgr *providers.Manager, observe CallObserver) *LLMGenerator {
	return &LLMGenerator{mgr: mgr, observe: observe}
}

func (g *LLMGenerator) GenerateRound(ctx context.Context, in RoundInput) (RoundOutput, error) {
	op := opGenerate
	var prompt string
	var contextLines []string
	if in.Round <= 1 {
		prompt = generatePrompt(in.Request, len(in.Chunks))
		for _, c := range in.Chunks {
			contextLines = append(contextLines, ContextLine(c.ChunkID, c.Page, c.Text))
		}
	} else {
		op = opRefine
		prompt = refinePrompt(in.Request, in.PriorItems, in.MissingChunkIDs)
		// Refinement rounds see only the uncited chunks so the model
		// targets the gap instead of re-covering old ground.
		missing := make(map[string]struct{}, len(in.MissingChunkIDs))
		for _, id := range in.MissingChunkIDs {
			missing[id] = struct{}{}
		}
		for _, c := range in.Chunks {
			if _, ok := missing[c.ChunkID]; ok {
				contextLines = append(contextLines, ContextLine(c.ChunkID, c.Page, c.Text))
			}
		}
	}

	req := providers.GenerateRequest{Operation: op, Prompt: prompt, Context: contextLines}
	var lastErr error
	for _, idx := range g.mgr.PreferredLLMOrder() {
		p, _ := g.mgr.LLMProviderByIndex(idx)
		resp, info, err := p.Generate(ctx, req)
		if g.observe != nil {
			g.observe(op, info, prompt, resp.Text, err)
		}
		if err != nil {
			lastErr = err
			continue
		}
		text := strings.TrimSpace(resp.Text)
		if in.Round > 1 && strings.EqualFold(stripCodeFence(text), noFurtherChangesToken) {
			return RoundOutput{Raw: "", NoFurtherChanges: true}, nil
		}
		return RoundOutput{Raw: text}, nil
	}
	return RoundOutput{}, fmt.Errorf("all llm providers failed: %w", lastErr)
}
