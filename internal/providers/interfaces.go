package providers

import "context"

// ProviderInfo identifies which backend and model served a call. It travels
// with every response so the LLM audit log can attribute calls even when the
// call itself failed.
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// GenerateRequest is one flashcard generation or refinement call. Context
// carries the tagged chunk lines the model is allowed to cite; the prompt
// explains what to do with them.
type GenerateRequest struct {
	Operation string   `json:"operation"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

// EmbedRequest embeds a batch of chunk texts. Order of Inputs is preserved
// in the returned vectors.
type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}
