// Package flashcards implements the multi-round flashcard generation loop:
// generate, extract citations, evaluate coverage, refine toward the gap.
package flashcards

import "strings"

// Location pins a citation to a position in the indexed corpus.
type Location struct {
	Page      int    `json:"page"`
	ChunkID   string `json:"chunk_id"`
	CharStart int    `json:"char_start,omitempty"`
	CharEnd   int    `json:"char_end,omitempty"`
}

// Citation is a verbatim quote plus where it came from. A citation whose
// chunk id does not resolve is ignored for coverage but never fatal.
type Citation struct {
	Text     string   `json:"text"`
	Location Location `json:"location"`
}

type Flashcard struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// FlashcardSet is the wrapper shape the generation model is asked to emit.
type FlashcardSet struct {
	Flashcards []Flashcard `json:"flashcards"`
}

// StudyResult is the terminal state of one loop invocation.
type StudyResult struct {
	Items         []Flashcard `json:"flashcards"`
	Coverage      float64     `json:"coverage"`
	CitedChunkIDs []string    `json:"cited_chunk_ids"`
	TotalChunks   int         `json:"total_chunks"`
	Rounds        int         `json:"rounds"`
}

// NormalizeQuestion is the dedup identity for flashcards: lowercased with
// whitespace runs collapsed. Two cards with the same normalized question
// are the same logical card.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
