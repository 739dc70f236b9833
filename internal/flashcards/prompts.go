package flashcards

import (
	"encoding/json"
	"fmt"
	"strings"
)

// noFurtherChangesToken is the exact reply a refinement round uses to signal
// that the draft cannot be improved further.
const noFurtherChangesToken = "NO_FURTHER_CHANGES"

const flashcardSchema = `{
  "flashcards": [
    {
      "id": "string",
      "question": "string",
      "answer": "string",
      "citations": [
        {
          "text": "verbatim quote from a context chunk",
          "location": {"page": 0, "chunk_id": "string", "char_start": 0, "char_end": 0}
        }
      ]
    }
  ]
}`

// ContextLine renders one chunk for the model context. The tag prefix is
// the contract the citation instructions refer back to.
func ContextLine(chunkID string, page int, text string) string {
	return fmt.Sprintf("[chunk_id=%s page=%d] %s", chunkID, page, strings.TrimSpace(text))
}

func generatePrompt(request string, nChunks int) string {
	var b strings.Builder
	b.WriteString("Create study flashcards for the request below, grounded strictly in the provided context chunks.\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", request)
	fmt.Fprintf(&b, "You are given %d context chunks, each tagged [chunk_id=... page=...].\n", nChunks)
	b.WriteString("Rules:\n")
	b.WriteString("- Every answer must be supported by at least one citation quoting a context chunk verbatim, with the chunk's exact chunk_id and page.\n")
	b.WriteString("- Never cite a chunk_id that does not appear in the context.\n")
	b.WriteString("- If the context is insufficient for part of the request, say so in the answer instead of inventing material.\n")
	b.WriteString("- Aim to draw on as many distinct chunks as the request allows.\n\n")
	b.WriteString("Reply with JSON only, matching this schema exactly:\n")
	b.WriteString(flashcardSchema)
	return b.String()
}

func refinePrompt(request string, prior []Flashcard, missing []string) string {
	draft, _ := json.Marshal(FlashcardSet{Flashcards: prior})
	var b strings.Builder
	b.WriteString("You previously drafted flashcards for this request. Extend the draft to cover the uncited chunks.\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", request)
	fmt.Fprintf(&b, "Prior draft:\n%s\n\n", string(draft))
	fmt.Fprintf(&b, "Chunks not yet cited by any card: %s\n\n", strings.Join(missing, ", "))
	b.WriteString("Rules:\n")
	b.WriteString("- Produce ONLY new or changed cards that cite the uncited chunks; do not restate cards that need no change.\n")
	b.WriteString("- Do not repeat a question already present in the prior draft.\n")
	b.WriteString("- Citations must quote the context verbatim with exact chunk_id and page.\n")
	fmt.Fprintf(&b, "- If none of the uncited chunks supports a useful card, reply with exactly %s and nothing else.\n\n", noFurtherChangesToken)
	b.WriteString("Otherwise reply with JSON only, matching this schema exactly:\n")
	b.WriteString(flashcardSchema)
	return b.String()
}
