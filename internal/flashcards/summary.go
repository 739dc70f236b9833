package flashcards

import (
	"fmt"
	"strings"
)

// CoverageSummary renders the result for humans: the API returns it
// verbatim and the worker writes it next to the deck artifact.
func (r *StudyResult) CoverageSummary() string {
	if r.TotalChunks == 0 {
		return "No study material was retrieved for this request, so no flashcards were generated."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generated %d flashcards over %d round(s).\n", len(r.Items), r.Rounds)
	fmt.Fprintf(&b, "Citation coverage: %.0f%% (%d of %d retrieved chunks cited).\n",
		r.Coverage*100, len(r.CitedChunkIDs), r.TotalChunks)
	if len(r.CitedChunkIDs) < r.TotalChunks {
		fmt.Fprintf(&b, "%d chunk(s) remain uncited; the deck is a best-effort result.\n",
			r.TotalChunks-len(r.CitedChunkIDs))
	}
	return b.String()
}
