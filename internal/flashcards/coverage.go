package flashcards

// CoverageReport is recomputed from scratch each round; it is never stored.
type CoverageReport struct {
	Coverage        float64
	MissingChunkIDs []string
	ShouldContinue  bool
}

// EvaluateCoverage computes the cited fraction of totalIDs and whether the
// loop should run another round. totalIDs carries the original retrieval
// order, which MissingChunkIDs preserves for prompt construction. roundIndex
// is the number of rounds already completed.
func EvaluateCoverage(totalIDs []string, cited map[string]struct{}, threshold float64, roundIndex, maxRounds int) CoverageReport {
	covered := 0
	missing := make([]string, 0, len(totalIDs))
	for _, id := range totalIDs {
		if _, ok := cited[id]; ok {
			covered++
		} else {
			missing = append(missing, id)
		}
	}
	denom := len(totalIDs)
	if denom < 1 {
		denom = 1
	}
	coverage := float64(covered) / float64(denom)
	return CoverageReport{
		Coverage:        coverage,
		MissingChunkIDs: missing,
		ShouldContinue:  coverage < threshold && roundIndex < maxRounds,
	}
}
