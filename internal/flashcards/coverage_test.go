package flashcards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func citedSet(ids ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func TestEvaluateCoverage(t *testing.T) {
	total := []string{"c0", "c1", "c2", "c3"}
	report := EvaluateCoverage(total, citedSet("c1", "c3", "unknown"), 0.8, 1, 3)
	require.InDelta(t, 0.5, report.Coverage, 1e-9)
	require.Equal(t, []string{"c0", "c2"}, report.MissingChunkIDs)
	require.True(t, report.ShouldContinue)
}

func TestEvaluateCoverageThresholdReached(t *testing.T) {
	total := []string{"c0", "c1"}
	report := EvaluateCoverage(total, citedSet("c0", "c1"), 0.8, 1, 3)
	require.InDelta(t, 1.0, report.Coverage, 1e-9)
	require.Empty(t, report.MissingChunkIDs)
	require.False(t, report.ShouldContinue)
}

func TestEvaluateCoverageRoundBudget(t *testing.T) {
	total := []string{"c0", "c1"}
	report := EvaluateCoverage(total, citedSet(), 0.8, 3, 3)
	require.False(t, report.ShouldContinue, "budget exhausted must stop regardless of coverage")
}

func TestEvaluateCoverageNoChunks(t *testing.T) {
	report := EvaluateCoverage(nil, citedSet(), 0.8, 0, 3)
	require.Zero(t, report.Coverage)
	require.Empty(t, report.MissingChunkIDs)
}

func TestEvaluateCoverageMissingPreservesOrder(t *testing.T) {
	total := []string{"z", "m", "a", "q"}
	report := EvaluateCoverage(total, citedSet("m"), 0.9, 1, 3)
	require.Equal(t, []string{"z", "a", "q"}, report.MissingChunkIDs)
}
