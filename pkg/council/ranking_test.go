package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateRankings(t *testing.T) {
	labelToModel := map[string]string{
		"Response A": "claude",
		"Response B": "codex",
		"Response C": "gemini",
	}
	labelOrder := []string{"Response A", "Response B", "Response C"}

	rankings := []Ranking{
		{Evaluator: "claude", ParsedRanking: []string{"Response B", "Response A", "Response C"}},
		{Evaluator: "codex", ParsedRanking: []string{"Response A", "Response B", "Response C"}},
	}

	aggregate := aggregateRankings(rankings, labelOrder, labelToModel)

	require.Len(t, aggregate, 3)
	// B and A tie at 1.5; B appeared first across the parsed rankings.
	assert.Equal(t, "Response B", aggregate[0].Label)
	assert.Equal(t, "codex", aggregate[0].Model)
	assert.Equal(t, 1.5, aggregate[0].AverageRank)
	assert.Equal(t, 2, aggregate[0].VoteCount)
	assert.Equal(t, []int{1, 2}, aggregate[0].Positions)

	assert.Equal(t, "Response A", aggregate[1].Label)
	assert.Equal(t, 1.5, aggregate[1].AverageRank)
	assert.Equal(t, []int{2, 1}, aggregate[1].Positions)

	assert.Equal(t, "Response C", aggregate[2].Label)
	assert.Equal(t, 3.0, aggregate[2].AverageRank)
	assert.Equal(t, []int{3, 3}, aggregate[2].Positions)
}

func TestAggregateRankings_IgnoresUnknownLabels(t *testing.T) {
	labelToModel := map[string]string{"Response A": "claude"}
	rankings := []Ranking{
		{Evaluator: "codex", ParsedRanking: []string{"Response Z", "Response A"}},
	}

	aggregate := aggregateRankings(rankings, []string{"Response A"}, labelToModel)

	require.Len(t, aggregate, 1)
	assert.Equal(t, "Response A", aggregate[0].Label)
	// The hallucinated label still consumed rank slot 1.
	assert.Equal(t, []int{2}, aggregate[0].Positions)
	assert.Equal(t, 2.0, aggregate[0].AverageRank)
}

func TestAggregateRankings_Rounding(t *testing.T) {
	labelToModel := map[string]string{"Response A": "claude", "Response B": "codex"}
	labelOrder := []string{"Response A", "Response B"}
	rankings := []Ranking{
		{Evaluator: "e1", ParsedRanking: []string{"Response A", "Response B"}},
		{Evaluator: "e2", ParsedRanking: []string{"Response B", "Response A"}},
		{Evaluator: "e3", ParsedRanking: []string{"Response B", "Response A"}},
	}

	aggregate := aggregateRankings(rankings, labelOrder, labelToModel)

	require.Len(t, aggregate, 2)
	assert.Equal(t, "Response B", aggregate[0].Label)
	assert.Equal(t, 1.33, aggregate[0].AverageRank)
	assert.Equal(t, "Response A", aggregate[1].Label)
	assert.Equal(t, 1.67, aggregate[1].AverageRank)
}

func TestAggregateRankings_UnrankedLabelOmitted(t *testing.T) {
	labelToModel := map[string]string{"Response A": "claude", "Response B": "codex"}
	rankings := []Ranking{
		{Evaluator: "e1", ParsedRanking: []string{"Response A"}},
	}

	aggregate := aggregateRankings(rankings, []string{"Response A", "Response B"}, labelToModel)

	require.Len(t, aggregate, 1)
	assert.Equal(t, "Response A", aggregate[0].Label)
}

func TestAggregateRankings_Empty(t *testing.T) {
	aggregate := aggregateRankings(nil, []string{"Response A"}, map[string]string{"Response A": "claude"})

	assert.Empty(t, aggregate)
}
