package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRanking_FinalRankingSection(t *testing.T) {
	text := "Detailed analysis of each response.\n\n" +
		"FINAL RANKING:\n1. Response B\n2. Response A\n3. Response C\n\nThanks for asking."

	assert.Equal(t, []string{"Response B", "Response A", "Response C"}, ParseRanking(text))
}

func TestParseRanking_CaseInsensitiveHeader(t *testing.T) {
	text := "final ranking:\n1) Response A\n2) Response B"

	assert.Equal(t, []string{"Response A", "Response B"}, ParseRanking(text))
}

func TestParseRanking_SectionWinsOverMentions(t *testing.T) {
	// Mentions before the section do not leak into the result.
	text := "Response C was weak. Response A was fine.\n\n" +
		"FINAL RANKING:\n1. Response A\n2. Response C"

	assert.Equal(t, []string{"Response A", "Response C"}, ParseRanking(text))
}

func TestParseRanking_LowercaseLabelsInSection(t *testing.T) {
	// The header matches case-insensitively but labels must be uppercase,
	// and a matched section is authoritative even when extraction fails.
	text := "FINAL RANKING:\n1. response b\n2. response a"

	assert.Empty(t, ParseRanking(text))
}

func TestParseRanking_FallbackFirstAppearance(t *testing.T) {
	text := "I think Response B is strongest, then Response A. Response B clearly beats Response C."

	assert.Equal(t, []string{"Response B", "Response A", "Response C"}, ParseRanking(text))
}

func TestParseRanking_NoLabels(t *testing.T) {
	assert.Empty(t, ParseRanking("no ranking to see here"))
}
