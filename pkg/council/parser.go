package council

import "regexp"

var (
	// finalRankingPattern matches the "FINAL RANKING:" section evaluators are
	// instructed to emit, capturing its numbered lines.
	finalRankingPattern = regexp.MustCompile(`(?i)FINAL RANKING[:\s]*\n((?:\d+[.)]\s*Response\s+[A-Z].*\n?)+)`)

	// responseLabelPattern extracts individual "Response X" labels.
	responseLabelPattern = regexp.MustCompile(`Response\s+([A-Z])`)
)

// ParseRanking extracts an ordered list of "Response X" labels from an
// evaluator's free-form text. When an explicit FINAL RANKING section is
// present its numbered lines are authoritative; otherwise every label
// mention in the text counts once, in order of first appearance.
func ParseRanking(text string) []string {
	if m := finalRankingPattern.FindStringSubmatch(text); m != nil {
		labels := []string{}
		for _, lm := range responseLabelPattern.FindAllStringSubmatch(m[1], -1) {
			labels = append(labels, "Response "+lm[1])
		}
		return labels
	}

	seen := map[string]bool{}
	labels := []string{}
	for _, lm := range responseLabelPattern.FindAllStringSubmatch(text, -1) {
		label := "Response " + lm[1]
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}
