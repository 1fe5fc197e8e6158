package council

import (
	"math"
	"sort"
)

// Ranking is one evaluator's stage-2 verdict over the anonymized responses.
type Ranking struct {
	Evaluator     string   `json:"evaluator"`
	RawEvaluation string   `json:"raw_evaluation"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// AggregateRank is one response's standing after merging all evaluators.
// Positions are 1-based rank slots the label received.
type AggregateRank struct {
	Model       string  `json:"model"`
	Label       string  `json:"label"`
	AverageRank float64 `json:"average_rank"`
	VoteCount   int     `json:"vote_count"`
	Positions   []int   `json:"positions"`
}

// aggregateRankings merges evaluator verdicts into per-label averages.
// Labels outside labelToModel are hallucinated by an evaluator and ignored.
// Ties on average rank break by first appearance across the evaluators'
// parsed rankings, scanned in evaluator order.
func aggregateRankings(rankings []Ranking, labelOrder []string, labelToModel map[string]string) []AggregateRank {
	positions := make(map[string][]int, len(labelToModel))
	firstSeen := make(map[string]int, len(labelToModel))
	seq := 0

	for _, ranking := range rankings {
		for pos, label := range ranking.ParsedRanking {
			if _, known := labelToModel[label]; !known {
				continue
			}
			positions[label] = append(positions[label], pos+1)
			if _, seen := firstSeen[label]; !seen {
				firstSeen[label] = seq
			}
			seq++
		}
	}

	results := []AggregateRank{}
	for _, label := range labelOrder {
		slots := positions[label]
		if len(slots) == 0 {
			continue
		}
		sum := 0
		for _, p := range slots {
			sum += p
		}
		avg := math.Round(float64(sum)/float64(len(slots))*100) / 100
		results = append(results, AggregateRank{
			Model:       labelToModel[label],
			Label:       label,
			AverageRank: avg,
			VoteCount:   len(slots),
			Positions:   slots,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].AverageRank != results[j].AverageRank {
			return results[i].AverageRank < results[j].AverageRank
		}
		return firstSeen[results[i].Label] < firstSeen[results[j].Label]
	})
	return results
}
