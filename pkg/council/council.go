// Package council implements the three-stage multi-provider deliberation
// protocol: collect independent responses, rank them anonymously through the
// same providers, and have a chairman synthesize the final answer. Nine
// named deliberation patterns build on the same provider fan-out.
package council

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/agentfleet/substrate/pkg/config"
)

const stage1PromptFmt = `Please provide a thorough, well-reasoned answer to the following question:

%s

Focus on accuracy, clarity, and completeness in your response.`

const rankingPromptFmt = `You are evaluating responses to this question:

%s

Here are the anonymized responses:

%s

Please evaluate each response for:
1. Accuracy and correctness
2. Completeness and depth
3. Clarity and organization
4. Practical usefulness

After your evaluation, provide your final ranking in this exact format:

FINAL RANKING:
1. Response X
2. Response Y
3. Response Z

(Replace X, Y, Z with the actual labels, ranked from best to worst)`

const synthesisPromptFmt = `You are the chairman synthesizing a final answer.

Original question: %s

The council has provided and ranked these responses (ordered by peer-ranking quality):

%s

Aggregate Rankings:
%s

Please synthesize a comprehensive final answer that:
1. Incorporates the best insights from the highest-ranked responses
2. Addresses any important points from lower-ranked responses
3. Resolves any conflicts between responses
4. Provides a clear, authoritative answer

Your synthesized response:`

// modelResponse pairs a model with its stage-1 answer. Collection order is
// preserved so anonymous label assignment is deterministic.
type modelResponse struct {
	Model   string
	Content string
}

// Stage2Result carries the peer-ranking output of a deliberation.
type Stage2Result struct {
	Rankings          []Ranking         `json:"rankings"`
	LabelToModel      map[string]string `json:"label_to_model"`
	AggregateRankings []AggregateRank   `json:"aggregate_rankings"`
}

// Metadata summarizes a completed deliberation run.
type Metadata struct {
	CouncilModels []string `json:"council_models"`
	ChairmanModel string   `json:"chairman_model"`
	ResponseCount int      `json:"response_count"`
	RankingCount  int      `json:"ranking_count"`
}

// Deliberation is the full record of a three-stage council run. Failures are
// reported in-band through Success and Error.
type Deliberation struct {
	Success        bool              `json:"success"`
	Error          string            `json:"error,omitempty"`
	Stage1         map[string]string `json:"stage1"`
	Stage2         Stage2Result      `json:"stage2"`
	Stage3         string            `json:"stage3"`
	Metadata       *Metadata         `json:"metadata,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// QuickQueryResult is a single-provider query report.
type QuickQueryResult struct {
	Provider string  `json:"provider"`
	Response *string `json:"response"`
	Error    *string `json:"error"`
}

// CompareEntry is one provider's outcome in a same-prompt comparison.
type CompareEntry struct {
	Response *string `json:"response"`
	Error    *string `json:"error"`
	Length   int     `json:"length"`
}

// Comparison is the result of fanning one prompt out to every installed
// provider.
type Comparison struct {
	Prompt           string                  `json:"prompt"`
	ProvidersQueried []string                `json:"providers_queried"`
	Results          map[string]CompareEntry `json:"results"`
}

// Council orchestrates deliberations over a set of providers.
type Council struct {
	querier Querier
	cfg     config.CouncilConfig
}

// NewCouncil creates the deliberation orchestrator.
func NewCouncil(querier Querier, cfg config.CouncilConfig) *Council {
	if querier == nil {
		panic("querier cannot be nil")
	}
	return &Council{querier: querier, cfg: cfg}
}

// AvailableProviders reports the installed provider CLIs.
func (c *Council) AvailableProviders() []string {
	return c.querier.AvailableProviders()
}

// Deliberate runs the full collect, rank, synthesize protocol with the
// configured council membership.
func (c *Council) Deliberate(ctx context.Context, question string) *Deliberation {
	return c.DeliberateWith(ctx, question, nil, "")
}

// DeliberateWith overrides council membership and chairman for one run. Nil
// models and an empty chairman fall back to the configuration.
func (c *Council) DeliberateWith(ctx context.Context, question string, models []string, chairman string) *Deliberation {
	if len(models) == 0 {
		models = c.cfg.Models
	}
	if chairman == "" {
		chairman = c.cfg.Chairman
	}

	responses := c.collectResponses(ctx, question, models)
	if len(responses) == 0 {
		return &Deliberation{
			Success: false,
			Error:   "No responses collected in Stage 1",
			Stage1:  map[string]string{},
			Stage2: Stage2Result{
				Rankings:          []Ranking{},
				LabelToModel:      map[string]string{},
				AggregateRankings: []AggregateRank{},
			},
		}
	}

	rankings, labelToModel, labelOrder := c.collectRankings(ctx, question, responses, models)
	aggregate := aggregateRankings(rankings, labelOrder, labelToModel)
	finalAnswer := c.synthesize(ctx, question, responses, aggregate, chairman)

	stage1 := make(map[string]string, len(responses))
	for _, r := range responses {
		stage1[r.Model] = r.Content
	}
	return &Deliberation{
		Success: true,
		Stage1:  stage1,
		Stage2: Stage2Result{
			Rankings:          rankings,
			LabelToModel:      labelToModel,
			AggregateRankings: aggregate,
		},
		Stage3: finalAnswer,
		Metadata: &Metadata{
			CouncilModels: models,
			ChairmanModel: chairman,
			ResponseCount: len(responses),
			RankingCount:  len(rankings),
		},
	}
}

// QuickQuery runs one provider with an optional timeout override.
func (c *Council) QuickQuery(ctx context.Context, provider, prompt string, timeout time.Duration) QuickQueryResult {
	result := QuickQueryResult{Provider: provider}
	content, err := c.querier.Query(ctx, provider, prompt, timeout)
	if err != nil {
		msg := err.Error()
		result.Error = &msg
		return result
	}
	result.Response = &content
	return result
}

// CompareProviders sends one prompt to every installed provider at once.
func (c *Council) CompareProviders(ctx context.Context, prompt string) *Comparison {
	available := c.querier.AvailableProviders()
	outcomes := queryAll(ctx, c.querier, available, prompt, true)

	results := make(map[string]CompareEntry, len(outcomes))
	for provider, out := range outcomes {
		entry := CompareEntry{Length: len(out.Content)}
		if out.Err != nil {
			msg := out.Err.Error()
			entry.Error = &msg
		} else {
			content := out.Content
			entry.Response = &content
		}
		results[provider] = entry
	}
	return &Comparison{Prompt: prompt, ProvidersQueried: available, Results: results}
}

// collectResponses is stage 1: every model answers independently. Models
// that fail or return nothing are dropped.
func (c *Council) collectResponses(ctx context.Context, question string, models []string) []modelResponse {
	prompt := fmt.Sprintf(stage1PromptFmt, question)
	slog.Info("Stage 1: querying council", "models", len(models))

	outcomes := queryAll(ctx, c.querier, models, prompt, c.cfg.ParallelQueries)

	responses := []modelResponse{}
	for _, model := range models {
		out := outcomes[model]
		if out.Err != nil || out.Content == "" {
			slog.Warn("Stage 1 model failed", "model", model, "error", out.Err)
			continue
		}
		responses = append(responses, modelResponse{Model: model, Content: out.Content})
	}
	slog.Info("Stage 1 complete", "responses", len(responses), "models", len(models))
	return responses
}

// collectRankings is stage 2: every model ranks the anonymized responses.
// An evaluator whose text yields no parseable ranking is re-queried up to
// MaxRankingRetries times before an empty ranking is recorded.
func (c *Council) collectRankings(ctx context.Context, question string, responses []modelResponse, models []string) ([]Ranking, map[string]string, []string) {
	formatted, labelToModel, labelOrder := anonymizeResponses(responses)
	prompt := fmt.Sprintf(rankingPromptFmt, question, formatted)
	slog.Info("Stage 2: collecting rankings", "evaluators", len(models))

	outcomes := queryAll(ctx, c.querier, models, prompt, c.cfg.ParallelQueries)

	rankings := []Ranking{}
	for _, model := range models {
		out := outcomes[model]
		if out.Err != nil || out.Content == "" {
			slog.Warn("Stage 2 evaluator failed", "evaluator", model, "error", out.Err)
			continue
		}
		raw := out.Content
		parsed := ParseRanking(raw)
		for attempt := 1; len(parsed) == 0 && attempt <= c.cfg.MaxRankingRetries; attempt++ {
			slog.Info("Ranking did not parse, re-querying evaluator", "evaluator", model, "attempt", attempt)
			content, err := c.querier.Query(ctx, model, prompt, 0)
			if err != nil || content == "" {
				continue
			}
			raw = content
			parsed = ParseRanking(content)
		}
		rankings = append(rankings, Ranking{Evaluator: model, RawEvaluation: raw, ParsedRanking: parsed})
	}
	slog.Info("Stage 2 complete", "rankings", len(rankings), "evaluators", len(models))
	return rankings, labelToModel, labelOrder
}

// synthesize is stage 3: the chairman merges the ranked responses into one
// answer. On chairman failure the top-ranked response stands in.
func (c *Council) synthesize(ctx context.Context, question string, responses []modelResponse, aggregate []AggregateRank, chairman string) string {
	byModel := make(map[string]string, len(responses))
	for _, r := range responses {
		byModel[r.Model] = r.Content
	}

	blocks := []string{}
	aggLines := make([]string, len(aggregate))
	for i, agg := range aggregate {
		aggLines[i] = fmt.Sprintf("- %s: avg rank %s", agg.Model, formatRank(agg.AverageRank))
		if content, ok := byModel[agg.Model]; ok {
			blocks = append(blocks, fmt.Sprintf("### %s (Avg Rank: %s)\n\n%s", agg.Model, formatRank(agg.AverageRank), content))
		}
	}

	prompt := fmt.Sprintf(synthesisPromptFmt, question, strings.Join(blocks, "\n"), strings.Join(aggLines, "\n"))
	slog.Info("Stage 3: chairman synthesizing", "chairman", chairman)

	content, err := c.querier.Query(ctx, chairman, prompt, 0)
	if err == nil && content != "" {
		return content
	}
	slog.Error("Chairman synthesis failed", "chairman", chairman, "error", err)

	if len(aggregate) > 0 {
		if top, ok := byModel[aggregate[0].Model]; ok {
			return "[Chairman synthesis failed. Top-ranked response:]\n\n" + top
		}
	}
	return "[Synthesis failed. No valid responses available.]"
}

// anonymizeResponses labels responses in collection order so evaluators
// cannot tell which model wrote which answer. It returns the formatted
// response block, the label-to-model mapping, and the label order.
func anonymizeResponses(responses []modelResponse) (string, map[string]string, []string) {
	labelToModel := make(map[string]string, len(responses))
	labelOrder := make([]string, len(responses))
	parts := make([]string, len(responses))
	for i, r := range responses {
		label := fmt.Sprintf("Response %c", rune('A'+i))
		labelOrder[i] = label
		labelToModel[label] = r.Model
		parts[i] = fmt.Sprintf("### %s\n\n%s\n", label, r.Content)
	}
	return strings.Join(parts, "\n"), labelToModel, labelOrder
}

// formatRank renders an average rank without trailing zeros, "1.5" not
// "1.50".
func formatRank(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
