package council

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// PatternInfo describes one deliberation pattern.
type PatternInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Stages         []string `json:"stages"`
	RecommendedFor []string `json:"recommended_for"`
}

// patternCatalog lists every supported pattern in presentation order.
var patternCatalog = []PatternInfo{
	{
		ID:             "deliberation",
		Name:           "Standard Deliberation",
		Description:    "3-stage process: respond, rank, synthesize",
		Stages:         []string{"collect_responses", "peer_ranking", "synthesis"},
		RecommendedFor: []string{"general questions", "balanced analysis", "consensus building"},
	},
	{
		ID:             "debate",
		Name:           "Adversarial Debate",
		Description:    "Models argue different positions, chairman judges",
		Stages:         []string{"assign_positions", "opening_arguments", "rebuttals", "judgment"},
		RecommendedFor: []string{"controversial topics", "exploring tradeoffs", "decision making"},
	},
	{
		ID:             "devils_advocate",
		Name:           "Devil's Advocate",
		Description:    "One model challenges the consensus of others",
		Stages:         []string{"initial_consensus", "challenge", "defense", "resolution"},
		RecommendedFor: []string{"testing assumptions", "finding flaws", "stress testing ideas"},
	},
	{
		ID:             "socratic",
		Name:           "Socratic Dialogue",
		Description:    "Progressive questioning to deepen understanding",
		Stages:         []string{"initial_response", "questioning", "refinement", "synthesis"},
		RecommendedFor: []string{"complex topics", "educational content", "deep exploration"},
	},
	{
		ID:             "red_team",
		Name:           "Red Team Analysis",
		Description:    "Focused on finding vulnerabilities and issues",
		Stages:         []string{"proposal", "attack", "defense", "recommendations"},
		RecommendedFor: []string{"security analysis", "risk assessment", "code review"},
	},
	{
		ID:             "tree_of_thought",
		Name:           "Tree of Thought",
		Description:    "Explore multiple solution branches in parallel",
		Stages:         []string{"branch_generation", "evaluation", "pruning", "selection"},
		RecommendedFor: []string{"problem solving", "creative tasks", "optimization"},
	},
	{
		ID:             "self_consistency",
		Name:           "Self-Consistency",
		Description:    "Multiple independent attempts, aggregate results",
		Stages:         []string{"parallel_attempts", "consistency_check", "majority_vote"},
		RecommendedFor: []string{"factual questions", "calculations", "verification"},
	},
	{
		ID:             "round_robin",
		Name:           "Round Robin",
		Description:    "Sequential refinement by each model",
		Stages:         []string{"initial", "refinement_rounds", "final"},
		RecommendedFor: []string{"iterative improvement", "collaborative writing", "code refinement"},
	},
	{
		ID:             "expert_panel",
		Name:           "Expert Panel",
		Description:    "Models take domain-specific expert roles",
		Stages:         []string{"role_assignment", "expert_opinions", "integration"},
		RecommendedFor: []string{"multi-disciplinary topics", "comprehensive analysis", "technical decisions"},
	},
}

// ListPatterns returns metadata for all deliberation patterns.
func ListPatterns() []PatternInfo {
	return patternCatalog
}

// ProviderResult is one provider's outcome in its wire shape. Exactly one of
// Content or Error is set.
type ProviderResult struct {
	Content *string `json:"content"`
	Error   *string `json:"error"`
}

// StageRecord is one named stage of a pattern run. Results holds a fan-out
// stage, Result a single-provider stage.
type StageRecord struct {
	Stage   string                    `json:"stage"`
	Results map[string]ProviderResult `json:"results,omitempty"`
	Result  *ProviderResult           `json:"result,omitempty"`
}

// DebateResult is the adversarial debate record.
type DebateResult struct {
	Pattern       string        `json:"pattern"`
	Question      string        `json:"question"`
	Stages        []StageRecord `json:"stages"`
	FinalJudgment *string       `json:"final_judgment"`
}

// DevilsAdvocateResult records a consensus, its challenge, and the defense.
type DevilsAdvocateResult struct {
	Pattern          string                    `json:"pattern"`
	Question         string                    `json:"question"`
	InitialConsensus map[string]ProviderResult `json:"initial_consensus"`
	Challenge        ProviderResult            `json:"challenge"`
	Defense          map[string]ProviderResult `json:"defense"`
}

// SocraticResult records the questioning rounds of a socratic dialogue.
type SocraticResult struct {
	Pattern  string        `json:"pattern"`
	Question string        `json:"question"`
	Rounds   int           `json:"rounds"`
	Stages   []StageRecord `json:"stages"`
}

// RedTeamResult records a proposal, the attacks on it, and recommendations.
type RedTeamResult struct {
	Pattern         string                    `json:"pattern"`
	Question        string                    `json:"question"`
	Proposal        ProviderResult            `json:"proposal"`
	Attacks         map[string]ProviderResult `json:"attacks"`
	Recommendations ProviderResult            `json:"recommendations"`
}

// TreeOfThoughtResult records parallel solution branches and their
// evaluation.
type TreeOfThoughtResult struct {
	Pattern    string                    `json:"pattern"`
	Question   string                    `json:"question"`
	Branches   map[string]ProviderResult `json:"branches"`
	Evaluation ProviderResult            `json:"evaluation"`
}

// AttemptRecord is one model's attempt in a self-consistency run.
type AttemptRecord struct {
	Model    string `json:"model"`
	Attempt  int    `json:"attempt"`
	Response string `json:"response"`
}

// SelfConsistencyResult records repeated attempts and their analysis.
type SelfConsistencyResult struct {
	Pattern  string          `json:"pattern"`
	Question string          `json:"question"`
	Attempts []AttemptRecord `json:"attempts"`
	Analysis ProviderResult  `json:"analysis"`
}

// RoundRobinStage is one model's turn in a round-robin refinement.
type RoundRobinStage struct {
	Round    int    `json:"round"`
	Model    string `json:"model"`
	Response string `json:"response"`
}

// RoundRobinResult records the sequential refinement of an answer.
type RoundRobinResult struct {
	Pattern     string            `json:"pattern"`
	Question    string            `json:"question"`
	Rounds      int               `json:"rounds"`
	Stages      []RoundRobinStage `json:"stages"`
	FinalAnswer string            `json:"final_answer"`
}

// ExpertPanelResult records role-specific expert opinions and their
// integration.
type ExpertPanelResult struct {
	Pattern     string                    `json:"pattern"`
	Question    string                    `json:"question"`
	Experts     map[string]ProviderResult `json:"experts"`
	Integration ProviderResult            `json:"integration"`
}

// expertRoles are assigned to panel members in order, truncated to the
// panel size.
var expertRoles = []string{
	"Technical Expert (focus on implementation details)",
	"Business Expert (focus on practical applications)",
	"Critical Analyst (focus on risks and concerns)",
	"Innovation Expert (focus on creative possibilities)",
}

// RunPattern executes one deliberation pattern. Nil models fall back to the
// configured council; rounds and branches below 1 take their defaults of 2
// and 3.
func (c *Council) RunPattern(ctx context.Context, patternID, question string, models []string, rounds, branches int) (any, error) {
	known := false
	for _, p := range patternCatalog {
		if p.ID == patternID {
			known = true
			break
		}
	}
	if !known {
		return nil, UnknownPatternError("Unknown pattern: %s", patternID)
	}

	if len(models) == 0 {
		models = c.cfg.Models
	}
	if len(models) == 0 {
		return nil, UnavailableError("No council models configured")
	}
	if rounds < 1 {
		rounds = 2
	}
	if branches < 1 {
		branches = 3
	}

	slog.Info("Running pattern", "pattern", patternID, "models", len(models))

	switch patternID {
	case "deliberation":
		return c.DeliberateWith(ctx, question, models, ""), nil
	case "debate":
		return c.runDebate(ctx, question, models), nil
	case "devils_advocate":
		return c.runDevilsAdvocate(ctx, question, models), nil
	case "socratic":
		return c.runSocratic(ctx, question, models, rounds), nil
	case "red_team":
		return c.runRedTeam(ctx, question, models), nil
	case "tree_of_thought":
		return c.runTreeOfThought(ctx, question, models, branches), nil
	case "self_consistency":
		return c.runSelfConsistency(ctx, question, models, rounds), nil
	case "round_robin":
		return c.runRoundRobin(ctx, question, models, rounds), nil
	case "expert_panel":
		return c.runExpertPanel(ctx, question, models), nil
	}
	return nil, UnknownPatternError("Pattern %s not implemented", patternID)
}

// runDebate collects opening arguments and rebuttals from every model, then
// has the lead model judge the exchange.
func (c *Council) runDebate(ctx context.Context, question string, models []string) *DebateResult {
	stages := []StageRecord{}

	openings := queryAll(ctx, c.querier, models, fmt.Sprintf(`Topic: %s

Provide an opening argument. Be persuasive and well-reasoned.`, question), c.cfg.ParallelQueries)
	stages = append(stages, StageRecord{Stage: "opening_arguments", Results: outcomesToResults(models, openings)})

	openingsText := formatOutcomes(models, openings, "\n\n", "No response")

	rebuttals := queryAll(ctx, c.querier, models, fmt.Sprintf(`Topic: %s

Opening arguments:
%s

Provide a rebuttal addressing the other arguments.`, question, openingsText), c.cfg.ParallelQueries)
	stages = append(stages, StageRecord{Stage: "rebuttals", Results: outcomesToResults(models, rebuttals)})

	fullDebate := openingsText + "\n\nRebuttals:\n" + formatOutcomes(models, rebuttals, "\n\n", "No response")

	judgmentContent, judgmentErr := c.querier.Query(ctx, models[0], fmt.Sprintf(`As judge of this debate on "%s":

%s

Provide your judgment: Which position is most convincing and why? What key points decided this?`, question, fullDebate), 0)
	judgment := toProviderResult(Outcome{Content: judgmentContent, Err: judgmentErr})
	stages = append(stages, StageRecord{Stage: "judgment", Result: &judgment})

	return &DebateResult{
		Pattern:       "debate",
		Question:      question,
		Stages:        stages,
		FinalJudgment: judgment.Content,
	}
}

// runDevilsAdvocate has all but the last model answer, the last model attack
// the answers, and the panel defend or revise.
func (c *Council) runDevilsAdvocate(ctx context.Context, question string, models []string) *DevilsAdvocateResult {
	panel := models
	challenger := models[0]
	if len(models) > 1 {
		panel = models[:len(models)-1]
		challenger = models[len(models)-1]
	}

	consensus := queryAll(ctx, c.querier, panel, fmt.Sprintf(`Question: %s

Provide your best answer.`, question), c.cfg.ParallelQueries)
	consensusText := formatOutcomes(panel, consensus, "\n\n", "")

	challengeContent, challengeErr := c.querier.Query(ctx, challenger, fmt.Sprintf(`The following answers have been given to "%s":

%s

As devil's advocate, challenge these answers. Find flaws, gaps, or alternative perspectives.`, question, consensusText), 0)
	challenge := Outcome{Content: challengeContent, Err: challengeErr}

	defense := queryAll(ctx, c.querier, panel, fmt.Sprintf(`Your answer was challenged:

%s

Defend your position or update your answer based on valid criticisms.`, challenge.Content), c.cfg.ParallelQueries)

	return &DevilsAdvocateResult{
		Pattern:          "devils_advocate",
		Question:         question,
		InitialConsensus: outcomesToResults(panel, consensus),
		Challenge:        toProviderResult(challenge),
		Defense:          outcomesToResults(panel, defense),
	}
}

// runSocratic alternates probing questions from the lead model with refined
// answers from the full panel.
func (c *Council) runSocratic(ctx context.Context, question string, models []string, rounds int) *SocraticResult {
	stages := []StageRecord{}

	initial := queryAll(ctx, c.querier, models, fmt.Sprintf(`Question: %s

Provide an initial answer.`, question), c.cfg.ParallelQueries)
	stages = append(stages, StageRecord{Stage: "initial", Results: outcomesToResults(models, initial)})

	currentContext := formatOutcomes(models, initial, "\n", "")
	questioner := models[0]

	for i := 1; i <= rounds; i++ {
		questionsContent, questionsErr := c.querier.Query(ctx, questioner, fmt.Sprintf(`Based on these responses about "%s":

%s

Generate probing questions to deepen understanding or expose gaps.`, question, currentContext), 0)
		questions := toProviderResult(Outcome{Content: questionsContent, Err: questionsErr})
		stages = append(stages, StageRecord{Stage: fmt.Sprintf("questions_round_%d", i), Result: &questions})

		refined := queryAll(ctx, c.querier, models, fmt.Sprintf(`Original question: %s

Previous responses:
%s

Follow-up questions:
%s

Provide a refined, deeper response.`, question, currentContext, questionsContent), c.cfg.ParallelQueries)
		stages = append(stages, StageRecord{Stage: fmt.Sprintf("refinement_round_%d", i), Results: outcomesToResults(models, refined)})

		currentContext = formatOutcomes(models, refined, "\n", "")
	}

	return &SocraticResult{
		Pattern:  "socratic",
		Question: question,
		Rounds:   rounds,
		Stages:   stages,
	}
}

// runRedTeam has the lead model describe the proposal, every model attack
// it, and the lead model turn the attacks into recommendations. When the
// proposal query fails the attacks target the raw question.
func (c *Council) runRedTeam(ctx context.Context, question string, models []string) *RedTeamResult {
	proposalContent, proposalErr := c.querier.Query(ctx, models[0], fmt.Sprintf(`Proposal to analyze: %s

Describe the proposal in detail.`, question), 0)
	proposal := Outcome{Content: proposalContent, Err: proposalErr}

	target := question
	if proposal.Err == nil {
		target = proposal.Content
	}

	attacks := queryAll(ctx, c.querier, models, fmt.Sprintf(`Red Team Analysis of:

%s

Identify all potential vulnerabilities, risks, and failure modes. Be thorough and adversarial.`, target), c.cfg.ParallelQueries)
	attacksText := formatOutcomes(models, attacks, "\n", "")

	recommendationsContent, recommendationsErr := c.querier.Query(ctx, models[0], fmt.Sprintf(`Based on red team analysis:

%s

Provide prioritized recommendations to address the identified issues.`, attacksText), 0)

	return &RedTeamResult{
		Pattern:         "red_team",
		Question:        question,
		Proposal:        toProviderResult(proposal),
		Attacks:         outcomesToResults(models, attacks),
		Recommendations: toProviderResult(Outcome{Content: recommendationsContent, Err: recommendationsErr}),
	}
}

// runTreeOfThought generates one solution branch per model, capped at the
// branch budget, and has the lead model evaluate them.
func (c *Council) runTreeOfThought(ctx context.Context, question string, models []string, branches int) *TreeOfThoughtResult {
	branchModels := models
	if branches < len(models) {
		branchModels = models[:branches]
	}

	branchResults := queryAll(ctx, c.querier, branchModels, fmt.Sprintf(`Problem: %s

Generate a unique approach or solution. Think creatively and explore different angles.`, question), c.cfg.ParallelQueries)

	lines := make([]string, 0, len(branchModels))
	for i, model := range branchModels {
		lines = append(lines, fmt.Sprintf("Branch %d [%s]: %s", i+1, model, branchResults[model].Content))
	}

	evaluationContent, evaluationErr := c.querier.Query(ctx, models[0], fmt.Sprintf(`Evaluate these solution approaches:

%s

Score each branch (1-10) on feasibility, effectiveness, and innovation. Recommend the best path.`, strings.Join(lines, "\n")), 0)

	return &TreeOfThoughtResult{
		Pattern:    "tree_of_thought",
		Question:   question,
		Branches:   outcomesToResults(branchModels, branchResults),
		Evaluation: toProviderResult(Outcome{Content: evaluationContent, Err: evaluationErr}),
	}
}

// runSelfConsistency queries each model repeatedly in sequence, then has the
// lead model judge which answer holds up across attempts.
func (c *Council) runSelfConsistency(ctx context.Context, question string, models []string, attempts int) *SelfConsistencyResult {
	prompt := fmt.Sprintf(`Question: %s

Provide your answer. Be precise and accurate.`, question)

	all := []AttemptRecord{}
	for _, model := range models {
		for i := 1; i <= attempts; i++ {
			content, err := c.querier.Query(ctx, model, prompt, 0)
			if err != nil {
				content = ""
			}
			all = append(all, AttemptRecord{Model: model, Attempt: i, Response: content})
		}
	}

	lines := make([]string, len(all))
	for i, a := range all {
		lines[i] = fmt.Sprintf("[%s attempt %d]: %s", a.Model, a.Attempt, a.Response)
	}

	analysisContent, analysisErr := c.querier.Query(ctx, models[0], fmt.Sprintf(`Multiple attempts to answer "%s":

%s

Analyze consistency. What answer appears most reliable? Note any discrepancies.`, question, strings.Join(lines, "\n")), 0)

	return &SelfConsistencyResult{
		Pattern:  "self_consistency",
		Question: question,
		Attempts: all,
		Analysis: toProviderResult(Outcome{Content: analysisContent, Err: analysisErr}),
	}
}

// runRoundRobin passes one evolving answer through every model in turn. A
// failed query leaves the previous answer standing.
func (c *Council) runRoundRobin(ctx context.Context, question string, models []string, rounds int) *RoundRobinResult {
	stages := []RoundRobinStage{}
	current := ""

	for round := 1; round <= rounds; round++ {
		for _, model := range models {
			prompt := fmt.Sprintf("Question: %s\n\n", question)
			if current != "" {
				prompt += fmt.Sprintf("Previous answer to improve:\n%s\n\nRefine and improve this answer.", current)
			} else {
				prompt += "Provide an initial answer."
			}

			content, err := c.querier.Query(ctx, model, prompt, 0)
			if err == nil && content != "" {
				current = content
			}
			stages = append(stages, RoundRobinStage{Round: round, Model: model, Response: current})
		}
	}

	return &RoundRobinResult{
		Pattern:     "round_robin",
		Question:    question,
		Rounds:      rounds,
		Stages:      stages,
		FinalAnswer: current,
	}
}

// runExpertPanel assigns each model a domain role, collects their opinions
// in turn, and has the lead model integrate them.
func (c *Council) runExpertPanel(ctx context.Context, question string, models []string) *ExpertPanelResult {
	roles := expertRoles
	if len(models) < len(roles) {
		roles = roles[:len(models)]
	}

	experts := make(map[string]ProviderResult, len(roles))
	texts := make([]string, 0, len(roles))
	for i, role := range roles {
		model := models[i]
		content, err := c.querier.Query(ctx, model, fmt.Sprintf(`As a %s, analyze:

%s

Provide your expert perspective from your specific domain.`, role, question), 0)
		out := Outcome{Content: content, Err: err}
		key := fmt.Sprintf("%s (%s)", model, role)
		experts[key] = toProviderResult(out)
		texts = append(texts, fmt.Sprintf("[%s]: %s", key, out.Content))
	}

	integrationContent, integrationErr := c.querier.Query(ctx, models[0], fmt.Sprintf(`Expert panel opinions on "%s":

%s

Integrate these expert perspectives into a comprehensive answer.`, question, strings.Join(texts, "\n")), 0)

	return &ExpertPanelResult{
		Pattern:     "expert_panel",
		Question:    question,
		Experts:     experts,
		Integration: toProviderResult(Outcome{Content: integrationContent, Err: integrationErr}),
	}
}

// toProviderResult converts an outcome to its wire shape. Failures carry a
// null content, successes a null error.
func toProviderResult(out Outcome) ProviderResult {
	if out.Err != nil {
		msg := out.Err.Error()
		return ProviderResult{Error: &msg}
	}
	content := out.Content
	return ProviderResult{Content: &content}
}

// outcomesToResults converts a fan-out round to wire shapes keyed by
// provider.
func outcomesToResults(providers []string, outcomes map[string]Outcome) map[string]ProviderResult {
	results := make(map[string]ProviderResult, len(providers))
	for _, p := range providers {
		results[p] = toProviderResult(outcomes[p])
	}
	return results
}

// formatOutcomes renders "[provider]: content" lines in provider order.
// Failed providers render the fallback text.
func formatOutcomes(providers []string, outcomes map[string]Outcome, sep, fallback string) string {
	lines := make([]string, 0, len(providers))
	for _, p := range providers {
		out := outcomes[p]
		content := out.Content
		if out.Err != nil {
			content = fallback
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", p, content))
	}
	return strings.Join(lines, sep)
}
