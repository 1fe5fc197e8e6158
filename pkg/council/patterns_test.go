package council

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPatterns(t *testing.T) {
	patterns := ListPatterns()

	require.Len(t, patterns, 9)
	assert.Equal(t, "deliberation", patterns[0].ID)
	assert.Equal(t, "expert_panel", patterns[8].ID)
	for _, p := range patterns {
		assert.NotEmpty(t, p.Name, p.ID)
		assert.NotEmpty(t, p.Description, p.ID)
		assert.NotEmpty(t, p.Stages, p.ID)
		assert.NotEmpty(t, p.RecommendedFor, p.ID)
	}
}

func TestCouncil_RunPattern_Unknown(t *testing.T) {
	fake := &fakeQuerier{handler: func(provider, prompt string) (string, error) {
		return "", nil
	}}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "quantum_vote", "q", nil, 0, 0)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPattern)
	assert.Equal(t, "Unknown pattern: quantum_vote", err.Error())
}

func TestCouncil_RunPattern_Deliberation(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			switch stageOf(prompt) {
			case "stage1":
				return provider + " answer", nil
			case "stage2":
				return parseableRanking, nil
			case "stage3":
				return "synthesis", nil
			}
			return "", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "deliberation", "q", nil, 0, 0)

	require.NoError(t, err)
	deliberation, ok := result.(*Deliberation)
	require.True(t, ok)
	assert.True(t, deliberation.Success)
	assert.Equal(t, "synthesis", deliberation.Stage3)
}

func TestCouncil_RunPattern_Debate(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Provide an opening argument"):
				return provider + " opening", nil
			case strings.Contains(prompt, "Provide a rebuttal"):
				if provider == "gemini" {
					return "", FailureError("gemini down")
				}
				return provider + " rebuttal", nil
			case strings.Contains(prompt, "As judge of this debate"):
				return "claude wins", nil
			}
			return "", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "debate", "tabs or spaces", nil, 0, 0)

	require.NoError(t, err)
	debate, ok := result.(*DebateResult)
	require.True(t, ok)
	assert.Equal(t, "debate", debate.Pattern)
	assert.Equal(t, "tabs or spaces", debate.Question)

	require.Len(t, debate.Stages, 3)
	assert.Equal(t, "opening_arguments", debate.Stages[0].Stage)
	assert.Len(t, debate.Stages[0].Results, 3)
	assert.Equal(t, "rebuttals", debate.Stages[1].Stage)
	assert.Equal(t, "judgment", debate.Stages[2].Stage)
	require.NotNil(t, debate.Stages[2].Result)

	require.NotNil(t, debate.FinalJudgment)
	assert.Equal(t, "claude wins", *debate.FinalJudgment)

	gemini := debate.Stages[1].Results["gemini"]
	assert.Nil(t, gemini.Content)
	require.NotNil(t, gemini.Error)
	assert.Equal(t, "gemini down", *gemini.Error)

	// The failed rebuttal renders as "No response" in the judge's transcript,
	// and the judge is the lead model.
	var judgeCall fakeCall
	for _, call := range fake.recorded() {
		if strings.Contains(call.Prompt, "As judge of this debate") {
			judgeCall = call
		}
	}
	assert.Equal(t, "claude", judgeCall.Provider)
	assert.Contains(t, judgeCall.Prompt, "[claude]: claude opening")
	assert.Contains(t, judgeCall.Prompt, "[gemini]: No response")
}

func TestCouncil_RunPattern_DevilsAdvocate(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Provide your best answer"):
				return provider + " best answer", nil
			case strings.Contains(prompt, "As devil's advocate"):
				return "all of you are wrong", nil
			case strings.Contains(prompt, "Your answer was challenged"):
				return provider + " defense", nil
			}
			return "", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "devils_advocate", "q", nil, 0, 0)

	require.NoError(t, err)
	da, ok := result.(*DevilsAdvocateResult)
	require.True(t, ok)

	// The last model challenges, the rest form the panel.
	assert.Len(t, da.InitialConsensus, 2)
	assert.Contains(t, da.InitialConsensus, "claude")
	assert.Contains(t, da.InitialConsensus, "codex")
	require.NotNil(t, da.Challenge.Content)
	assert.Equal(t, "all of you are wrong", *da.Challenge.Content)
	assert.Len(t, da.Defense, 2)

	var challengeCall fakeCall
	for _, call := range fake.recorded() {
		if strings.Contains(call.Prompt, "As devil's advocate") {
			challengeCall = call
		}
	}
	assert.Equal(t, "gemini", challengeCall.Provider)
	assert.Contains(t, challengeCall.Prompt, "[claude]: claude best answer")
}

func TestCouncil_RunPattern_Socratic(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Provide an initial answer"):
				return provider + " initial", nil
			case strings.Contains(prompt, "Generate probing questions"):
				return "why though?", nil
			case strings.Contains(prompt, "refined, deeper response"):
				return provider + " refined", nil
			}
			return "", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "socratic", "q", nil, 1, 0)

	require.NoError(t, err)
	soc, ok := result.(*SocraticResult)
	require.True(t, ok)
	assert.Equal(t, 1, soc.Rounds)
	require.Len(t, soc.Stages, 3)
	assert.Equal(t, "initial", soc.Stages[0].Stage)
	assert.Equal(t, "questions_round_1", soc.Stages[1].Stage)
	require.NotNil(t, soc.Stages[1].Result)
	assert.Equal(t, "refinement_round_1", soc.Stages[2].Stage)
	assert.Len(t, soc.Stages[2].Results, 3)

	// Zero rounds takes the default of two.
	result, err = council.RunPattern(context.Background(), "socratic", "q", nil, 0, 0)
	require.NoError(t, err)
	soc = result.(*SocraticResult)
	assert.Equal(t, 2, soc.Rounds)
	assert.Len(t, soc.Stages, 5)
}

func TestCouncil_RunPattern_RedTeam_ProposalFallback(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Describe the proposal"):
				return "", FailureError("no proposal")
			case strings.Contains(prompt, "Red Team Analysis of"):
				return provider + " attack", nil
			case strings.Contains(prompt, "prioritized recommendations"):
				return "fix everything", nil
			}
			return "", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "red_team", "ship on friday", nil, 0, 0)

	require.NoError(t, err)
	rt, ok := result.(*RedTeamResult)
	require.True(t, ok)
	assert.Nil(t, rt.Proposal.Content)
	require.NotNil(t, rt.Proposal.Error)
	assert.Len(t, rt.Attacks, 3)
	require.NotNil(t, rt.Recommendations.Content)
	assert.Equal(t, "fix everything", *rt.Recommendations.Content)

	// With no proposal the attacks target the question itself.
	var attackPrompt string
	for _, call := range fake.recorded() {
		if strings.Contains(call.Prompt, "Red Team Analysis of") {
			attackPrompt = call.Prompt
			break
		}
	}
	assert.Contains(t, attackPrompt, "ship on friday")
}

func TestCouncil_RunPattern_TreeOfThought(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Generate a unique approach"):
				return provider + " branch", nil
			case strings.Contains(prompt, "Score each branch"):
				return "branch 1 wins", nil
			}
			return "", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "tree_of_thought", "q", nil, 0, 2)

	require.NoError(t, err)
	tree, ok := result.(*TreeOfThoughtResult)
	require.True(t, ok)
	// The branch budget caps how many models explore.
	assert.Len(t, tree.Branches, 2)
	assert.Contains(t, tree.Branches, "claude")
	assert.Contains(t, tree.Branches, "codex")
	require.NotNil(t, tree.Evaluation.Content)

	var evalPrompt string
	for _, call := range fake.recorded() {
		if strings.Contains(call.Prompt, "Score each branch") {
			evalPrompt = call.Prompt
		}
	}
	assert.Contains(t, evalPrompt, "Branch 1 [claude]: claude branch")
	assert.Contains(t, evalPrompt, "Branch 2 [codex]: codex branch")
}

func TestCouncil_RunPattern_SelfConsistency(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			if strings.Contains(prompt, "Analyze consistency") {
				return "consistent enough", nil
			}
			return provider + " attempt", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "self_consistency", "q", []string{"claude", "codex"}, 2, 0)

	require.NoError(t, err)
	sc, ok := result.(*SelfConsistencyResult)
	require.True(t, ok)
	require.Len(t, sc.Attempts, 4)
	assert.Equal(t, AttemptRecord{Model: "claude", Attempt: 1, Response: "claude attempt"}, sc.Attempts[0])
	assert.Equal(t, AttemptRecord{Model: "claude", Attempt: 2, Response: "claude attempt"}, sc.Attempts[1])
	assert.Equal(t, AttemptRecord{Model: "codex", Attempt: 1, Response: "codex attempt"}, sc.Attempts[2])
	require.NotNil(t, sc.Analysis.Content)
	assert.Equal(t, "consistent enough", *sc.Analysis.Content)
}

func TestCouncil_RunPattern_RoundRobin(t *testing.T) {
	var mu sync.Mutex
	n := 0
	fake := &fakeQuerier{}
	fake.handler = func(provider, prompt string) (string, error) {
		if provider == "codex" {
			return "", FailureError("codex out")
		}
		mu.Lock()
		n++
		v := n
		mu.Unlock()
		return fmt.Sprintf("%s v%d", provider, v), nil
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "round_robin", "q", []string{"claude", "codex"}, 2, 0)

	require.NoError(t, err)
	rr, ok := result.(*RoundRobinResult)
	require.True(t, ok)
	require.Len(t, rr.Stages, 4)
	assert.Equal(t, RoundRobinStage{Round: 1, Model: "claude", Response: "claude v1"}, rr.Stages[0])
	// A failed turn keeps the previous answer.
	assert.Equal(t, RoundRobinStage{Round: 1, Model: "codex", Response: "claude v1"}, rr.Stages[1])
	assert.Equal(t, RoundRobinStage{Round: 2, Model: "claude", Response: "claude v2"}, rr.Stages[2])
	assert.Equal(t, RoundRobinStage{Round: 2, Model: "codex", Response: "claude v2"}, rr.Stages[3])
	assert.Equal(t, "claude v2", rr.FinalAnswer)

	// Later turns receive the current answer to refine.
	var refinePrompt string
	for _, call := range fake.recorded() {
		if call.Provider == "claude" && strings.Contains(call.Prompt, "Previous answer to improve") {
			refinePrompt = call.Prompt
		}
	}
	assert.Contains(t, refinePrompt, "claude v1")
}

func TestCouncil_RunPattern_ExpertPanel(t *testing.T) {
	fake := &fakeQuerier{
		handler: func(provider, prompt string) (string, error) {
			if strings.Contains(prompt, "Integrate these expert perspectives") {
				return "integrated", nil
			}
			return provider + " expert view", nil
		},
	}
	council := NewCouncil(fake, testConfig())

	result, err := council.RunPattern(context.Background(), "expert_panel", "q", []string{"claude", "codex"}, 0, 0)

	require.NoError(t, err)
	ep, ok := result.(*ExpertPanelResult)
	require.True(t, ok)
	// Roles truncate to the panel size.
	require.Len(t, ep.Experts, 2)
	assert.Contains(t, ep.Experts, "claude (Technical Expert (focus on implementation details))")
	assert.Contains(t, ep.Experts, "codex (Business Expert (focus on practical applications))")
	require.NotNil(t, ep.Integration.Content)
	assert.Equal(t, "integrated", *ep.Integration.Content)
}
