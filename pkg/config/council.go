package config

import (
	"path/filepath"
	"time"
)

// CouncilConfig configures the deliberation council. The provider list,
// chairman, and timeouts are fixed for the process's lifetime.
type CouncilConfig struct {
	// DataDir holds the conversations directory.
	DataDir string

	// ProviderMode selects how providers are queried. Only "cli" is
	// supported.
	ProviderMode string

	// Models are the council members, in query order.
	Models []string

	// Chairman synthesizes the final answer in stage 3.
	Chairman string

	// Timeouts bounds each provider subprocess.
	Timeouts map[string]time.Duration

	// MaxRankingRetries re-queries an evaluator whose ranking fails to
	// parse, before recording an empty ranking.
	MaxRankingRetries int

	// ParallelQueries fans stage 1 and stage 2 out concurrently.
	ParallelQueries bool

	// HTTPAddr enables the ops server when non-empty.
	HTTPAddr string
}

// LoadCouncil reads the council configuration from the environment.
func LoadCouncil() CouncilConfig {
	return CouncilConfig{
		DataDir:      getEnvOrDefault("LLM_COUNCIL_DATA_DIR", defaultUnderHome(".llm-council")),
		ProviderMode: getEnvOrDefault("PROVIDER_MODE", "cli"),
		Models:       splitCSV(getEnvOrDefault("CLI_COUNCIL_MODELS", "claude,codex,gemini")),
		Chairman:     getEnvOrDefault("CLI_CHAIRMAN_MODEL", "codex"),
		Timeouts: map[string]time.Duration{
			"claude": getEnvSeconds("CLAUDE_TIMEOUT", 120*time.Second),
			"codex":  getEnvSeconds("CODEX_TIMEOUT", 120*time.Second),
			"gemini": getEnvSeconds("GEMINI_TIMEOUT", 120*time.Second),
		},
		MaxRankingRetries: getEnvInt("MAX_RANKING_RETRIES", 2),
		ParallelQueries:   getEnvBool("PARALLEL_QUERIES", true),
		HTTPAddr:          getEnvOrDefault("COUNCIL_HTTP_ADDR", ""),
	}
}

// ConversationsDir is where deliberation transcripts are saved.
func (c CouncilConfig) ConversationsDir() string {
	return filepath.Join(c.DataDir, "conversations")
}

// TimeoutFor returns the provider's configured timeout, defaulting to 120s
// for providers without an explicit entry.
func (c CouncilConfig) TimeoutFor(provider string) time.Duration {
	if t, ok := c.Timeouts[provider]; ok {
		return t
	}
	return 120 * time.Second
}

// Snapshot is the active-configuration report returned by the get-providers
// tool. Timeouts are in seconds.
type Snapshot struct {
	ProviderMode    string           `json:"provider_mode"`
	CLIModels       []string         `json:"cli_models"`
	CLIChairman     string           `json:"cli_chairman"`
	Timeouts        map[string]int64 `json:"timeouts"`
	ParallelQueries bool             `json:"parallel_queries"`
}

// Snapshot reports the active configuration.
func (c CouncilConfig) Snapshot() Snapshot {
	timeouts := make(map[string]int64, len(c.Timeouts))
	for provider, d := range c.Timeouts {
		timeouts[provider] = int64(d / time.Second)
	}
	return Snapshot{
		ProviderMode:    c.ProviderMode,
		CLIModels:       c.Models,
		CLIChairman:     c.Chairman,
		Timeouts:        timeouts,
		ParallelQueries: c.ParallelQueries,
	}
}
