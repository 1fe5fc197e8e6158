package config

import "path/filepath"

// RuntimeConfig configures the agent runtime service.
type RuntimeConfig struct {
	// DataDir holds runtime.db.
	DataDir string

	// HTTPAddr enables the ops server when non-empty.
	HTTPAddr string
}

// LoadRuntime reads the runtime service configuration from the environment.
func LoadRuntime() RuntimeConfig {
	return RuntimeConfig{
		DataDir:  getEnvOrDefault("RUNTIME_DATA_DIR", defaultUnderHome(".claude", "agent_runtime_oss")),
		HTTPAddr: getEnvOrDefault("RUNTIME_HTTP_ADDR", ""),
	}
}

// DatabasePath returns the sqlite file location.
func (c RuntimeConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "runtime.db")
}
