package config

import (
	"path/filepath"
	"time"
)

// MemoryConfig configures the tiered memory service.
type MemoryConfig struct {
	// DataDir holds memory.db and the vector store's memories.json.
	DataDir string

	// CurationInterval is how often the background curation pass runs.
	// Zero disables the worker.
	CurationInterval time.Duration

	// HTTPAddr enables the ops server when non-empty.
	HTTPAddr string
}

// LoadMemory reads the memory service configuration from the environment.
func LoadMemory() MemoryConfig {
	return MemoryConfig{
		DataDir:          getEnvOrDefault("MEMORY_DATA_DIR", defaultUnderHome(".claude", "enhanced_memory_oss")),
		CurationInterval: getEnvDuration("MEMORY_CURATION_INTERVAL", 0),
		HTTPAddr:         getEnvOrDefault("MEMORY_HTTP_ADDR", ""),
	}
}

// DatabasePath returns the sqlite file location.
func (c MemoryConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "memory.db")
}
