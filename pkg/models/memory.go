package models

import (
	"encoding/json"
	"time"
)

// Entity is a named memory record with observations and version history.
type Entity struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	EntityType      string    `db:"entity_type" json:"entity_type"`
	Tier            Tier      `db:"tier" json:"tier"`
	ImportanceScore float64   `db:"importance_score" json:"importance_score"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
	AccessCount     int64     `db:"access_count" json:"access_count"`
	CompressedData  []byte    `db:"compressed_data" json:"-"`
	Metadata        *string   `db:"metadata" json:"metadata,omitempty"`
}

// Observation is one free-text fact attached to an entity. Observations are
// append-only and ordered by insertion.
type Observation struct {
	ID        int64     `db:"id" json:"id"`
	EntityID  int64     `db:"entity_id" json:"entity_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EntityVersion is an immutable snapshot of an entity's state. Version
// numbers start at 1 and increase monotonically per entity.
type EntityVersion struct {
	ID            int64     `db:"id" json:"id"`
	EntityID      int64     `db:"entity_id" json:"entity_id"`
	VersionNumber int64     `db:"version_number" json:"version_number"`
	Snapshot      string    `db:"snapshot" json:"snapshot"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	CommitMessage *string   `db:"commit_message" json:"commit_message,omitempty"`
}

// EntitySnapshot is the decoded form of EntityVersion.Snapshot.
type EntitySnapshot struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Observations []string `json:"observations"`
}

// WorkingMemoryItem is a TTL-bound context fragment.
type WorkingMemoryItem struct {
	ID          int64      `db:"id" json:"id"`
	ContextKey  string     `db:"context_key" json:"context_key"`
	Content     string     `db:"content" json:"content"`
	Priority    int64      `db:"priority" json:"priority"`
	TTLMinutes  int64      `db:"ttl_minutes" json:"ttl_minutes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at"`
	AccessCount int64      `db:"access_count" json:"access_count"`
	EntityID    *int64     `db:"entity_id" json:"entity_id,omitempty"`
}

// Episode is one episodic-memory event.
type Episode struct {
	ID                int64     `db:"id" json:"id"`
	EventType         string    `db:"event_type" json:"event_type"`
	EpisodeData       string    `db:"episode_data" json:"episode_data"`
	SignificanceScore float64   `db:"significance_score" json:"significance_score"`
	EmotionalValence  *float64  `db:"emotional_valence" json:"emotional_valence,omitempty"`
	Tags              *string   `db:"tags" json:"tags,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	EntityID          *int64    `db:"entity_id" json:"entity_id,omitempty"`
}

// DecodedData returns EpisodeData as a map, or the raw string under "raw"
// when it is not valid JSON.
func (e *Episode) DecodedData() map[string]any {
	var data map[string]any
	if err := json.Unmarshal([]byte(e.EpisodeData), &data); err != nil {
		return map[string]any{"raw": e.EpisodeData}
	}
	return data
}

// Concept is one semantic-memory record, unique by name.
type Concept struct {
	ID              int64     `db:"id" json:"id"`
	ConceptName     string    `db:"concept_name" json:"concept_name"`
	ConceptType     string    `db:"concept_type" json:"concept_type"`
	Definition      string    `db:"definition" json:"definition"`
	RelatedConcepts *string   `db:"related_concepts" json:"related_concepts,omitempty"`
	ConfidenceScore float64   `db:"confidence_score" json:"confidence_score"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Skill is one procedural-memory record, unique by name, with running
// execution statistics.
type Skill struct {
	ID                 int64     `db:"id" json:"id"`
	SkillName          string    `db:"skill_name" json:"skill_name"`
	SkillCategory      string    `db:"skill_category" json:"skill_category"`
	ProcedureSteps     string    `db:"procedure_steps" json:"procedure_steps"`
	Preconditions      *string   `db:"preconditions" json:"preconditions,omitempty"`
	SuccessCriteria    *string   `db:"success_criteria" json:"success_criteria,omitempty"`
	ExecutionCount     int64     `db:"execution_count" json:"execution_count"`
	SuccessRate        float64   `db:"success_rate" json:"success_rate"`
	AvgExecutionTimeMs *float64  `db:"avg_execution_time_ms" json:"avg_execution_time_ms,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// MemoryStatus summarizes the whole memory store.
type MemoryStatus struct {
	TotalEntities     int64            `json:"total_entities"`
	TotalObservations int64            `json:"total_observations"`
	TierDistribution  map[string]int64 `json:"tier_distribution"`
	FourTierMemory    FourTierCounts   `json:"four_tier_memory"`
	VersionCount      int64            `json:"version_count"`
	DatabasePath      string           `json:"database_path"`
	Status            string           `json:"status"`
}

// FourTierCounts holds per-tier row counts.
type FourTierCounts struct {
	Working    int64 `json:"working"`
	Episodic   int64 `json:"episodic"`
	Semantic   int64 `json:"semantic"`
	Procedural int64 `json:"procedural"`
}

// CurationReport counts the three promotion passes of one curation run.
type CurationReport struct {
	WorkingToEpisodic  int `json:"working_to_episodic"`
	EpisodicToSemantic int `json:"episodic_to_semantic"`
	ExpiredCleaned     int `json:"expired_cleaned"`
}

// VersionDiff is the comparison of two entity versions.
type VersionDiff struct {
	Entity   string          `json:"entity"`
	Version1 int64           `json:"version1"`
	Version2 int64           `json:"version2"`
	V1       EntitySnapshot  `json:"v1"`
	V2       EntitySnapshot  `json:"v2"`
	Changes  ObservationDiff `json:"changes"`
}

// ObservationDiff lists order-preserving set differences of observation text.
type ObservationDiff struct {
	AddedObservations   []string `json:"added_observations"`
	RemovedObservations []string `json:"removed_observations"`
}
