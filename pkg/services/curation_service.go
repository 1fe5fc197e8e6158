package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// CurationService runs the cross-tier promotion passes.
type CurationService struct {
	client *database.Client
}

// NewCurationService creates a new CurationService.
func NewCurationService(client *database.Client) *CurationService {
	if client == nil {
		panic("NewCurationService: client must not be nil")
	}
	return &CurationService{client: client}
}

// Run executes one curation pass as a single transaction:
//  1. delete expired working items
//  2. promote working items with access_count >= 5 to episodic
//  3. promote episodes with significance >= 0.8 to semantic concepts,
//     skipping concept names that already exist
func (s *CurationService) Run(ctx context.Context) (*models.CurationReport, error) {
	report := &models.CurationReport{}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM working_memory WHERE expires_at < ?`, nowUTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		report.ExpiredCleaned = int(n)
	}

	var hot []models.WorkingMemoryItem
	if err := tx.SelectContext(ctx, &hot, `
		SELECT id, context_key, content, priority, ttl_minutes, created_at,
		       expires_at, access_count, entity_id
		FROM working_memory WHERE access_count >= 5`); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for _, item := range hot {
		data, err := json.Marshal(map[string]any{
			"content": item.Content,
			"context": item.ContextKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal promotion data: %w", err)
		}
		significance := 0.3 + float64(item.AccessCount)*0.1
		if significance > 0.7 {
			significance = 0.7
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO episodic_memory (event_type, episode_data, significance_score)
			VALUES ('promoted_from_working', ?, ?)`,
			string(data), significance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		report.WorkingToEpisodic++
	}

	var significant []models.Episode
	if err := tx.SelectContext(ctx, &significant, `
		SELECT id, event_type, episode_data, significance_score, emotional_valence,
		       tags, created_at, entity_id
		FROM episodic_memory WHERE significance_score >= 0.8`); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for _, ep := range significant {
		conceptName := fmt.Sprintf("learned_%s_%d", ep.EventType, ep.ID)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO semantic_memory (concept_name, concept_type, definition, confidence_score)
			VALUES (?, 'derived_pattern', ?, ?)`,
			conceptName, ep.EpisodeData, ep.SignificanceScore)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		report.EpisodicToSemantic++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return report, nil
}
