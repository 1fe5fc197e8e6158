package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// AddEpisodeInput describes one episodic write. Zero Significance takes the
// 0.5 default.
type AddEpisodeInput struct {
	EventType        string
	EpisodeData      map[string]any
	Significance     *float64
	EmotionalValence *float64
	Tags             []string
	EntityID         *int64
}

// EpisodeReceipt confirms an episodic write.
type EpisodeReceipt struct {
	ID           int64   `json:"id"`
	EventType    string  `json:"event_type"`
	Significance float64 `json:"significance"`
}

// EpisodeView is one episodic read result with decoded data.
type EpisodeView struct {
	ID               int64          `json:"id"`
	EventType        string         `json:"event_type"`
	EpisodeData      map[string]any `json:"episode_data"`
	Significance     float64        `json:"significance"`
	EmotionalValence *float64       `json:"emotional_valence"`
	Tags             []string       `json:"tags"`
	CreatedAt        time.Time      `json:"created_at"`
}

// EpisodicService handles the event-history tier.
type EpisodicService struct {
	client *database.Client
}

// NewEpisodicService creates a new EpisodicService.
func NewEpisodicService(client *database.Client) *EpisodicService {
	if client == nil {
		panic("NewEpisodicService: client must not be nil")
	}
	return &EpisodicService{client: client}
}

// AddEpisode records one event.
func (s *EpisodicService) AddEpisode(ctx context.Context, in AddEpisodeInput) (*EpisodeReceipt, error) {
	if in.EventType == "" {
		return nil, NewValidationError("event_type", "event type is required")
	}

	significance := 0.5
	if in.Significance != nil {
		significance = *in.Significance
	}
	if significance < 0 || significance > 1 {
		return nil, NewValidationError("significance_score", "significance must be between 0.0 and 1.0")
	}
	if in.EmotionalValence != nil && (*in.EmotionalValence < -1 || *in.EmotionalValence > 1) {
		return nil, NewValidationError("emotional_valence", "emotional valence must be between -1.0 and 1.0")
	}

	data := in.EpisodeData
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal episode data: %w", err)
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	res, err := s.client.ExecContext(ctx, `
		INSERT INTO episodic_memory (event_type, episode_data, significance_score,
		                             emotional_valence, tags, entity_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.EventType, string(dataJSON), significance, in.EmotionalValence, string(tagsJSON), in.EntityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &EpisodeReceipt{ID: id, EventType: in.EventType, Significance: significance}, nil
}

// GetEpisodes lists episodes above a significance floor, most significant
// first. An empty eventType lists across all types.
func (s *EpisodicService) GetEpisodes(ctx context.Context, eventType string, minSignificance float64, limit int) ([]EpisodeView, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Episode
	var err error
	if eventType != "" {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, event_type, episode_data, significance_score, emotional_valence,
			       tags, created_at, entity_id
			FROM episodic_memory
			WHERE event_type = ? AND significance_score >= ?
			ORDER BY significance_score DESC, created_at DESC LIMIT ?`,
			eventType, minSignificance, limit)
	} else {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, event_type, episode_data, significance_score, emotional_valence,
			       tags, created_at, entity_id
			FROM episodic_memory
			WHERE significance_score >= ?
			ORDER BY significance_score DESC, created_at DESC LIMIT ?`,
			minSignificance, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	views := make([]EpisodeView, 0, len(rows))
	for _, row := range rows {
		tags := []string{}
		if row.Tags != nil && *row.Tags != "" {
			if err := json.Unmarshal([]byte(*row.Tags), &tags); err != nil {
				tags = []string{}
			}
		}
		views = append(views, EpisodeView{
			ID:               row.ID,
			EventType:        row.EventType,
			EpisodeData:      row.DecodedData(),
			Significance:     row.SignificanceScore,
			EmotionalValence: row.EmotionalValence,
			Tags:             tags,
			CreatedAt:        row.CreatedAt,
		})
	}

	return views, nil
}
