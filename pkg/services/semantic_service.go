package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// AddConceptInput describes one semantic upsert. Zero Confidence takes the
// 0.5 default.
type AddConceptInput struct {
	ConceptName     string
	ConceptType     string
	Definition      string
	RelatedConcepts []string
	Confidence      *float64
}

// ConceptReceipt confirms a semantic upsert.
type ConceptReceipt struct {
	ID          int64   `json:"id"`
	ConceptName string  `json:"concept_name"`
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
}

// ConceptView is one semantic read result.
type ConceptView struct {
	ID              int64    `json:"id"`
	ConceptName     string   `json:"concept_name"`
	ConceptType     string   `json:"concept_type"`
	Definition      string   `json:"definition"`
	RelatedConcepts []string `json:"related_concepts"`
	Confidence      float64  `json:"confidence"`
}

// SemanticService handles the concept tier.
type SemanticService struct {
	client *database.Client
}

// NewSemanticService creates a new SemanticService.
func NewSemanticService(client *database.Client) *SemanticService {
	if client == nil {
		panic("NewSemanticService: client must not be nil")
	}
	return &SemanticService{client: client}
}

// AddConcept inserts a concept, or updates definition, related concepts, and
// confidence when the name already exists.
func (s *SemanticService) AddConcept(ctx context.Context, in AddConceptInput) (*ConceptReceipt, error) {
	if in.ConceptName == "" {
		return nil, NewValidationError("concept_name", "concept name is required")
	}
	if in.ConceptType == "" {
		return nil, NewValidationError("concept_type", "concept type is required")
	}
	if in.Definition == "" {
		return nil, NewValidationError("definition", "definition is required")
	}

	confidence := 0.5
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return nil, NewValidationError("confidence_score", "confidence must be between 0.0 and 1.0")
	}

	related := in.RelatedConcepts
	if related == nil {
		related = []string{}
	}
	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal related concepts: %w", err)
	}

	res, err := s.client.ExecContext(ctx, `
		INSERT INTO semantic_memory (concept_name, concept_type, definition,
		                             related_concepts, confidence_score)
		VALUES (?, ?, ?, ?, ?)`,
		in.ConceptName, in.ConceptType, in.Definition, string(relatedJSON), confidence)
	if err == nil {
		id, lerr := res.LastInsertId()
		if lerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, lerr)
		}
		return &ConceptReceipt{ID: id, ConceptName: in.ConceptName, Action: "created", Confidence: confidence}, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Existing name: refresh the record in place
	if _, err := s.client.ExecContext(ctx, `
		UPDATE semantic_memory
		SET definition = ?, related_concepts = ?, confidence_score = ?, updated_at = ?
		WHERE concept_name = ?`,
		in.Definition, string(relatedJSON), confidence, nowUTC(), in.ConceptName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var id int64
	if err := s.client.GetContext(ctx, &id,
		`SELECT id FROM semantic_memory WHERE concept_name = ?`, in.ConceptName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &ConceptReceipt{ID: id, ConceptName: in.ConceptName, Action: "updated", Confidence: confidence}, nil
}

// GetConcepts lists concepts above a confidence floor, most confident first.
// An empty conceptType lists across all types.
func (s *SemanticService) GetConcepts(ctx context.Context, conceptType string, minConfidence float64, limit int) ([]ConceptView, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Concept
	var err error
	if conceptType != "" {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, concept_name, concept_type, definition, related_concepts,
			       confidence_score, created_at, updated_at
			FROM semantic_memory
			WHERE concept_type = ? AND confidence_score >= ?
			ORDER BY confidence_score DESC LIMIT ?`,
			conceptType, minConfidence, limit)
	} else {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, concept_name, concept_type, definition, related_concepts,
			       confidence_score, created_at, updated_at
			FROM semantic_memory
			WHERE confidence_score >= ?
			ORDER BY confidence_score DESC LIMIT ?`,
			minConfidence, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	views := make([]ConceptView, 0, len(rows))
	for _, row := range rows {
		related := []string{}
		if row.RelatedConcepts != nil && *row.RelatedConcepts != "" {
			if err := json.Unmarshal([]byte(*row.RelatedConcepts), &related); err != nil {
				related = []string{}
			}
		}
		views = append(views, ConceptView{
			ID:              row.ID,
			ConceptName:     row.ConceptName,
			ConceptType:     row.ConceptType,
			Definition:      row.Definition,
			RelatedConcepts: related,
			Confidence:      row.ConfidenceScore,
		})
	}

	return views, nil
}

// GetConcept fetches a single concept by name.
func (s *SemanticService) GetConcept(ctx context.Context, name string) (*models.Concept, error) {
	var row models.Concept
	err := s.client.GetContext(ctx, &row, `
		SELECT id, concept_name, concept_type, definition, related_concepts,
		       confidence_score, created_at, updated_at
		FROM semantic_memory WHERE concept_name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Concept '%s' not found", name)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &row, nil
}
