// Package services implements the domain operations behind the memory and
// runtime tool surfaces. Every service owns validation and transaction
// boundaries for its slice of the store; callers see taxonomy errors from
// errors.go and never raw driver errors.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// Importance heuristic: base 0.5, +0.2 when a boost keyword appears in the
// name or any observation, +0.1 when more than three observations, clamped
// to 1.0.
var importanceKeywords = []string{"error", "critical", "important", "bug"}

// EntityInput is one record of a CreateEntities batch.
type EntityInput struct {
	Name         string
	EntityType   string
	Observations []string
	Metadata     map[string]any
}

// EntityRecord summarizes a created entity.
type EntityRecord struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Tier       models.Tier `json:"tier"`
	Importance float64     `json:"importance"`
}

// EntityBatchResult reports per-item outcomes of a batch create.
type EntityBatchResult struct {
	Created       int            `json:"created"`
	Errors        int            `json:"errors"`
	Entities      []EntityRecord `json:"entities"`
	ErrorMessages []string       `json:"error_messages"`
}

// EntitySearchHit is one search result with its observations loaded.
type EntitySearchHit struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	EntityType   string      `json:"entityType"`
	Tier         models.Tier `json:"tier"`
	Importance   float64     `json:"importance"`
	Observations []string    `json:"observations"`
	AccessCount  int64       `json:"accessCount"`
}

// EntityService handles entity creation, search, versioning, and status.
type EntityService struct {
	client *database.Client
}

// NewEntityService creates a new EntityService.
func NewEntityService(client *database.Client) *EntityService {
	if client == nil {
		panic("NewEntityService: client must not be nil")
	}
	return &EntityService{client: client}
}

// CreateEntities inserts a batch of entities. Each item gets an importance
// score, an initial tier, its observations, and version 1 in one transaction.
// A failed item (duplicate name, validation) is reported in the result and
// does not abort the rest of the batch.
func (s *EntityService) CreateEntities(ctx context.Context, inputs []EntityInput) (*EntityBatchResult, error) {
	result := &EntityBatchResult{
		Entities:      []EntityRecord{},
		ErrorMessages: []string{},
	}

	for _, in := range inputs {
		record, err := s.createOne(ctx, in)
		if err != nil {
			result.Errors++
			result.ErrorMessages = append(result.ErrorMessages, err.Error())
			continue
		}
		result.Created++
		result.Entities = append(result.Entities, *record)
	}

	return result, nil
}

func (s *EntityService) createOne(ctx context.Context, in EntityInput) (*EntityRecord, error) {
	if in.Name == "" {
		return nil, NewValidationError("name", "entity name is required")
	}

	entityType := in.EntityType
	if entityType == "" {
		entityType = "general"
	}

	importance := scoreImportance(in.Name, in.Observations)
	tier := models.TierForImportance(importance)

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("error creating '%s': %w", in.Name, err)
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, tier, importance_score, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		in.Name, entityType, tier, importance, string(metadataJSON))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, DuplicateError("Entity '%s' already exists", in.Name)
		}
		return nil, fmt.Errorf("error creating '%s': %w", in.Name, err)
	}

	entityID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error creating '%s': %w", in.Name, err)
	}

	for _, obs := range in.Observations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO observations (entity_id, content) VALUES (?, ?)`,
			entityID, obs); err != nil {
			return nil, fmt.Errorf("error creating '%s': %w", in.Name, err)
		}
	}

	snapshot, err := json.Marshal(models.EntitySnapshot{
		Name:         in.Name,
		Type:         entityType,
		Observations: in.Observations,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating '%s': %w", in.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entity_versions (entity_id, version_number, snapshot, commit_message)
		VALUES (?, 1, ?, 'Initial creation')`,
		entityID, string(snapshot)); err != nil {
		return nil, fmt.Errorf("error creating '%s': %w", in.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &EntityRecord{
		ID:         entityID,
		Name:       in.Name,
		Tier:       tier,
		Importance: importance,
	}, nil
}

// SearchNodes returns up to limit entities whose name or observations match
// query as a case-insensitive substring, ordered by importance then access
// count. Each returned entity's access_count is incremented as part of the
// read.
func (s *EntityService) SearchNodes(ctx context.Context, query string, limit int) ([]EntitySearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	pattern := "%" + query + "%"
	var rows []models.Entity
	if err := tx.SelectContext(ctx, &rows, `
		SELECT DISTINCT e.id, e.name, e.entity_type, e.tier, e.importance_score,
		       e.created_at, e.updated_at, e.access_count
		FROM entities e
		LEFT JOIN observations o ON e.id = o.entity_id
		WHERE e.name LIKE ? OR o.content LIKE ?
		ORDER BY e.importance_score DESC, e.access_count DESC
		LIMIT ?`,
		pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	hits := make([]EntitySearchHit, 0, len(rows))
	for _, row := range rows {
		var observations []string
		if err := tx.SelectContext(ctx, &observations,
			`SELECT content FROM observations WHERE entity_id = ? ORDER BY id`,
			row.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET access_count = access_count + 1 WHERE id = ?`,
			row.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}

		hits = append(hits, EntitySearchHit{
			ID:           row.ID,
			Name:         row.Name,
			EntityType:   row.EntityType,
			Tier:         row.Tier,
			Importance:   row.ImportanceScore,
			Observations: observations,
			AccessCount:  row.AccessCount + 1,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return hits, nil
}

// SaveEntityVersion snapshots the entity's current state as the next version.
func (s *EntityService) SaveEntityVersion(ctx context.Context, entityName, commitMessage string) (int64, error) {
	if entityName == "" {
		return 0, NewValidationError("entity_name", "entity name is required")
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	var entity models.Entity
	if err := tx.GetContext(ctx, &entity,
		`SELECT id, name, entity_type, tier, importance_score, created_at, updated_at, access_count
		 FROM entities WHERE name = ?`, entityName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, NotFoundError("Entity '%s' not found", entityName)
		}
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var observations []string
	if err := tx.SelectContext(ctx, &observations,
		`SELECT content FROM observations WHERE entity_id = ? ORDER BY id`,
		entity.ID); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var maxVersion int64
	if err := tx.GetContext(ctx, &maxVersion,
		`SELECT COALESCE(MAX(version_number), 0) FROM entity_versions WHERE entity_id = ?`,
		entity.ID); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	next := maxVersion + 1

	snapshot, err := json.Marshal(models.EntitySnapshot{
		Name:         entity.Name,
		Type:         entity.EntityType,
		Observations: observations,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entity_versions (entity_id, version_number, snapshot, commit_message)
		VALUES (?, ?, ?, ?)`,
		entity.ID, next, string(snapshot), commitMessage); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return next, nil
}

// MemoryDiff compares two versions of an entity. Missing version arguments
// resolve to the two most recent versions (v1 = previous, v2 = latest).
func (s *EntityService) MemoryDiff(ctx context.Context, entityName string, version1, version2 *int64) (*models.VersionDiff, error) {
	var entityID int64
	err := s.client.GetContext(ctx, &entityID,
		`SELECT id FROM entities WHERE name = ?`, entityName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Entity '%s' not found", entityName)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var versions []models.EntityVersion
	if err := s.client.SelectContext(ctx, &versions, `
		SELECT id, entity_id, version_number, snapshot, created_at, commit_message
		FROM entity_versions WHERE entity_id = ?
		ORDER BY version_number DESC`, entityID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if len(versions) < 2 {
		return nil, StateConflictError("Not enough versions for diff")
	}

	v1 := versions[1].VersionNumber
	if version1 != nil {
		v1 = *version1
	}
	v2 := versions[0].VersionNumber
	if version2 != nil {
		v2 = *version2
	}

	var v1Snap, v2Snap models.EntitySnapshot
	v1Found, v2Found := false, false
	for _, v := range versions {
		if v.VersionNumber == v1 {
			if err := json.Unmarshal([]byte(v.Snapshot), &v1Snap); err != nil {
				return nil, fmt.Errorf("invalid snapshot for version %d: %w", v1, err)
			}
			v1Found = true
		}
		if v.VersionNumber == v2 {
			if err := json.Unmarshal([]byte(v.Snapshot), &v2Snap); err != nil {
				return nil, fmt.Errorf("invalid snapshot for version %d: %w", v2, err)
			}
			v2Found = true
		}
	}
	if !v1Found || !v2Found {
		return nil, NotFoundError("Version not found")
	}

	return &models.VersionDiff{
		Entity:   entityName,
		Version1: v1,
		Version2: v2,
		V1:       v1Snap,
		V2:       v2Snap,
		Changes: models.ObservationDiff{
			AddedObservations:   difference(v2Snap.Observations, v1Snap.Observations),
			RemovedObservations: difference(v1Snap.Observations, v2Snap.Observations),
		},
	}, nil
}

// Status reports store-wide counts and the database path.
func (s *EntityService) Status(ctx context.Context) (*models.MemoryStatus, error) {
	status := &models.MemoryStatus{
		TierDistribution: map[string]int64{},
		DatabasePath:     s.client.Path(),
		Status:           "healthy",
	}

	type tierCount struct {
		Tier  string `db:"tier"`
		Count int64  `db:"count"`
	}
	var tiers []tierCount
	if err := s.client.SelectContext(ctx, &tiers,
		`SELECT tier, COUNT(*) as count FROM entities GROUP BY tier`); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	for _, tc := range tiers {
		status.TierDistribution[tc.Tier] = tc.Count
	}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM entities`, &status.TotalEntities},
		{`SELECT COUNT(*) FROM observations`, &status.TotalObservations},
		{`SELECT COUNT(*) FROM working_memory`, &status.FourTierMemory.Working},
		{`SELECT COUNT(*) FROM episodic_memory`, &status.FourTierMemory.Episodic},
		{`SELECT COUNT(*) FROM semantic_memory`, &status.FourTierMemory.Semantic},
		{`SELECT COUNT(*) FROM procedural_memory`, &status.FourTierMemory.Procedural},
		{`SELECT COUNT(*) FROM entity_versions`, &status.VersionCount},
	}
	for _, c := range counts {
		if err := s.client.GetContext(ctx, c.dest, c.query); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	return status, nil
}

func scoreImportance(name string, observations []string) float64 {
	importance := 0.5
	text := strings.ToLower(name + " " + strings.Join(observations, " "))
	for _, kw := range importanceKeywords {
		if strings.Contains(text, kw) {
			importance += 0.2
			break
		}
	}
	if len(observations) > 3 {
		importance += 0.1
	}
	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}

// difference returns the elements of a that are absent from b, preserving
// a's order.
func difference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	out := []string{}
	for _, s := range a {
		if !inB[s] {
			out = append(out, s)
		}
	}
	return out
}
