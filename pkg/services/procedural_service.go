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

// AddSkillInput describes one procedural upsert.
type AddSkillInput struct {
	SkillName       string
	SkillCategory   string
	ProcedureSteps  []string
	Preconditions   *string
	SuccessCriteria *string
}

// SkillReceipt confirms a procedural upsert.
type SkillReceipt struct {
	ID        int64  `json:"id"`
	SkillName string `json:"skill_name"`
	Action    string `json:"action"`
}

// SkillView is one procedural read result.
type SkillView struct {
	ID                 int64    `json:"id"`
	SkillName          string   `json:"skill_name"`
	SkillCategory      string   `json:"skill_category"`
	ProcedureSteps     []string `json:"procedure_steps"`
	Preconditions      *string  `json:"preconditions"`
	SuccessCriteria    *string  `json:"success_criteria"`
	ExecutionCount     int64    `json:"execution_count"`
	SuccessRate        float64  `json:"success_rate"`
	AvgExecutionTimeMs *float64 `json:"avg_execution_time_ms"`
}

// ExecutionReceipt reports the updated running statistics of a skill.
type ExecutionReceipt struct {
	SkillName          string  `json:"skill_name"`
	Success            bool    `json:"success"`
	ExecutionCount     int64   `json:"execution_count"`
	SuccessRate        float64 `json:"success_rate"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	Message            string  `json:"message"`
}

// ProceduralService handles the skill tier and its execution statistics.
type ProceduralService struct {
	client *database.Client
}

// NewProceduralService creates a new ProceduralService.
func NewProceduralService(client *database.Client) *ProceduralService {
	if client == nil {
		panic("NewProceduralService: client must not be nil")
	}
	return &ProceduralService{client: client}
}

// AddSkill inserts a skill, or updates steps, preconditions, and success
// criteria when the name already exists.
func (s *ProceduralService) AddSkill(ctx context.Context, in AddSkillInput) (*SkillReceipt, error) {
	if in.SkillName == "" {
		return nil, NewValidationError("skill_name", "skill name is required")
	}
	if in.SkillCategory == "" {
		return nil, NewValidationError("skill_category", "skill category is required")
	}
	if len(in.ProcedureSteps) == 0 {
		return nil, NewValidationError("procedure_steps", "at least one procedure step is required")
	}

	stepsJSON, err := json.Marshal(in.ProcedureSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal procedure steps: %w", err)
	}

	res, err := s.client.ExecContext(ctx, `
		INSERT INTO procedural_memory (skill_name, skill_category, procedure_steps,
		                               preconditions, success_criteria)
		VALUES (?, ?, ?, ?, ?)`,
		in.SkillName, in.SkillCategory, string(stepsJSON), in.Preconditions, in.SuccessCriteria)
	if err == nil {
		id, lerr := res.LastInsertId()
		if lerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, lerr)
		}
		return &SkillReceipt{ID: id, SkillName: in.SkillName, Action: "created"}, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if _, err := s.client.ExecContext(ctx, `
		UPDATE procedural_memory
		SET skill_category = ?, procedure_steps = ?, preconditions = ?,
		    success_criteria = ?, updated_at = ?
		WHERE skill_name = ?`,
		in.SkillCategory, string(stepsJSON), in.Preconditions, in.SuccessCriteria,
		nowUTC(), in.SkillName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var id int64
	if err := s.client.GetContext(ctx, &id,
		`SELECT id FROM procedural_memory WHERE skill_name = ?`, in.SkillName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &SkillReceipt{ID: id, SkillName: in.SkillName, Action: "updated"}, nil
}

// RecordExecution folds one execution outcome into the skill's running
// success rate and average execution time.
func (s *ProceduralService) RecordExecution(ctx context.Context, skillName string, success bool, executionTimeMs float64) (*ExecutionReceipt, error) {
	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	var skill models.Skill
	if err := tx.GetContext(ctx, &skill, `
		SELECT id, skill_name, skill_category, procedure_steps, preconditions,
		       success_criteria, execution_count, success_rate, avg_execution_time_ms,
		       created_at, updated_at
		FROM procedural_memory WHERE skill_name = ?`, skillName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Skill '%s' not found", skillName)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	newCount := skill.ExecutionCount + 1
	successCount := int64(skill.SuccessRate * float64(skill.ExecutionCount))
	if success {
		successCount++
	}
	newRate := float64(successCount) / float64(newCount)

	// Running average; a zero or missing prior average restarts from this sample
	newAvg := executionTimeMs
	if skill.AvgExecutionTimeMs != nil && *skill.AvgExecutionTimeMs != 0 {
		newAvg = (*skill.AvgExecutionTimeMs*float64(skill.ExecutionCount) + executionTimeMs) / float64(newCount)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE procedural_memory
		SET execution_count = ?, success_rate = ?, avg_execution_time_ms = ?, updated_at = ?
		WHERE skill_name = ?`,
		newCount, newRate, newAvg, nowUTC(), skillName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &ExecutionReceipt{
		SkillName:          skillName,
		Success:            success,
		ExecutionCount:     newCount,
		SuccessRate:        newRate,
		AvgExecutionTimeMs: newAvg,
		Message:            fmt.Sprintf("Recorded execution: %s (success=%t, time=%gms)", skillName, success, executionTimeMs),
	}, nil
}

// GetSkills lists skills above a success-rate floor, most reliable first.
// An empty category lists across all categories.
func (s *ProceduralService) GetSkills(ctx context.Context, category string, minSuccessRate float64, limit int) ([]SkillView, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Skill
	var err error
	if category != "" {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, skill_name, skill_category, procedure_steps, preconditions,
			       success_criteria, execution_count, success_rate, avg_execution_time_ms,
			       created_at, updated_at
			FROM procedural_memory
			WHERE skill_category = ? AND success_rate >= ?
			ORDER BY success_rate DESC LIMIT ?`,
			category, minSuccessRate, limit)
	} else {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, skill_name, skill_category, procedure_steps, preconditions,
			       success_criteria, execution_count, success_rate, avg_execution_time_ms,
			       created_at, updated_at
			FROM procedural_memory
			WHERE success_rate >= ?
			ORDER BY success_rate DESC LIMIT ?`,
			minSuccessRate, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	views := make([]SkillView, 0, len(rows))
	for _, row := range rows {
		steps := []string{}
		if row.ProcedureSteps != "" {
			if err := json.Unmarshal([]byte(row.ProcedureSteps), &steps); err != nil {
				steps = []string{row.ProcedureSteps}
			}
		}
		views = append(views, SkillView{
			ID:                 row.ID,
			SkillName:          row.SkillName,
			SkillCategory:      row.SkillCategory,
			ProcedureSteps:     steps,
			Preconditions:      row.Preconditions,
			SuccessCriteria:    row.SuccessCriteria,
			ExecutionCount:     row.ExecutionCount,
			SuccessRate:        row.SuccessRate,
			AvgExecutionTimeMs: row.AvgExecutionTimeMs,
		})
	}

	return views, nil
}
