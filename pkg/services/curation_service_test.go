package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurationService_Run(t *testing.T) {
	client := newMemoryClient(t)
	working := NewWorkingMemoryService(client)
	episodic := NewEpisodicService(client)
	curation := NewCurationService(client)
	ctx := context.Background()

	t.Run("cleans expired working items", func(t *testing.T) {
		receipt, err := working.Add(ctx, AddWorkingItemInput{ContextKey: "stale", Content: "old"})
		require.NoError(t, err)
		_, err = client.ExecContext(ctx,
			`UPDATE working_memory SET expires_at = ? WHERE id = ?`,
			time.Now().UTC().Add(-time.Hour), receipt.ID)
		require.NoError(t, err)

		report, err := curation.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.ExpiredCleaned)

		var count int
		err = client.GetContext(ctx, &count, `SELECT COUNT(*) FROM working_memory`)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("promotes hot working items to episodic", func(t *testing.T) {
		receipt, err := working.Add(ctx, AddWorkingItemInput{ContextKey: "hot", Content: "frequently used"})
		require.NoError(t, err)
		_, err = client.ExecContext(ctx,
			`UPDATE working_memory SET access_count = 5 WHERE id = ?`, receipt.ID)
		require.NoError(t, err)

		report, err := curation.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.WorkingToEpisodic)

		episodes, err := episodic.GetEpisodes(ctx, "promoted_from_working", 0, 10)
		require.NoError(t, err)
		require.Len(t, episodes, 1)
		// significance = min(0.7, 0.3 + 0.1 * access_count)
		assert.InDelta(t, 0.7, episodes[0].Significance, 1e-9)
		assert.Equal(t, "frequently used", episodes[0].EpisodeData["content"])
		assert.Equal(t, "hot", episodes[0].EpisodeData["context"])

		var remaining int
		err = client.GetContext(ctx, &remaining,
			`SELECT COUNT(*) FROM working_memory WHERE id = ?`, receipt.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, remaining, "promotion copies the item, the source row stays")
	})

	t.Run("derives semantic concepts from significant episodes", func(t *testing.T) {
		receipt, err := episodic.AddEpisode(ctx, AddEpisodeInput{
			EventType:    "deploy_failed",
			EpisodeData:  map[string]any{"cause": "bad config"},
			Significance: ptr(0.9),
		})
		require.NoError(t, err)

		report, err := curation.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.EpisodicToSemantic)

		var concept struct {
			ConceptType     string  `db:"concept_type"`
			ConfidenceScore float64 `db:"confidence_score"`
		}
		err = client.GetContext(ctx, &concept, `
			SELECT concept_type, confidence_score FROM semantic_memory
			WHERE concept_name = ?`,
			// concept names embed the source episode id
			fmt.Sprintf("learned_deploy_failed_%d", receipt.ID))
		require.NoError(t, err)
		assert.Equal(t, "derived_pattern", concept.ConceptType)
		assert.InDelta(t, 0.9, concept.ConfidenceScore, 1e-9)
	})

	t.Run("repeat runs skip already-derived concepts", func(t *testing.T) {
		report, err := curation.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.EpisodicToSemantic, "existing concept names are skipped")
		assert.Zero(t, report.ExpiredCleaned)
	})
}
