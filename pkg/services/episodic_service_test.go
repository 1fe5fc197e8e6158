package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodicService_AddEpisode(t *testing.T) {
	client := newMemoryClient(t)
	service := NewEpisodicService(client)
	ctx := context.Background()

	t.Run("defaults significance to 0.5", func(t *testing.T) {
		receipt, err := service.AddEpisode(ctx, AddEpisodeInput{EventType: "deploy"})
		require.NoError(t, err)
		assert.NotZero(t, receipt.ID)
		assert.Equal(t, "deploy", receipt.EventType)
		assert.InDelta(t, 0.5, receipt.Significance, 1e-9)
	})

	t.Run("validates ranges", func(t *testing.T) {
		_, err := service.AddEpisode(ctx, AddEpisodeInput{})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.AddEpisode(ctx, AddEpisodeInput{
			EventType:    "deploy",
			Significance: ptr(1.5),
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.AddEpisode(ctx, AddEpisodeInput{
			EventType:        "deploy",
			EmotionalValence: ptr(-2.0),
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestEpisodicService_GetEpisodes(t *testing.T) {
	client := newMemoryClient(t)
	service := NewEpisodicService(client)
	ctx := context.Background()

	_, err := service.AddEpisode(ctx, AddEpisodeInput{
		EventType:    "incident",
		EpisodeData:  map[string]any{"summary": "db down", "retries": float64(3)},
		Significance: ptr(0.9),
		Tags:         []string{"prod", "database"},
	})
	require.NoError(t, err)
	_, err = service.AddEpisode(ctx, AddEpisodeInput{
		EventType:    "incident",
		Significance: ptr(0.4),
	})
	require.NoError(t, err)
	_, err = service.AddEpisode(ctx, AddEpisodeInput{
		EventType:    "deploy",
		Significance: ptr(0.6),
	})
	require.NoError(t, err)

	t.Run("filters by type and significance floor", func(t *testing.T) {
		episodes, err := service.GetEpisodes(ctx, "incident", 0.5, 10)
		require.NoError(t, err)
		require.Len(t, episodes, 1)
		assert.Equal(t, "incident", episodes[0].EventType)
		assert.InDelta(t, 0.9, episodes[0].Significance, 1e-9)
		assert.Equal(t, map[string]any{"summary": "db down", "retries": float64(3)}, episodes[0].EpisodeData)
		assert.Equal(t, []string{"prod", "database"}, episodes[0].Tags)
	})

	t.Run("orders by significance across types", func(t *testing.T) {
		episodes, err := service.GetEpisodes(ctx, "", 0, 10)
		require.NoError(t, err)
		require.Len(t, episodes, 3)
		assert.InDelta(t, 0.9, episodes[0].Significance, 1e-9)
		assert.InDelta(t, 0.6, episodes[1].Significance, 1e-9)
		assert.InDelta(t, 0.4, episodes[2].Significance, 1e-9)
	})

	t.Run("empty data decodes to empty map", func(t *testing.T) {
		episodes, err := service.GetEpisodes(ctx, "deploy", 0, 10)
		require.NoError(t, err)
		require.Len(t, episodes, 1)
		assert.Equal(t, map[string]any{}, episodes[0].EpisodeData)
	})
}
