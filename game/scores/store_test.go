package scores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/minimetro/game/service"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "scores.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	entry, err := store.Record(ctx, service.ScoreEntry{
		SessionID: "ab12",
		CityID:    "london",
		Variant:   "desktop",
		Score:     42,
		Week:      3,
		Day:       2,
		Stations:  11,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.RecordedAt.IsZero())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	t.Run("needs city and variant", func(t *testing.T) {
		_, err := store.Record(ctx, service.ScoreEntry{Score: 1})
		assert.Error(t, err)
	})

	t.Run("keeps a given id", func(t *testing.T) {
		got, err := store.Record(ctx, service.ScoreEntry{ID: "fixed", CityID: "paris", Variant: "desktop"})
		require.NoError(t, err)
		assert.Equal(t, "fixed", got.ID)

		_, err = store.Record(ctx, service.ScoreEntry{ID: "fixed", CityID: "paris", Variant: "desktop"})
		assert.Error(t, err, "ids are unique")
	})
}

func TestTop(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	record := func(city, variant string, score int, at time.Time) {
		_, err := store.Record(ctx, service.ScoreEntry{
			SessionID:  "s",
			CityID:     city,
			Variant:    variant,
			Score:      score,
			Elapsed:    float64(score) * 1000.5,
			RecordedAt: at,
		})
		require.NoError(t, err)
	}
	record("london", "desktop", 10, base)
	record("london", "desktop", 30, base.Add(time.Minute))
	record("london", "desktop", 30, base.Add(-time.Minute))
	record("london", "desktop", 5, base)
	record("london", "mobile", 99, base)
	record("paris", "desktop", 77, base)

	top, err := store.Top(ctx, "london", "desktop", 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int{30, 30, 10}, []int{top[0].Score, top[1].Score, top[2].Score})
	assert.True(t, top[0].RecordedAt.Equal(base.Add(-time.Minute)), "ties go to the earlier game")
	assert.Equal(t, 30*1000.5, top[0].Elapsed)

	best, err := store.Best(ctx, "london", "mobile")
	require.NoError(t, err)
	assert.Equal(t, 99, best.Score)

	empty, err := store.Top(ctx, "osaka", "desktop", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = store.Best(ctx, "osaka", "desktop")
	assert.ErrorIs(t, err, ErrNoScores)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scores.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.Record(ctx, service.ScoreEntry{CityID: "berlin", Variant: "classic", Score: 12})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	best, err := store.Best(ctx, "berlin", "classic")
	require.NoError(t, err)
	assert.Equal(t, 12, best.Score)
}
