package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "meta", "drift.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordAndGet(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	b := &Build{
		Trajectories: 2,
		Observations: 5,
		Skipped:      1,
		Policy:       "skip",
		Sources:      []string{"drifter_1.nc", "drifter_2.nc"},
		Outputs:      []string{"file:///data/gdp.nc"},
		Elapsed:      1500 * time.Millisecond,
	}
	require.NoError(t, c.Record(ctx, b))
	assert.NotEmpty(t, b.ID)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := c.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, 2, got.Trajectories)
	assert.Equal(t, int64(5), got.Observations)
	assert.Equal(t, int64(1), got.Skipped)
	assert.Equal(t, "skip", got.Policy)
	assert.Equal(t, b.Sources, got.Sources)
	assert.Equal(t, b.Outputs, got.Outputs)
	assert.Equal(t, 1500*time.Millisecond, got.Elapsed)
	assert.True(t, b.CreatedAt.Equal(got.CreatedAt))
}

func TestGetNotFound(t *testing.T) {
	c := openTest(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Record(ctx, &Build{
			ID:           string(rune('a' + i)),
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
			Trajectories: i,
		}))
	}

	all, err := c.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.Equal(t, []string{}, all[0].Sources)

	limited, err := c.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "b", limited[1].ID)
}

func TestRecordDuplicateID(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	require.NoError(t, c.Record(ctx, &Build{ID: "x"}))
	assert.Error(t, c.Record(ctx, &Build{ID: "x"}))
}

func TestReopenKeepsBuilds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drift.db")
	c, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Record(context.Background(), &Build{ID: "keep"}))
	require.NoError(t, c.Close())

	c, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	got, err := c.Get(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "keep", got.ID)
}
