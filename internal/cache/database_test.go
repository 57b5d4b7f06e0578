package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/blotter/internal/database/testutil"
	"github.com/charlesng35/blotter/internal/models"
)

func TestDatabaseStoreConsume(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		counter, err := store.Consume(ctx, "pin:t", 2, 10*time.Minute)
		require.NoError(t, err)
		require.True(t, counter.Allowed)
		require.Equal(t, i, counter.Used)
	}

	counter, err := store.Consume(ctx, "pin:t", 2, 10*time.Minute)
	require.NoError(t, err)
	require.False(t, counter.Allowed)
	require.Equal(t, 10*time.Minute, counter.ResetIn)

	var entry models.RateCounter
	require.NoError(t, db.Take(&entry, "counter_key = ?", "pin:t").Error)
	require.Equal(t, int64(2), entry.Hits)

	now = now.Add(10 * time.Minute)
	counter, err = store.Consume(ctx, "pin:t", 2, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, counter.Allowed)
	require.Equal(t, int64(1), counter.Used)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := store.Consume(ctx, "a", 5, time.Minute)
	require.NoError(t, err)
	_, err = store.Consume(ctx, "b", 5, time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	require.NoError(t, store.Delete(ctx, "b"))
	var count int64
	require.NoError(t, db.Model(&models.RateCounter{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDatabaseStoreZeroLimitNeverAllows(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)

	counter, err := store.Consume(context.Background(), "pin:locked", 0, time.Minute)
	require.NoError(t, err)
	require.False(t, counter.Allowed)
	require.Zero(t, counter.Used)
}

func TestAdvance(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	cases := []struct {
		name      string
		row       models.RateCounter
		limit     int64
		want      Counter
		wantDirty bool
		wantHits  int64
	}{
		{
			name:      "fresh seed opens a window",
			row:       models.RateCounter{ExpiresAt: now},
			limit:     5,
			want:      Counter{Used: 1, Allowed: true, ResetIn: window},
			wantDirty: true,
			wantHits:  1,
		},
		{
			name:      "inside window counts up",
			row:       models.RateCounter{Hits: 3, ExpiresAt: now.Add(time.Minute)},
			limit:     5,
			want:      Counter{Used: 4, Allowed: true, ResetIn: time.Minute},
			wantDirty: true,
			wantHits:  4,
		},
		{
			name:     "full window is untouched",
			row:      models.RateCounter{Hits: 5, ExpiresAt: now.Add(time.Minute)},
			limit:    5,
			want:     Counter{Used: 5, ResetIn: time.Minute},
			wantHits: 5,
		},
		{
			name:      "elapsed window restarts",
			row:       models.RateCounter{Hits: 5, ExpiresAt: now.Add(-time.Second)},
			limit:     5,
			want:      Counter{Used: 1, Allowed: true, ResetIn: window},
			wantDirty: true,
			wantHits:  1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := tc.row
			got, dirty := advance(&row, now, tc.limit, window)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantDirty, dirty)
			require.Equal(t, tc.wantHits, row.Hits)
		})
	}
}

func TestDatabaseStorePeek(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db).WithClock(func() time.Time { return now })
	ctx := context.Background()

	counter, err := store.Peek(ctx, "pin:p", 1)
	require.NoError(t, err)
	require.Equal(t, Counter{Allowed: true}, counter)

	_, err = store.Consume(ctx, "pin:p", 1, 5*time.Minute)
	require.NoError(t, err)

	counter, err = store.Peek(ctx, "pin:p", 1)
	require.NoError(t, err)
	require.Equal(t, Counter{Used: 1, ResetIn: 5 * time.Minute}, counter)

	now = now.Add(5 * time.Minute)
	counter, err = store.Peek(ctx, "pin:p", 1)
	require.NoError(t, err)
	require.True(t, counter.Allowed)

	var row models.RateCounter
	require.NoError(t, db.Take(&row, "counter_key = ?", "pin:p").Error)
	require.Equal(t, int64(1), row.Hits)
}
