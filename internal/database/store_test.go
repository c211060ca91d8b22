package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-internship-scanner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type storeFactory func(t *testing.T, clock *testClock) Store

func posting(i int) models.Posting {
	return models.Posting{
		Company:  fmt.Sprintf("Company %d", i%3),
		Title:    fmt.Sprintf("SWE Intern %d", i),
		URL:      fmt.Sprintf("https://example.com/jobs/%d", i),
		Location: "Remote",
	}
}

func newSQLite(t *testing.T, clock *testClock) Store {
	path := filepath.Join(t.TempDir(), "state", "internships.db")
	s, err := OpenSQLite(context.Background(), path, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPostgres(t *testing.T, clock *testClock) Store {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := ConnectDB(context.Background(), url, WithClock(clock.Now))
	require.NoError(t, err)
	_, err = s.db.Exec(context.Background(), "TRUNCATE postings_seen")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newSQLite)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	runStoreContract(t, newPostgres)
}

func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	start := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("mark seen is idempotent", func(t *testing.T) {
		clock := &testClock{now: start}
		s := newStore(t, clock)
		p := posting(1)

		require.NoError(t, s.MarkSeen(ctx, p))
		clock.Advance(time.Hour)
		require.NoError(t, s.MarkSeen(ctx, p))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total)

		recs, err := s.RecentPostings(ctx, 7)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.True(t, recs[0].FirstSeenAt.Equal(start))
		assert.True(t, recs[0].LastSeenAt.Equal(start.Add(time.Hour)))
		assert.Nil(t, recs[0].EmailedAt)
		assert.Equal(t, p.Hash(), recs[0].Hash)
	})

	t.Run("has seen", func(t *testing.T) {
		s := newStore(t, &testClock{now: start})
		seen, err := s.HasSeen(ctx, posting(1))
		require.NoError(t, err)
		assert.False(t, seen)

		require.NoError(t, s.MarkSeen(ctx, posting(1)))
		seen, err = s.HasSeen(ctx, posting(1))
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("filter new keeps order and marks everything", func(t *testing.T) {
		clock := &testClock{now: start}
		s := newStore(t, clock)
		require.NoError(t, s.MarkSeen(ctx, posting(2)))

		clock.Advance(time.Minute)
		fresh, err := s.FilterNew(ctx, []models.Posting{posting(3), posting(2), posting(1)})
		require.NoError(t, err)
		require.Len(t, fresh, 2)
		assert.Equal(t, posting(3).URL, fresh[0].URL)
		assert.Equal(t, posting(1).URL, fresh[1].URL)

		again, err := s.FilterNew(ctx, []models.Posting{posting(1), posting(2), posting(3)})
		require.NoError(t, err)
		assert.Empty(t, again)

		recs, err := s.RecentPostings(ctx, 7)
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})

	t.Run("emailed postings never pass again", func(t *testing.T) {
		s := newStore(t, &testClock{now: start})
		batch := []models.Posting{posting(1), posting(2)}

		_, err := s.FilterNew(ctx, batch)
		require.NoError(t, err)
		require.NoError(t, s.MarkEmailed(ctx, posting(1)))
		require.NoError(t, s.MarkEmailed(ctx, posting(1)))

		for i := 0; i < 3; i++ {
			out, err := s.FilterNotEmailed(ctx, batch)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, posting(2).URL, out[0].URL)
		}

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.StoreStats{Total: 2, Emailed: 1, UniqueCompanies: 2}, stats)
	})

	t.Run("emailed without prior sighting is remembered", func(t *testing.T) {
		s := newStore(t, &testClock{now: start})
		require.NoError(t, s.MarkEmailed(ctx, posting(5)))

		out, err := s.FilterNotEmailed(ctx, []models.Posting{posting(5), posting(6)})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, posting(6).URL, out[0].URL)
	})

	t.Run("clear old and recent window", func(t *testing.T) {
		clock := &testClock{now: start}
		s := newStore(t, clock)
		require.NoError(t, s.MarkSeen(ctx, posting(1)))

		clock.Advance(10 * 24 * time.Hour)
		require.NoError(t, s.MarkSeen(ctx, posting(2)))

		recent, err := s.RecentPostings(ctx, 7)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, posting(2).URL, recent[0].URL)

		removed, err := s.ClearOld(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total)
	})
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), "")
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
}
