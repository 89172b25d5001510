package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitides/aitides/pkg/domain"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&mode=rwc"
	store, err := New(context.Background(), Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleDigest(date string) domain.Digest {
	return domain.Digest{
		Date:        date,
		GeneratedAt: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		Overview:    "overview for " + date,
		Papers: []domain.RefinedItem{{
			ScoredItem: domain.ScoredItem{
				CandidateItem: domain.CandidateItem{ID: "p1", Kind: domain.KindPaper, Title: "Paper 1"},
				AIScore:       8, Composite: 5.2,
			},
			Summary: domain.Summary{MainPoint: "main", KeyFacts: []string{"fact"}, WhyItMatters: "why"},
			Tags:    []string{"agents"},
		}},
		News: []domain.RefinedItem{{
			ScoredItem: domain.ScoredItem{
				CandidateItem: domain.CandidateItem{ID: "n1", Kind: domain.KindNews, Title: "News 1"},
			},
		}},
		Warnings: []domain.Warning{{Stage: "l2", Code: domain.WarnRemoteCallFailure, Detail: "batch 0"}},
	}
}

func TestStore_SaveAndGetDigest(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDigest(ctx, sampleDigest("2026-08-31")))

	got, err := store.GetDigest(ctx, "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, "overview for 2026-08-31", got.Overview)
	require.Len(t, got.Papers, 1)
	assert.Equal(t, "p1", got.Papers[0].ID)
	assert.Equal(t, []string{"agents"}, got.Papers[0].Tags)
	assert.InDelta(t, 5.2, got.Papers[0].Composite, 0.0001)
	require.Len(t, got.News, 1)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, domain.WarnRemoteCallFailure, got.Warnings[0].Code)
}

func TestStore_GetDigestNotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.GetDigest(context.Background(), "2020-01-01")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveDigestReplacesSameDate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDigest(ctx, sampleDigest("2026-08-31")))

	updated := sampleDigest("2026-08-31")
	updated.Overview = "recomputed"
	updated.Papers = append(updated.Papers, domain.RefinedItem{ScoredItem: domain.ScoredItem{
		CandidateItem: domain.CandidateItem{ID: "p2", Kind: domain.KindPaper, Title: "Paper 2"},
	}})
	require.NoError(t, store.SaveDigest(ctx, updated))

	got, err := store.GetDigest(ctx, "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, "recomputed", got.Overview)
	assert.Len(t, got.Papers, 2, "upsert replaced the row, not appended a second one")
}

func TestStore_GetLatestDigest(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.GetLatestDigest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveDigest(ctx, sampleDigest("2026-08-30")))
	require.NoError(t, store.SaveDigest(ctx, sampleDigest("2026-08-31")))
	require.NoError(t, store.SaveDigest(ctx, sampleDigest("2026-08-29")))

	got, err := store.GetLatestDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-31", got.Date)
}

func TestStore_HistoryRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entries, err := store.ListHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ledger := []domain.HistoryEntry{
		{Date: "2026-08-30", PaperCount: 18, NewsCount: 10, TopTitles: []string{"A", "B"}},
		{Date: "2026-08-31", PaperCount: 12, NewsCount: 7, TopTitles: []string{"C"}},
	}
	require.NoError(t, store.ReplaceHistory(ctx, ledger))

	got, err := store.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-08-30", got[0].Date)
	assert.Equal(t, []string{"A", "B"}, got[0].TopTitles)
	assert.Equal(t, 7, got[1].NewsCount)

	// replace swaps the whole ledger
	require.NoError(t, store.ReplaceHistory(ctx, ledger[1:]))
	got, err = store.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2026-08-31", got[0].Date)
}

func TestStore_ReplaceHistoryEmpty(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceHistory(ctx, []domain.HistoryEntry{{Date: "2026-08-31"}}))
	require.NoError(t, store.ReplaceHistory(ctx, nil))

	got, err := store.ListHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
