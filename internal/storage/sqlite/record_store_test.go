package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

func TestRecordStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(ctx, Config{Path: filepath.Join(t.TempDir(), "db", "roster.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fetched := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	records := []crawler.Record{
		{ID: "2", DisplayName: "Zúñiga", Committees: []string{"Minería"}, FetchedAt: fetched},
		{ID: "1", DisplayName: "Araya", FetchedAt: fetched},
	}
	require.NoError(t, store.SaveRecords(ctx, "run-1", records))

	got, err := store.LoadRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Araya", got[0].DisplayName)
	require.Empty(t, got[0].Committees)
	require.Equal(t, []string{"Minería"}, got[1].Committees)
	require.True(t, fetched.Equal(got[1].FetchedAt))

	empty, err := store.LoadRecords(ctx, "run-2")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSaveRecordsUpsertsSameRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(ctx, Config{Path: filepath.Join(t.TempDir(), "roster.db"), Table: "roster"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SaveRecords(ctx, "run-1", []crawler.Record{{ID: "1", DisplayName: "Old"}}))
	require.NoError(t, store.SaveRecords(ctx, "run-1", []crawler.Record{{ID: "1", DisplayName: "New"}}))

	got, err := store.LoadRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "New", got[0].DisplayName)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = New(context.Background(), Config{Path: filepath.Join(t.TempDir(), "x.db"), Table: "bad-name"})
	require.Error(t, err)
}

func TestSaveRecordsRequiresRunID(t *testing.T) {
	t.Parallel()

	store, err := New(context.Background(), Config{Path: filepath.Join(t.TempDir(), "roster.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.Error(t, store.SaveRecords(context.Background(), "", nil))
}
