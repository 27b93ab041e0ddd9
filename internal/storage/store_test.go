package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Dir: t.TempDir(), File: "finscope.db"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fptr(f float64) *float64 { return &f }
func sptr(s string) *string   { return &s }

func TestOpen_Idempotent(t *testing.T) {
	cfg := Config{Dir: filepath.Join(t.TempDir(), "nested", "data"), File: "finscope.db"}

	first, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	_, err = first.InsertPoints(context.Background(), []core.TimeseriesPoint{{Metric: "SPY", Timestamp: "2024-01-01", Value: fptr(1)}})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer second.Close()

	obs, err := second.QueryPoints(context.Background(), "SPY", "", "")
	require.NoError(t, err)
	assert.Len(t, obs, 1, "reopening must keep existing rows")
	assert.NoError(t, second.Ping(context.Background()))
}

func TestMigrate_ReportsStatus(t *testing.T) {
	cfg := Config{Dir: t.TempDir(), File: "finscope.db"}

	first, err := Migrate(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.EqualValues(t, 2, first.Version)
	assert.False(t, first.Dirty)

	second, err := Migrate(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.EqualValues(t, 2, second.Version)
}

func TestOpen_UnwritableLocation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Open(context.Background(), Config{Dir: filepath.Join(blocker, "data"), File: "finscope.db"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestOpen_EmptyFileName(t *testing.T) {
	_, err := Open(context.Background(), Config{Dir: t.TempDir()})
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestInsertPoints_QueryOrderingAndBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.InsertPoints(ctx, []core.TimeseriesPoint{
		{Source: "fred", Metric: "DGS10", Timestamp: "2024-01-03", Value: fptr(4.1), IngestTS: "now"},
		{Source: "fred", Metric: "DGS10", Timestamp: "2024-01-01", Value: fptr(4.0), IngestTS: "now"},
		{Source: "fred", Metric: "DGS10", Timestamp: "2024-01-02", Value: nil, IngestTS: "now", Meta: sptr("gap")},
		{Source: "fred", Metric: "DGS10", Timestamp: "2024-01-02", Value: fptr(3.9), IngestTS: "now"},
		{Source: "alpha", Metric: "SPY", Timestamp: "2024-01-02", Value: fptr(470), IngestTS: "now"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	obs, err := s.QueryPoints(ctx, "DGS10", "", "")
	require.NoError(t, err)
	require.Len(t, obs, 4)
	ts := make([]string, len(obs))
	for i, o := range obs {
		ts[i] = o.Timestamp
	}
	assert.True(t, sort.StringsAreSorted(ts), "timestamps must be non-decreasing: %v", ts)
	assert.Nil(t, obs[1].Value, "duplicate timestamps keep submission order, null first")
	assert.Equal(t, 3.9, *obs[2].Value)

	bounded, err := s.QueryPoints(ctx, "DGS10", "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	require.Len(t, bounded, 3)
	assert.Equal(t, "2024-01-01", bounded[0].Timestamp)
	assert.Equal(t, "2024-01-02", bounded[2].Timestamp)

	from, err := s.QueryPoints(ctx, "DGS10", "2024-01-03", "")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, 4.1, *from[0].Value)
}

func TestQueryPoints_UnknownMetric(t *testing.T) {
	s := newTestStore(t)

	obs, err := s.QueryPoints(context.Background(), "UNKNOWN_METRIC", "", "")
	require.NoError(t, err)
	assert.NotNil(t, obs)
	assert.Empty(t, obs)
}

func TestInsertPoints_Empty(t *testing.T) {
	s := newTestStore(t)

	n, err := s.InsertPoints(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertTransaction_ReplacesMutableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTransaction(ctx, core.Transaction{
		ID: "t1", Date: "2024-01-05", Amount: 50, Currency: sptr("USD"), Name: sptr("Cafe"),
		Category: sptr("Dining"), AccountID: sptr("acc"), Raw: `{"id":"t1","amount":50}`,
	}))
	require.NoError(t, s.UpsertTransaction(ctx, core.Transaction{
		ID: "t1", Date: "2024-01-06", Amount: 75, Name: sptr("Cafe"),
		Category: sptr("Dining"), Raw: `{"id":"t1","amount":75}`,
	}))

	n, err := s.CountTransactions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, ok, err := s.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-06", got.Date)
	assert.Equal(t, 75.0, got.Amount)
	assert.Nil(t, got.Currency, "full replace must clear currency")
	assert.Nil(t, got.AccountID)
	assert.Equal(t, `{"id":"t1","amount":75}`, got.Raw)
}

func TestSpendRevision_SeesWritesFromOtherHandles(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Dir: t.TempDir(), File: "shared.db"}
	reader, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	writer, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	start, err := reader.SpendRevision(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.UpsertTransaction(ctx, core.Transaction{ID: "t1", Date: "2024-01-05", Amount: 5, Raw: "{}"}))
	afterInsert, err := reader.SpendRevision(ctx)
	require.NoError(t, err)
	assert.Greater(t, afterInsert, start)

	require.NoError(t, writer.UpsertTransaction(ctx, core.Transaction{ID: "t1", Date: "2024-01-05", Amount: 6, Raw: "{}"}))
	afterReplace, err := reader.SpendRevision(ctx)
	require.NoError(t, err)
	assert.Greater(t, afterReplace, afterInsert, "an upsert that replaces a row still bumps the revision")

	_, err = writer.InsertPoints(ctx, []core.TimeseriesPoint{{Metric: "CPI", Timestamp: "2024-01-01"}})
	require.NoError(t, err)
	afterPoints, err := reader.SpendRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, afterReplace, afterPoints)
}

func TestGetTransaction_Missing(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetTransaction(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpendSince_FiltersWindowAndCredits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, txn := range []core.Transaction{
		{ID: "old", Date: "2023-11-01", Amount: 10, Raw: "{}"},
		{ID: "edge", Date: "2024-01-01", Amount: 20, Name: sptr("Edge"), Raw: "{}"},
		{ID: "credit", Date: "2024-01-10", Amount: -30, Raw: "{}"},
		{ID: "zero", Date: "2024-01-10", Amount: 0, Raw: "{}"},
		{ID: "undated", Amount: 40, Raw: "{}"},
		{ID: "new", Date: "2024-01-15", Amount: 5, Category: sptr("Shopping,Retail"), Raw: "{}"},
	} {
		require.NoError(t, s.UpsertTransaction(ctx, txn))
	}

	rows, err := s.SpendSince(ctx, "2024-01-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 20.0, rows[0].Amount)
	assert.Equal(t, "Edge", *rows[0].Name)
	assert.Nil(t, rows[1].Name)
	assert.Equal(t, "Shopping,Retail", *rows[1].Category)
}

func TestConcurrentWritesAndReads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.InsertPoints(ctx, []core.TimeseriesPoint{
				{Metric: "SPY", Timestamp: "2024-01-01", Value: fptr(1)},
				{Metric: "SPY", Timestamp: "2024-01-02", Value: fptr(2)},
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			obs, err := s.QueryPoints(ctx, "SPY", "", "")
			assert.NoError(t, err)
			assert.Zero(t, len(obs)%2, "a batch must never be partially visible")
		}()
	}
	wg.Wait()

	obs, err := s.QueryPoints(ctx, "SPY", "", "")
	require.NoError(t, err)
	assert.Len(t, obs, 16)
}
