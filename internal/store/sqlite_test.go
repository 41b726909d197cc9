package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepository opens a private in-memory SQLite instance per
// test so parallel tests never share state.
func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	repo, err := NewSQLiteRepository(dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepository_PutGetDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.PutItem(ctx, item("STOCK#AAPL", "QUOTE#2025-01-02")))

	got, ok, err := repo.GetItem(ctx, "STOCK#AAPL", "QUOTE#2025-01-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "STOCK#AAPL", got.PK())

	require.NoError(t, repo.DeleteItem(ctx, "STOCK#AAPL", "QUOTE#2025-01-02"))
	_, ok, err = repo.GetItem(ctx, "STOCK#AAPL", "QUOTE#2025-01-02")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteRepository_PutItemRejectsMissingKeys(t *testing.T) {
	repo := newTestRepository(t)
	err := repo.PutItem(context.Background(), Item{"pk": Str("STOCK#AAPL")})
	assert.Error(t, err)
}

func TestSQLiteRepository_UpdateItemMergesAndCreates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	merged, err := repo.UpdateItem(ctx, "STOCK#AAPL", "META#CATALOG", Item{"name": Str("Apple Inc.")})
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", merged.GetString("name"))

	merged, err = repo.UpdateItem(ctx, "STOCK#AAPL", "META#CATALOG", Item{"exchange": Str("NASDAQ")})
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", merged.GetString("name"), "a partial update must preserve existing attributes")
	assert.Equal(t, "NASDAQ", merged.GetString("exchange"))
}

func TestSQLiteRepository_QueryPrimaryIndexWithSortPrefix(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for _, sk := range []string{"QUOTE#2025-01-01", "QUOTE#2025-01-02", "META#CATALOG"} {
		require.NoError(t, repo.PutItem(ctx, item("STOCK#AAPL", sk)))
	}

	rows, err := repo.Query(ctx, QueryInput{PartitionValue: "STOCK#AAPL", SortPrefix: "QUOTE#"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "QUOTE#2025-01-01", rows[0].SK(), "ascending is the default direction")
}

func TestSQLiteRepository_QuerySecondaryIndexByScore(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	low := Item{"pk": Str("STOCK#AAA"), "sk": Str("META"), "score_pk": Str("SCORE#US"), "score_sk": Str("00010.000#AAA")}
	high := Item{"pk": Str("STOCK#BBB"), "sk": Str("META"), "score_pk": Str("SCORE#US"), "score_sk": Str("00090.000#BBB")}
	require.NoError(t, repo.PutItem(ctx, low))
	require.NoError(t, repo.PutItem(ctx, high))

	rows, err := repo.Query(ctx, QueryInput{IndexName: "byScore", PartitionValue: "SCORE#US", SortGTE: "00050.000", Direction: Descending})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "STOCK#BBB", rows[0].PK())
}

func TestSQLiteRepository_QueryRejectsUnknownIndex(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Query(context.Background(), QueryInput{IndexName: "nope", PartitionValue: "x"})
	assert.Error(t, err)
}

func TestSQLiteRepository_ScanWithPKPrefixAndLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for _, pk := range []string{"STOCK#AAA", "STOCK#BBB", "INDEX#SPX"} {
		require.NoError(t, repo.PutItem(ctx, item(pk, "META")))
	}

	rows, err := repo.Scan(ctx, ScanInput{PKPrefix: "STOCK#"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	limited, err := repo.Scan(ctx, ScanInput{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRepository_BatchPutIsIdempotentAndDedupes(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	items := []Item{
		item("STOCK#AAA", "META"),
		item("STOCK#BBB", "META"),
		{"pk": Str("STOCK#AAA"), "sk": Str("META"), "name": Str("second write wins")},
	}

	require.NoError(t, repo.BatchPut(ctx, items))

	got, ok, err := repo.GetItem(ctx, "STOCK#AAA", "META")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second write wins", got.GetString("name"))

	// Re-running the same batch must not error or duplicate rows.
	require.NoError(t, repo.BatchPut(ctx, items))
	rows, err := repo.Scan(ctx, ScanInput{PKPrefix: "STOCK#"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLiteRepository_BatchGetItemsOmitsMissingKeys(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.PutItem(ctx, item("STOCK#AAA", "META")))

	out, err := repo.BatchGetItems(ctx, []ItemKey{
		{PK: "STOCK#AAA", SK: "META"},
		{PK: "STOCK#ZZZ", SK: "META"},
	})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Contains(t, out, ItemKey{PK: "STOCK#AAA", SK: "META"})
}
