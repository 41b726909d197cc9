package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(pk, sk string) Item {
	return Item{"pk": Str(pk), "sk": Str(sk)}
}

func TestDedupe_LastWriteWinsPreservingFirstSeenOrder(t *testing.T) {
	items := []Item{
		item("A", "1"),
		item("B", "1"),
		{"pk": Str("A"), "sk": Str("1"), "v": Str("second")},
	}

	out := dedupe(items)

	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].PK(), "first-seen key order must be preserved")
	assert.Equal(t, "second", out[0].GetString("v"), "the later duplicate's value must win")
	assert.Equal(t, "B", out[1].PK())
}

func TestChunk_SplitsIntoBoundedGroups(t *testing.T) {
	items := make([]Item, 7)
	for i := range items {
		items[i] = item("A", string(rune('a'+i)))
	}

	chunks := chunk(items, 3)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 3)
	assert.Len(t, chunks[2], 1)
}

func TestChunk_ZeroSizeReturnsSingleGroup(t *testing.T) {
	items := []Item{item("A", "1"), item("A", "2")}
	chunks := chunk(items, 0)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 2)
}

// fakeBatchWriter lets retryingBatchPut's chunking and retry behavior
// be exercised without a real backend: for the first failFor calls,
// writeBatch reports the first item it was given as "unprocessed";
// after that it accepts everything.
type fakeBatchWriter struct {
	limit      int
	failFor    int
	writeCalls int
}

func (w *fakeBatchWriter) batchSizeLimit() int { return w.limit }

func (w *fakeBatchWriter) writeBatch(_ context.Context, items []Item) ([]Item, error) {
	w.writeCalls++
	if w.failFor <= 0 {
		return nil, nil
	}
	w.failFor--
	return items[:1], nil
}

func TestRetryingBatchPut_RetriesUnprocessedThenSucceeds(t *testing.T) {
	w := &fakeBatchWriter{limit: 10, failFor: 1}
	items := []Item{item("A", "1"), item("A", "2")}

	err := retryingBatchPut(context.Background(), w, items, zerolog.Nop())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, w.writeCalls, 2, "a chunk with unprocessed items must be retried")
}

type alwaysFailBatchWriter struct{ limit int }

func (w *alwaysFailBatchWriter) batchSizeLimit() int { return w.limit }

func (w *alwaysFailBatchWriter) writeBatch(_ context.Context, items []Item) ([]Item, error) {
	return items, nil
}

func TestRetryingBatchPut_ExhaustsRetryBudget(t *testing.T) {
	w := &alwaysFailBatchWriter{limit: 10}
	items := []Item{item("A", "1")}

	err := retryingBatchPut(context.Background(), w, items, zerolog.Nop())

	assert.Error(t, err)
}

type erroringBatchWriter struct{ limit int }

func (w *erroringBatchWriter) batchSizeLimit() int { return w.limit }

func (w *erroringBatchWriter) writeBatch(context.Context, []Item) ([]Item, error) {
	return nil, errors.New("backend unavailable")
}

func TestRetryingBatchPut_PropagatesWriteError(t *testing.T) {
	w := &erroringBatchWriter{limit: 10}
	err := retryingBatchPut(context.Background(), w, []Item{item("A", "1")}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRetryingBatchPut_DedupesBeforeChunking(t *testing.T) {
	w := &fakeBatchWriter{limit: 10}
	items := []Item{item("A", "1"), item("A", "1"), item("A", "1")}

	err := retryingBatchPut(context.Background(), w, items, zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, 1, w.writeCalls, "three duplicate keys must collapse into a single write of one item")
}

type fakeBatchGetter struct {
	limit int
	data  map[ItemKey]Item
	calls int
}

func (g *fakeBatchGetter) batchGetSizeLimit() int { return g.limit }

func (g *fakeBatchGetter) getBatch(_ context.Context, keys []ItemKey) (map[ItemKey]Item, []ItemKey, error) {
	g.calls++
	found := make(map[ItemKey]Item, len(keys))
	for _, k := range keys {
		if v, ok := g.data[k]; ok {
			found[k] = v
		}
	}
	return found, nil, nil
}

func TestRetryingBatchGet_ChunksAndDedupesKeys(t *testing.T) {
	g := &fakeBatchGetter{limit: 1, data: map[ItemKey]Item{
		{PK: "A", SK: "1"}: item("A", "1"),
		{PK: "A", SK: "2"}: item("A", "2"),
	}}
	keys := []ItemKey{{PK: "A", SK: "1"}, {PK: "A", SK: "1"}, {PK: "A", SK: "2"}, {PK: "A", SK: "3"}}

	out, err := retryingBatchGet(context.Background(), g, keys, zerolog.Nop())

	require.NoError(t, err)
	assert.Len(t, out, 2, "missing keys must simply be absent, not an error")
	assert.Equal(t, 3, g.calls, "three distinct keys at a batch-get limit of 1 must take three calls")
}

func TestSortItems_AscendingAndDescending(t *testing.T) {
	items := []Item{item("A", "3"), item("A", "1"), item("A", "2")}
	keyOf := func(it Item) string { return it.SK() }

	asc := sortItems(append([]Item(nil), items...), Ascending, keyOf)
	assert.Equal(t, []string{"1", "2", "3"}, []string{asc[0].SK(), asc[1].SK(), asc[2].SK()})

	desc := sortItems(append([]Item(nil), items...), Descending, keyOf)
	assert.Equal(t, []string{"3", "2", "1"}, []string{desc[0].SK(), desc[1].SK(), desc[2].SK()})
}
