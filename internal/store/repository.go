package store

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/rs/zerolog"
)

// Direction controls sort order for an index query.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// QueryInput selects a page (or, transparently, all pages up to
// Limit) from one index.
type QueryInput struct {
	// IndexName is "" for the primary index, or one of "bySymbol",
	// "byMarketStatus", "byScore".
	IndexName string
	// PartitionValue is the exact partition key (or GSI partition
	// key) to match.
	PartitionValue string
	// SortPrefix, if non-empty, restricts results to sort keys with
	// this prefix (DynamoDB begins_with / SQLite LIKE 'prefix%').
	SortPrefix string
	// SortGTE, if non-empty, restricts results to sort keys >= this
	// value lexically (used by the score index's threshold scan).
	SortGTE string
	// Limit caps the number of items returned; 0 means unbounded.
	Limit int
	// Direction controls scan order on the sort key.
	Direction Direction
}

// ScanInput drives a full-table scan fallback (4.4 ScanCatalog).
type ScanInput struct {
	// PKPrefix, if set, restricts the scan to partition keys with this prefix.
	PKPrefix string
	Limit    int
}

// Repository is the minimum persistence contract spec §6 requires:
// point CRUD, index queries with transparent pagination, batched
// writes with automatic retry, and a scan fallback. Implementations
// must make BatchPut idempotent and Query/Scan safe to call
// concurrently.
type Repository interface {
	PutItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, pk, sk string) (Item, bool, error)
	DeleteItem(ctx context.Context, pk, sk string) error
	// UpdateItem merges the given attributes into the existing item
	// (creating it if absent) and returns the resulting item.
	UpdateItem(ctx context.Context, pk, sk string, updates Item) (Item, error)
	Query(ctx context.Context, in QueryInput) ([]Item, error)
	Scan(ctx context.Context, in ScanInput) ([]Item, error)
	// BatchPut writes items in store-sized chunks, de-duplicating by
	// (pk, sk) within the batch (last write wins) and retrying any
	// unprocessed items with exponential backoff and jitter.
	BatchPut(ctx context.Context, items []Item) error
	// BatchGetItems reads items for a set of (pk, sk) keys, chunked to
	// the store's batch-get size limit, retrying unprocessed keys with
	// the same backoff policy as BatchPut. Missing keys are simply
	// absent from the result, not an error.
	BatchGetItems(ctx context.Context, keys []ItemKey) (map[ItemKey]Item, error)
}

// ItemKey identifies a single item by its primary (pk, sk) pair.
type ItemKey struct {
	PK string
	SK string
}

// DefaultBatchRetries and DefaultBatchBaseDelay carry forward the
// original implementation's batch-write retry policy (original_source
// database/repository.py's caller configuration): three retries
// starting at a 200ms base delay, doubled with full jitter each
// attempt.
const (
	DefaultBatchRetries   = 3
	DefaultBatchBaseDelay = 200 * time.Millisecond
)

// dedupe collapses items sharing a (pk, sk) to the last one in slice
// order, matching "last write wins" for an in-batch duplicate, while
// preserving first-seen order for the surviving keys.
func dedupe(items []Item) []Item {
	order := make([]string, 0, len(items))
	latest := make(map[string]Item, len(items))
	for _, it := range items {
		k := it.key()
		if _, exists := latest[k]; !exists {
			order = append(order, k)
		}
		latest[k] = it
	}
	out := make([]Item, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k])
	}
	return out
}

// chunk splits items into groups of at most size.
func chunk(items []Item, size int) [][]Item {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]Item
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// rawBatchWriter is the backend-specific primitive BatchPut builds
// retry logic on top of: write as many items as possible, returning
// the subset the backend could not accept (e.g. throttled).
type rawBatchWriter interface {
	writeBatch(ctx context.Context, items []Item) (unprocessed []Item, err error)
	batchSizeLimit() int
}

// retryingBatchPut implements the BatchPut contract against any
// rawBatchWriter: dedup, chunk to the backend's batch size limit, and
// retry unprocessed items with exponential backoff plus full jitter.
// Shared by both the DynamoDB and SQLite backends so the retry policy
// (and its test coverage) lives in one place.
func retryingBatchPut(ctx context.Context, w rawBatchWriter, items []Item, log zerolog.Logger) error {
	deduped := dedupe(items)
	for _, group := range chunk(deduped, w.batchSizeLimit()) {
		pending := group
		delay := DefaultBatchBaseDelay
		for attempt := 0; ; attempt++ {
			unprocessed, err := w.writeBatch(ctx, pending)
			if err != nil {
				return apperr.NewStoreError("BatchPut", err)
			}
			if len(unprocessed) == 0 {
				break
			}
			if attempt >= DefaultBatchRetries {
				return apperr.NewStoreError("BatchPut",
					errTooManyUnprocessed(len(unprocessed)))
			}
			log.Warn().
				Int("unprocessed", len(unprocessed)).
				Int("attempt", attempt+1).
				Msg("retrying unprocessed batch items")
			sleepWithJitter(ctx, delay)
			delay *= 2
			pending = unprocessed
		}
	}
	return nil
}

// rawBatchGetter is the backend-specific primitive BatchGetItems
// builds retry logic on top of: fetch as many of the requested keys
// as possible, returning the subset the backend could not serve this
// round (e.g. throttled), distinct from keys that simply don't exist.
type rawBatchGetter interface {
	getBatch(ctx context.Context, keys []ItemKey) (found map[ItemKey]Item, unprocessed []ItemKey, err error)
	batchGetSizeLimit() int
}

// retryingBatchGet implements BatchGetItems against any rawBatchGetter
// using the same chunk-and-retry-with-jitter policy as
// retryingBatchPut.
func retryingBatchGet(ctx context.Context, g rawBatchGetter, keys []ItemKey, log zerolog.Logger) (map[ItemKey]Item, error) {
	deduped := dedupeKeys(keys)
	out := make(map[ItemKey]Item, len(deduped))

	groups := make([][]ItemKey, 0)
	limit := g.batchGetSizeLimit()
	if limit <= 0 {
		limit = len(deduped)
	}
	for i := 0; i < len(deduped); i += limit {
		end := i + limit
		if end > len(deduped) {
			end = len(deduped)
		}
		groups = append(groups, deduped[i:end])
	}

	for _, group := range groups {
		pending := group
		delay := DefaultBatchBaseDelay
		for attempt := 0; ; attempt++ {
			found, unprocessed, err := g.getBatch(ctx, pending)
			if err != nil {
				return nil, apperr.NewStoreError("BatchGetItems", err)
			}
			for k, v := range found {
				out[k] = v
			}
			if len(unprocessed) == 0 {
				break
			}
			if attempt >= DefaultBatchRetries {
				return nil, apperr.NewStoreError("BatchGetItems",
					errTooManyUnprocessed(len(unprocessed)))
			}
			log.Warn().
				Int("unprocessed", len(unprocessed)).
				Int("attempt", attempt+1).
				Msg("retrying unprocessed batch-get keys")
			sleepWithJitter(ctx, delay)
			delay *= 2
			pending = unprocessed
		}
	}
	return out, nil
}

func dedupeKeys(keys []ItemKey) []ItemKey {
	seen := make(map[ItemKey]bool, len(keys))
	out := make([]ItemKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func sleepWithJitter(ctx context.Context, base time.Duration) {
	jitter := time.Duration(rand.Int63n(int64(base)))
	select {
	case <-time.After(base + jitter):
	case <-ctx.Done():
	}
}

type errTooManyUnprocessed int

func (e errTooManyUnprocessed) Error() string {
	return "too many unprocessed items after retry budget exhausted"
}

// sortItems orders items by the sort key produced by keyOf, ascending
// or descending in place, and returns the slice. keyOf lets a query
// against a secondary index sort on that index's sort key attribute
// rather than the primary "sk".
func sortItems(items []Item, dir Direction, keyOf func(Item) string) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		if dir == Descending {
			return keyOf(items[i]) > keyOf(items[j])
		}
		return keyOf(items[i]) < keyOf(items[j])
	})
	return items
}
