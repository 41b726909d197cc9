package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/stockdata/internal/apperr"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// sqliteBatchSize emulates a store-imposed batch limit so BatchPut and
// BatchGetItems chunk the same way they would against a real
// batch-limited backend. SQLite never reports unprocessed items, so
// the retry loop in retryingBatchPut is not entered.
const sqliteBatchSize = 25

// SQLiteRepository is a Repository backed by a single SQLite table
// that carries the primary key plus the three secondary-index key
// pairs as indexed columns, with the full item persisted as JSON in
// an "attrs" column. It exists so tests and local runs exercise the
// exact key schema in spec §3 without a network dependency.
//
// Connection and PRAGMA setup follows the teacher's profile-based
// SQLite wrapper (internal/database/db.go): WAL journal mode, a
// bounded connection pool, and foreign keys on, tuned here for a
// single append-mostly table rather than the teacher's multi-database
// "ledger/cache/standard" profiles.
type SQLiteRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteRepository opens (and migrates) a SQLite-backed repository
// at path. A DSN such as "file:<name>?mode=memory&cache=shared" gives
// an in-memory instance shared across connections in the same
// process; the tests open one such named instance per test.
func NewSQLiteRepository(path string, log zerolog.Logger) (*SQLiteRepository, error) {
	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	if strings.Contains(path, "?") {
		connStr = path // caller already fully specified the DSN (e.g. in-memory with cache=shared)
	}

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1) // single-writer SQLite; avoids SQLITE_BUSY under WAL

	r := &SQLiteRepository{db: conn, log: log.With().Str("component", "sqlite_repository").Logger()}
	if err := r.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS items (
	pk TEXT NOT NULL,
	sk TEXT NOT NULL,
	gsi1pk TEXT NOT NULL DEFAULT '',
	gsi1sk TEXT NOT NULL DEFAULT '',
	gsi2pk TEXT NOT NULL DEFAULT '',
	gsi2sk TEXT NOT NULL DEFAULT '',
	score_pk TEXT NOT NULL DEFAULT '',
	score_sk TEXT NOT NULL DEFAULT '',
	attrs TEXT NOT NULL,
	PRIMARY KEY (pk, sk)
);
CREATE INDEX IF NOT EXISTS idx_items_by_symbol ON items(gsi1pk, gsi1sk);
CREATE INDEX IF NOT EXISTS idx_items_by_market_status ON items(gsi2pk, gsi2sk);
CREATE INDEX IF NOT EXISTS idx_items_by_score ON items(score_pk, score_sk);
`
	_, err := r.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("store: migrate sqlite schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) putTx(ctx context.Context, exec execer, item Item) error {
	raw, err := item.toJSON()
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `
INSERT INTO items (pk, sk, gsi1pk, gsi1sk, gsi2pk, gsi2sk, score_pk, score_sk, attrs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(pk, sk) DO UPDATE SET
	gsi1pk = excluded.gsi1pk, gsi1sk = excluded.gsi1sk,
	gsi2pk = excluded.gsi2pk, gsi2sk = excluded.gsi2sk,
	score_pk = excluded.score_pk, score_sk = excluded.score_sk,
	attrs = excluded.attrs`,
		item.PK(), item.SK(),
		item.GetString("gsi1pk"), item.GetString("gsi1sk"),
		item.GetString("gsi2pk"), item.GetString("gsi2sk"),
		item.GetString("score_pk"), item.GetString("score_sk"),
		string(raw),
	)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutItem overwrites the whole item, keyed by (pk, sk).
func (r *SQLiteRepository) PutItem(ctx context.Context, item Item) error {
	if item.PK() == "" || item.SK() == "" {
		return apperr.NewInvalidInput("item must have non-empty pk and sk")
	}
	if err := r.putTx(ctx, r.db, item); err != nil {
		return apperr.NewStoreError("PutItem", err)
	}
	return nil
}

// GetItem returns the item at (pk, sk), or ok=false if absent.
func (r *SQLiteRepository) GetItem(ctx context.Context, pk, sk string) (Item, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT attrs FROM items WHERE pk = ? AND sk = ?`, pk, sk).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.NewStoreError("GetItem", err)
	}
	item, err := fromJSON([]byte(raw))
	if err != nil {
		return nil, false, apperr.NewStoreError("GetItem", err)
	}
	return item, true, nil
}

// DeleteItem removes the item at (pk, sk), if present.
func (r *SQLiteRepository) DeleteItem(ctx context.Context, pk, sk string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE pk = ? AND sk = ?`, pk, sk); err != nil {
		return apperr.NewStoreError("DeleteItem", err)
	}
	return nil
}

// UpdateItem merges updates into the existing item (or creates one if
// absent) and returns the resulting item, matching DynamoDB's
// UpdateItem-with-SET-expressions semantics in spirit without needing
// an expression language for this narrow, internal use.
func (r *SQLiteRepository) UpdateItem(ctx context.Context, pk, sk string, updates Item) (Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.NewStoreError("UpdateItem", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, found, err := r.getTx(ctx, tx, pk, sk)
	if err != nil {
		return nil, apperr.NewStoreError("UpdateItem", err)
	}
	if !found {
		existing = Item{}
	}
	merged := existing.Clone()
	merged["pk"] = Str(pk)
	merged["sk"] = Str(sk)
	for k, v := range updates {
		merged[k] = v
	}
	if err := r.putTx(ctx, tx, merged); err != nil {
		return nil, apperr.NewStoreError("UpdateItem", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.NewStoreError("UpdateItem", err)
	}
	return merged, nil
}

func (r *SQLiteRepository) getTx(ctx context.Context, tx *sql.Tx, pk, sk string) (Item, bool, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT attrs FROM items WHERE pk = ? AND sk = ?`, pk, sk).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	item, err := fromJSON([]byte(raw))
	return item, true, err
}

// Query implements the primary index and all three secondary indexes
// against their respective (partition, sort) column pairs.
func (r *SQLiteRepository) Query(ctx context.Context, in QueryInput) ([]Item, error) {
	pkCol, skCol := "pk", "sk"
	switch in.IndexName {
	case "", "primary":
		// defaults above
	case "bySymbol":
		pkCol, skCol = "gsi1pk", "gsi1sk"
	case "byMarketStatus":
		pkCol, skCol = "gsi2pk", "gsi2sk"
	case "byScore":
		pkCol, skCol = "score_pk", "score_sk"
	default:
		return nil, apperr.NewInvalidInput("unknown index %q", in.IndexName)
	}

	query := fmt.Sprintf(`SELECT attrs, %s FROM items WHERE %s = ?`, skCol, pkCol)
	args := []any{in.PartitionValue}
	if in.SortPrefix != "" {
		query += fmt.Sprintf(` AND %s LIKE ? ESCAPE '\'`, skCol)
		args = append(args, likePrefix(in.SortPrefix))
	}
	if in.SortGTE != "" {
		query += fmt.Sprintf(` AND %s >= ?`, skCol)
		args = append(args, in.SortGTE)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.NewStoreError("Query", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var raw, sortVal string
		if err := rows.Scan(&raw, &sortVal); err != nil {
			return nil, apperr.NewStoreError("Query", err)
		}
		item, err := fromJSON([]byte(raw))
		if err != nil {
			return nil, apperr.NewStoreError("Query", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreError("Query", err)
	}

	keyOf := func(it Item) string { return it.GetString(skCol) }
	sortItems(items, in.Direction, keyOf)
	if in.Limit > 0 && len(items) > in.Limit {
		items = items[:in.Limit]
	}
	return items, nil
}

// Scan is the full-table fallback used when no secondary index
// matches the access pattern (spec 4.4 ScanCatalog).
func (r *SQLiteRepository) Scan(ctx context.Context, in ScanInput) ([]Item, error) {
	query := `SELECT attrs FROM items`
	var args []any
	if in.PKPrefix != "" {
		query += ` WHERE pk LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(in.PKPrefix))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.NewStoreError("Scan", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperr.NewStoreError("Scan", err)
		}
		item, err := fromJSON([]byte(raw))
		if err != nil {
			return nil, apperr.NewStoreError("Scan", err)
		}
		items = append(items, item)
		if in.Limit > 0 && len(items) >= in.Limit {
			break
		}
	}
	return items, rows.Err()
}

// BatchPut dedups, chunks, and retries through retryingBatchPut.
func (r *SQLiteRepository) BatchPut(ctx context.Context, items []Item) error {
	return retryingBatchPut(ctx, r, items, r.log)
}

func (r *SQLiteRepository) batchSizeLimit() int { return sqliteBatchSize }

// BatchGetItems fetches items for the given keys, deduplicating and
// chunking through the shared retry policy; a single in-process
// SQLite connection never truly "throttles", but the shared path
// keeps both backends' batch-get behavior identical.
func (r *SQLiteRepository) BatchGetItems(ctx context.Context, keys []ItemKey) (map[ItemKey]Item, error) {
	return retryingBatchGet(ctx, r, keys, r.log)
}

func (r *SQLiteRepository) batchGetSizeLimit() int { return sqliteBatchSize }

func (r *SQLiteRepository) getBatch(ctx context.Context, keys []ItemKey) (map[ItemKey]Item, []ItemKey, error) {
	found := make(map[ItemKey]Item, len(keys))
	for _, k := range keys {
		var raw string
		err := r.db.QueryRowContext(ctx, `SELECT attrs FROM items WHERE pk = ? AND sk = ?`, k.PK, k.SK).Scan(&raw)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		item, err := fromJSON([]byte(raw))
		if err != nil {
			return nil, nil, err
		}
		found[k] = item
	}
	return found, nil, nil
}

// writeBatch applies a chunk inside one transaction. SQLite never
// "throttles", so there are no unprocessed items on success; a
// transaction error fails the whole chunk, and retryingBatchPut
// returns it as a StoreError without retrying.
func (r *SQLiteRepository) writeBatch(ctx context.Context, items []Item) ([]Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range items {
		if it.PK() == "" || it.SK() == "" {
			return nil, fmt.Errorf("store: batch item missing pk/sk")
		}
		if err := r.putTx(ctx, tx, it); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return nil, nil
}

func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
