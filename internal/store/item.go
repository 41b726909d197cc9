// Package store implements the Repository (spec 4.2): CRUD plus
// paginated prefix queries and batched writes against a keyed
// document store with a primary index and two secondary indexes
// (bySymbol, byMarketStatus) plus a score index for the company
// catalog. Two backends satisfy the same Repository interface: a
// DynamoDB-backed implementation for production and a SQLite-backed
// implementation (the same pure-Go driver the teacher uses for its
// local databases) for tests and local development, so the exact key
// schema in spec §3 is exercised without a network dependency.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AttrValue is a tagged scalar attribute value. Exactly one of S, N,
// or B is set. It mirrors a (deliberately narrowed) DynamoDB
// AttributeValue so the same Item shape marshals cleanly to either
// backend without losing the distinction between "numeric, stored as
// exact decimal" and "string" that spec §9 requires.
type AttrValue struct {
	S *string          `json:"s,omitempty"`
	N *decimal.Decimal `json:"n,omitempty"`
	B *bool            `json:"b,omitempty"`
}

// Str builds a string AttrValue.
func Str(v string) AttrValue { return AttrValue{S: &v} }

// Num builds a numeric (exact decimal) AttrValue.
func Num(v decimal.Decimal) AttrValue { return AttrValue{N: &v} }

// NumFloat builds a numeric AttrValue from a float64, for callers
// that already know the value is finite.
func NumFloat(v float64) AttrValue { d := decimal.NewFromFloat(v); return AttrValue{N: &d} }

// Bool builds a boolean AttrValue.
func Bool(v bool) AttrValue { return AttrValue{B: &v} }

// Item is a single row: a flat map of attribute name to value. Every
// item is expected to carry at least "pk" and "sk" string attributes;
// callers populate secondary-index attributes ("gsi1pk", "gsi1sk",
// "gsi2pk", "gsi2sk", "score_pk", "score_sk") only when that item
// participates in the corresponding index.
type Item map[string]AttrValue

// PK returns the item's partition key, or "" if unset/not a string.
func (it Item) PK() string { return it.GetString("pk") }

// SK returns the item's sort key, or "" if unset/not a string.
func (it Item) SK() string { return it.GetString("sk") }

// GetString returns the string value of key, or "" if absent or not a string.
func (it Item) GetString(key string) string {
	if v, ok := it[key]; ok && v.S != nil {
		return *v.S
	}
	return ""
}

// GetBool returns the bool value of key, or false if absent.
func (it Item) GetBool(key string) bool {
	if v, ok := it[key]; ok && v.B != nil {
		return *v.B
	}
	return false
}

// GetDecimal returns the numeric value of key and whether it was present.
func (it Item) GetDecimal(key string) (decimal.Decimal, bool) {
	if v, ok := it[key]; ok && v.N != nil {
		return *v.N, true
	}
	return decimal.Zero, false
}

// Clone returns a shallow copy of the item, safe to mutate without
// affecting the original.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// key returns the (pk, sk) composite identity used for batch dedup.
func (it Item) key() string {
	return it.PK() + "\x00" + it.SK()
}

// toJSON/fromJSON are the identity encoding (Item is already a plain
// map); they define the wire format the SQLite backend persists into
// its "attrs" column.
func (it Item) toJSON() ([]byte, error) {
	return json.Marshal(map[string]AttrValue(it))
}

func fromJSON(raw []byte) (Item, error) {
	var m map[string]AttrValue
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("store: decode item: %w", err)
	}
	return Item(m), nil
}
