// Package keycodec builds and parses the partition/sort/index keys
// used by internal/store. Every function here is pure and total over
// its documented inputs; the error cases are an empty required
// identifier and, for score keys, a negative score or one too wide
// for the padded width. No I/O.
//
// Faithful translation of the schema in database/keys.py: "#" joins
// non-empty segments, and a segment that is empty or absent is
// dropped rather than leaving a stray "##" in the key.
package keycodec

import (
	"fmt"
	"strings"
	"time"
)

const sep = "#"

// concat joins non-empty parts with "#", matching the original's
// _concat helper: nil/empty parts are simply omitted.
func concat(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// PKStock returns the primary partition key for a stock/equity entity.
func PKStock(symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("keycodec: symbol is required for PKStock")
	}
	return concat("STOCK", symbol), nil
}

// PKIndex returns the primary partition key for an index entity,
// kept in a distinct prefix from PKStock so both can share one table.
func PKIndex(symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("keycodec: symbol is required for PKIndex")
	}
	return concat("INDEX", symbol), nil
}

// PKCatalog returns the primary partition key for a catalog entry,
// which is keyed by symbol regardless of asset_type.
func PKCatalog(symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("keycodec: symbol is required for PKCatalog")
	}
	return concat("CATALOG", symbol), nil
}

// PKCompany returns the primary partition key for a company snapshot row.
func PKCompany(symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("keycodec: symbol is required for PKCompany")
	}
	return concat("COMPANY", symbol), nil
}

// SKMeta returns the sort key for a metadata entity, e.g. META#CATALOG
// or META#COMPANY, optionally suffixed with an RFC3339 timestamp.
func SKMeta(entityType string, timestamp ...time.Time) string {
	ts := ""
	if len(timestamp) > 0 {
		ts = timestamp[0].UTC().Format(time.RFC3339)
	}
	return concat("META", entityType, ts)
}

// SKQuoteDate returns the sort key for a quote row on date d. Dates
// are formatted ISO (YYYY-MM-DD) so lexical and chronological order
// on the sort key coincide, per spec §3's invariant.
func SKQuoteDate(d time.Time) string {
	return concat("QUOTE", d.Format("2006-01-02"))
}

// GSI1PKSymbol returns the bySymbol index partition key.
func GSI1PKSymbol(symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("keycodec: symbol is required for GSI1PKSymbol")
	}
	return concat("SYMBOL", symbol), nil
}

// GSI1SKEntity returns the bySymbol index sort key for an entity
// timeline, e.g. ENTITY#QUOTE#2025-08-08 or ENTITY#CATALOG.
func GSI1SKEntity(entity string, timestamp ...string) string {
	ts := ""
	if len(timestamp) > 0 {
		ts = timestamp[0]
	}
	return concat("ENTITY", entity, ts)
}

// GSI2PKMarketStatus returns the byMarketStatus index partition key.
func GSI2PKMarketStatus(market, status string) (string, error) {
	if market == "" || status == "" {
		return "", fmt.Errorf("keycodec: market and status are required for GSI2PKMarketStatus")
	}
	return concat("MARKET", market, "STATUS", status), nil
}

// GSI2SKEntity returns the byMarketStatus index sort key for an
// entity timeline.
func GSI2SKEntity(entity string, timestamp ...string) string {
	ts := ""
	if len(timestamp) > 0 {
		ts = timestamp[0]
	}
	return concat("ENTITY", entity, ts)
}

// scorePaddingWidth is fixed at 9 characters: five integer digits plus
// a decimal point and three fractional digits ("NNNNN.NNN"), which is
// wide enough to lexically order the full nonnegative score range the
// spec allows (scores are treated as bounded below 100000).
const scorePaddingWidth = 9

// PadScore zero-pads a nonnegative score to a fixed-width string so
// that lexical and numeric ordering coincide: score_a <= score_b iff
// PadScore(score_a) <= PadScore(score_b) as strings.
func PadScore(score float64) (string, error) {
	if score < 0 {
		return "", fmt.Errorf("keycodec: score must be nonnegative, got %v", score)
	}
	padded := fmt.Sprintf("%09.3f", score)
	if len(padded) != scorePaddingWidth {
		return "", fmt.Errorf("keycodec: score %v exceeds the padded width (max 99999.999)", score)
	}
	return padded, nil
}

// ScoreSK returns the score index sort key: <padded-score>#<symbol>,
// enabling a >= lexical prefix scan for QueryByScore.
func ScoreSK(score float64, symbol string) (string, error) {
	padded, err := PadScore(score)
	if err != nil {
		return "", err
	}
	if symbol == "" {
		return "", fmt.Errorf("keycodec: symbol is required for ScoreSK")
	}
	return concat(padded, symbol), nil
}

// ScorePK is the fixed partition key of the score index: every
// company row lives on the same partition so QueryByScore can do a
// single, ordered range scan over all symbols.
const ScorePK = "SCORE"
