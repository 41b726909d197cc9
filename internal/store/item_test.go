package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItem_AccessorsReturnZeroValueWhenAbsent(t *testing.T) {
	it := Item{}
	assert.Equal(t, "", it.GetString("missing"))
	assert.False(t, it.GetBool("missing"))
	_, ok := it.GetDecimal("missing")
	assert.False(t, ok)
}

func TestItem_AccessorsRoundTripSetValues(t *testing.T) {
	it := Item{
		"name":   Str("AAPL"),
		"active": Bool(true),
		"score":  Num(decimal.NewFromFloat(42.5)),
	}

	assert.Equal(t, "AAPL", it.GetString("name"))
	assert.True(t, it.GetBool("active"))
	v, ok := it.GetDecimal("score")
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(42.5).Equal(v))
}

func TestItem_PKAndSK(t *testing.T) {
	it := Item{"pk": Str("STOCK#AAPL"), "sk": Str("QUOTE#2025-01-02")}
	assert.Equal(t, "STOCK#AAPL", it.PK())
	assert.Equal(t, "QUOTE#2025-01-02", it.SK())
}

func TestItem_CloneIsIndependent(t *testing.T) {
	original := Item{"pk": Str("A")}
	clone := original.Clone()
	clone["pk"] = Str("B")

	assert.Equal(t, "A", original.GetString("pk"))
	assert.Equal(t, "B", clone.GetString("pk"))
}

func TestItem_JSONRoundTrip(t *testing.T) {
	original := Item{
		"pk":    Str("STOCK#AAPL"),
		"sk":    Str("QUOTE#2025-01-02"),
		"close": NumFloat(189.5),
		"adj":   Bool(false),
	}

	raw, err := original.toJSON()
	require.NoError(t, err)

	decoded, err := fromJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, original.PK(), decoded.PK())
	assert.Equal(t, original.SK(), decoded.SK())
	v, ok := decoded.GetDecimal("close")
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(189.5).Equal(v))
}

func TestFromJSON_RejectsMalformedPayload(t *testing.T) {
	_, err := fromJSON([]byte("not json"))
	assert.Error(t, err)
}
