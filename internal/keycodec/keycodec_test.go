package keycodec

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadScore_LexicalOrderMatchesNumericOrder(t *testing.T) {
	scores := []float64{0, 0.5, 1, 9.999, 10, 99.99, 1234.5, 99999.999}

	padded := make([]string, len(scores))
	for i, s := range scores {
		p, err := PadScore(s)
		require.NoError(t, err)
		padded[i] = p
	}

	sorted := append([]string(nil), padded...)
	sort.Strings(sorted)
	assert.Equal(t, padded, sorted, "padded scores in ascending numeric order must already be lexically sorted")
}

func TestPadScore_FixedWidth(t *testing.T) {
	for _, s := range []float64{0, 1, 99.99, 99999.999} {
		p, err := PadScore(s)
		require.NoError(t, err)
		assert.Len(t, p, scorePaddingWidth)
	}
}

func TestPadScore_RejectsNegative(t *testing.T) {
	_, err := PadScore(-1)
	assert.Error(t, err)
}

func TestPadScore_RejectsOverflow(t *testing.T) {
	_, err := PadScore(100000)
	assert.Error(t, err)
}

func TestScoreSK_UsesPaddedScoreThenSymbol(t *testing.T) {
	sk, err := ScoreSK(42.5, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "00042.500#AAPL", sk)
}

func TestConcatBasedKeys_DropEmptySegments(t *testing.T) {
	assert.Equal(t, "META#CATALOG", SKMeta("CATALOG"))
	assert.Equal(t, "ENTITY#QUOTE", GSI1SKEntity("QUOTE"))

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "META#CATALOG#2025-01-02T03:04:05Z", SKMeta("CATALOG", ts))
}

func TestPKFunctions_RequireSymbol(t *testing.T) {
	_, err := PKStock("")
	assert.Error(t, err)

	pk, err := PKStock("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "STOCK#AAPL", pk)
}

func TestSKQuoteDate_PreservesChronologicalOrder(t *testing.T) {
	early := SKQuoteDate(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	late := SKQuoteDate(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Less(t, early, late)
}
