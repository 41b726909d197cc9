package decimalx

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFloat_RejectsNaNAndInf(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, ok := FromFloat(f)
		assert.False(t, ok)
	}
}

func TestFromFloat_AcceptsFiniteValues(t *testing.T) {
	d, ok := FromFloat(189.5)
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(189.5).Equal(d))
}

func TestFromFloatPtr_NilStaysNil(t *testing.T) {
	assert.Nil(t, FromFloatPtr(nil))
}

func TestFromFloatPtr_NonFiniteBecomesNil(t *testing.T) {
	inf := math.Inf(1)
	assert.Nil(t, FromFloatPtr(&inf))
}

func TestFromFloatPtr_RoundTripsFiniteValue(t *testing.T) {
	v := 42.5
	d := FromFloatPtr(&v)
	require.NotNil(t, d)
	assert.True(t, decimal.NewFromFloat(42.5).Equal(*d))
}

func TestToFloat_RoundTripsFromDecimal(t *testing.T) {
	d := decimal.NewFromFloat(3.14)
	assert.InDelta(t, 3.14, ToFloat(d), 1e-9)
}

func TestToFloatPtr_NilStaysNil(t *testing.T) {
	assert.Nil(t, ToFloatPtr(nil))
}

func TestIsFinitePositive(t *testing.T) {
	assert.True(t, IsFinitePositive(1))
	assert.False(t, IsFinitePositive(0))
	assert.False(t, IsFinitePositive(-1))
	assert.False(t, IsFinitePositive(math.NaN()))
	assert.False(t, IsFinitePositive(math.Inf(1)))
}
