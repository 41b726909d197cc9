package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShard_DeterministicAcrossCalls(t *testing.T) {
	symbols := []string{"AAPL", "msft", " GOOG ", "tsla", "NVDA"}
	shardTotal, shardIndex := 4, 2

	first := map[string]bool{}
	for _, s := range symbols {
		first[s] = Shard(s, shardTotal, shardIndex)
	}
	for i := 0; i < 5; i++ {
		for _, s := range symbols {
			assert.Equal(t, first[s], Shard(s, shardTotal, shardIndex), "shard assignment must be stable across calls for %q", s)
		}
	}
}

func TestShard_PartitionsEverySymbolExactlyOnce(t *testing.T) {
	symbols := []string{"AAPL", "MSFT", "GOOG", "TSLA", "NVDA", "AMZN", "META", "NFLX"}
	const shardTotal = 3

	counts := make(map[string]int, len(symbols))
	for shardIndex := 0; shardIndex < shardTotal; shardIndex++ {
		for _, s := range symbols {
			if Shard(s, shardTotal, shardIndex) {
				counts[s]++
			}
		}
	}
	for _, s := range symbols {
		assert.Equal(t, 1, counts[s], "symbol %q must belong to exactly one shard", s)
	}
}

func TestShard_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Shard("aapl", 5, 3), Shard("AAPL", 5, 3))
}

func TestShard_IgnoresSurroundingWhitespace(t *testing.T) {
	for shardIndex := 0; shardIndex < 4; shardIndex++ {
		assert.Equal(t, Shard("AAPL", 4, shardIndex), Shard("  aapl\t", 4, shardIndex))
	}
}

// TestShard_UsesFullDigestNotJustHighBits guards against truncating the
// md5 digest to its high 64 bits before reducing mod shardTotal, which
// silently disagrees with a straight 128-bit-integer mod for most
// symbols. AAPL's full digest mod 7 is 2, while its high 64 bits mod 7
// is 0, so the pinned assignment below fails under truncation.
func TestShard_UsesFullDigestNotJustHighBits(t *testing.T) {
	symbols := []string{"AAPL", "MSFT", "GOOG", "TSLA", "NVDA", "AMZN", "META", "NFLX", "ORCL", "IBM"}
	const shardTotal = 7

	assignments := map[string]int{}
	for _, s := range symbols {
		for shardIndex := 0; shardIndex < shardTotal; shardIndex++ {
			if Shard(s, shardTotal, shardIndex) {
				assignments[s] = shardIndex
			}
		}
	}

	distinct := map[int]bool{}
	for _, idx := range assignments {
		distinct[idx] = true
	}
	assert.Greater(t, len(distinct), 1, "symbols should spread across more than one shard when the full digest is used")
	assert.Equal(t, 2, assignments["AAPL"], "int(md5(\"AAPL\").hexdigest(), 16) % 7 is 2")
}

func TestShard_SingleShardIncludesEverything(t *testing.T) {
	assert.True(t, Shard("ANY", 1, 0))
	assert.True(t, Shard("ANY", 0, 0))
}
