package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv resets every variable Load reads to fully unset (not just
// empty) so each test starts from the documented defaults regardless
// of what the host process's environment carries. A .env file in the
// package directory would still be loaded by Load.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"LOG_LEVEL", "STOCKDATA_TABLE_NAME", "AWS_REGION", "STOCKDATA_DYNAMODB_ENDPOINT",
		"STOCKDATA_WRITE_EXTENDED_FIELDS", "UPSTREAM_RPS", "INDEX_QUOTE_SOURCES",
		"SHARD_TOTAL", "SHARD_INDEX", "MAX_CONCURRENCY", "FULL_BACKFILL_YEARS",
		"CATCH_UP_MAX_DAYS", "CATCH_UP_MAX_YEARS", "AS_OF_DATE", "STOCKDATA_EXPORT_BUCKET",
	}
	for _, k := range keys {
		original, wasSet := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		if wasSet {
			t.Cleanup(func() { _ = os.Setenv(k, original) })
		}
	}
}

func TestLoad_DefaultsWhenEnvironmentUnset(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "stockdata", cfg.TableName)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.False(t, cfg.WriteExtendedFields)
	assert.Equal(t, 2.0, cfg.UpstreamRPS)
	assert.Equal(t, []string{"global", "cn"}, cfg.IndexQuoteSources)
	assert.Equal(t, 1, cfg.ShardTotal)
	assert.Equal(t, 0, cfg.ShardIndex)
	assert.Equal(t, 5, cfg.FullBackfillYears)
	assert.Equal(t, "", cfg.ExportBucket)
}

func TestLoad_RejectsShardIndexOutOfRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHARD_TOTAL", "4")
	t.Setenv("SHARD_INDEX", "4")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONCURRENCY", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedBoolean(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOCKDATA_WRITE_EXTENDED_FIELDS", "sort-of")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_TodayUsesAsOfDateWhenSet(t *testing.T) {
	cfg := &Config{AsOfDate: "2025-09-14"}
	today, err := cfg.Today()
	require.NoError(t, err)
	assert.Equal(t, "2025-09-14", today.Format("2006-01-02"))
}

func TestConfig_TodayRejectsMalformedAsOfDate(t *testing.T) {
	cfg := &Config{AsOfDate: "not-a-date"}
	_, err := cfg.Today()
	assert.Error(t, err)
}
