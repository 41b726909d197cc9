// Package config loads runtime configuration from the environment.
//
// Configuration Loading Order:
//  1. Load from a .env file, if one exists in the working directory.
//  2. Read environment variables, falling back to documented defaults.
//
// All recognized variables are listed in spec §6 of this repository's
// design notes; see the field comments below for the exact name each
// field is sourced from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aristath/stockdata/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds the process-wide configuration for both the ingestion
// orchestrator and the backtest runner. Not every field is relevant to
// every entrypoint; cmd/ingest and cmd/backtest each read the subset
// they need.
type Config struct {
	LogLevel string // LOG_LEVEL (debug, info, warn, error), default "info"

	// Store connection (internal/store).
	TableName        string // STOCKDATA_TABLE_NAME, default "stockdata"
	AWSRegion        string // AWS_REGION, default "us-east-1"
	DynamoDBEndpoint string // STOCKDATA_DYNAMODB_ENDPOINT, optional override for local testing

	// Ingestion (internal/ingest, internal/syncplanner).
	WriteExtendedFields bool     // STOCKDATA_WRITE_EXTENDED_FIELDS, default false
	UpstreamRPS         float64  // UPSTREAM_RPS, default 2
	IndexQuoteSources   []string // INDEX_QUOTE_SOURCES, comma separated, default "global,cn"
	ShardTotal          int      // SHARD_TOTAL, default 1
	ShardIndex          int      // SHARD_INDEX, default 0
	MaxConcurrency      int      // MAX_CONCURRENCY, default 4
	FullBackfillYears   int      // FULL_BACKFILL_YEARS, default 5
	CatchUpMaxDays      int      // CATCH_UP_MAX_DAYS, default 0 (unbounded)
	CatchUpMaxYears     int      // CATCH_UP_MAX_YEARS, default 0 (unbounded)
	AsOfDate            string   // AS_OF_DATE, ISO date; empty means "use real today"

	// Export (internal/export).
	ExportBucket string // STOCKDATA_EXPORT_BUCKET, optional; export is skipped when empty
}

// Load reads .env (if present) and then the environment, applying
// defaults for anything unset. A malformed numeric or boolean value is
// a fatal configuration error, not a silently-ignored default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	writeExtended, err := getBool("STOCKDATA_WRITE_EXTENDED_FIELDS", false)
	if err != nil {
		return nil, err
	}

	rps, err := getFloat("UPSTREAM_RPS", 2)
	if err != nil {
		return nil, err
	}

	shardTotal, err := getInt("SHARD_TOTAL", 1)
	if err != nil {
		return nil, err
	}
	shardIndex, err := getInt("SHARD_INDEX", 0)
	if err != nil {
		return nil, err
	}
	if shardTotal < 1 {
		return nil, fmt.Errorf("config: SHARD_TOTAL must be >= 1, got %d", shardTotal)
	}
	if shardIndex < 0 || shardIndex >= shardTotal {
		return nil, fmt.Errorf("config: SHARD_INDEX must be in [0, %d), got %d", shardTotal, shardIndex)
	}

	maxConcurrency, err := getInt("MAX_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	fullBackfillYears, err := getInt("FULL_BACKFILL_YEARS", 5)
	if err != nil {
		return nil, err
	}
	catchUpMaxDays, err := getInt("CATCH_UP_MAX_DAYS", 0)
	if err != nil {
		return nil, err
	}
	catchUpMaxYears, err := getInt("CATCH_UP_MAX_YEARS", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		TableName:           getEnv("STOCKDATA_TABLE_NAME", "stockdata"),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		DynamoDBEndpoint:    getEnv("STOCKDATA_DYNAMODB_ENDPOINT", ""),
		WriteExtendedFields: writeExtended,
		UpstreamRPS:         rps,
		IndexQuoteSources:   utils.ParseCSV(getEnv("INDEX_QUOTE_SOURCES", "global,cn")),
		ShardTotal:          shardTotal,
		ShardIndex:          shardIndex,
		MaxConcurrency:      maxConcurrency,
		FullBackfillYears:   fullBackfillYears,
		CatchUpMaxDays:      catchUpMaxDays,
		CatchUpMaxYears:     catchUpMaxYears,
		AsOfDate:            getEnv("AS_OF_DATE", ""),
		ExportBucket:        getEnv("STOCKDATA_EXPORT_BUCKET", ""),
	}

	return cfg, nil
}

// Today returns AsOfDate parsed as a date, or the real current UTC date
// when AsOfDate is unset. This is the single place "now" enters the
// ingestion path, so replay runs stay deterministic.
func (c *Config) Today() (time.Time, error) {
	if c.AsOfDate == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", c.AsOfDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid AS_OF_DATE %q: %w", c.AsOfDate, err)
	}
	return t, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: invalid boolean for %s: %q", key, v)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %q", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid float for %s: %q", key, v)
	}
	return f, nil
}
