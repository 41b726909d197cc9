// Package export archives ingestion run manifests and backtest
// results to S3 (or an S3-compatible endpoint) for durable storage
// beyond the process lifetime. Grounded on the teacher's
// internal/reliability/r2_backup_service.go: a JSON metadata envelope,
// a sha256 checksum recorded alongside the payload, and an upload
// keyed by timestamp — adapted from R2's tar-of-databases backup shape
// to a single JSON object per run, since a run produces one logical
// document rather than a set of SQLite files. The teacher's concrete
// R2 client implementation was not present in the retrieval pack, so
// the upload itself goes through aws-sdk-go-v2/feature/s3/manager
// directly rather than reconstructing an unseen wrapper.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Uploader is the subset of manager.Uploader an Archiver needs, kept
// narrow so tests can fake it without a real S3 client.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archiver uploads JSON-encoded run artifacts to bucket under prefixed
// keys, skipping uploads entirely when bucket is empty (export is
// optional per spec §6's STOCKDATA_EXPORT_BUCKET).
type Archiver struct {
	uploader Uploader
	bucket   string
	log      zerolog.Logger
}

// New builds an Archiver. An empty bucket makes every Upload* call a
// no-op, so callers do not need to branch on whether export is configured.
func New(uploader Uploader, bucket string, log zerolog.Logger) *Archiver {
	return &Archiver{uploader: uploader, bucket: bucket, log: log.With().Str("component", "export_archiver").Logger()}
}

// envelope wraps a payload with the checksum and timestamp metadata
// the teacher's BackupMetadata/DatabaseMetadata records.
type envelope struct {
	RunID       string          `json:"run_id"`
	Kind        string          `json:"kind"`
	GeneratedAt time.Time       `json:"generated_at"`
	Checksum    string          `json:"sha256"`
	Payload     json.RawMessage `json:"payload"`
}

// UploadIngestManifest archives one ingestion run's result under
// manifests/ingest/<run_id>.json.
func (a *Archiver) UploadIngestManifest(ctx context.Context, runID string, result interface{}) error {
	return a.upload(ctx, "manifests/ingest", runID, "ingest_manifest", result)
}

// UploadBacktestResult archives one backtest run's result under
// manifests/backtest/<run_id>.json.
func (a *Archiver) UploadBacktestResult(ctx context.Context, runID string, result interface{}) error {
	return a.upload(ctx, "manifests/backtest", runID, "backtest_result", result)
}

func (a *Archiver) upload(ctx context.Context, prefix, runID, kind string, payload interface{}) error {
	if a.bucket == "" {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("export: marshal %s payload: %w", kind, err)
	}
	sum := sha256.Sum256(raw)

	body, err := json.Marshal(envelope{
		RunID:       runID,
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
		Checksum:    hex.EncodeToString(sum[:]),
		Payload:     raw,
	})
	if err != nil {
		return fmt.Errorf("export: marshal envelope: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", prefix, runID)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return fmt.Errorf("export: upload %s: %w", key, err)
	}

	a.log.Info().Str("run_id", runID).Str("kind", kind).Str("key", key).Int("bytes", len(body)).Msg("archived run artifact")
	return nil
}

func strPtr(s string) *string { return &s }
