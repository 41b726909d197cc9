// Command ingest runs the ingestion orchestrator (spec 4.8) once, or
// repeatedly on a cron schedule in daemon mode. It follows the
// teacher's cmd/server/main.go startup shape: load config, build the
// logger, wire dependencies, run, shut down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/stockdata/internal/calendar"
	"github.com/aristath/stockdata/internal/catalog"
	"github.com/aristath/stockdata/internal/config"
	"github.com/aristath/stockdata/internal/export"
	"github.com/aristath/stockdata/internal/ingest"
	"github.com/aristath/stockdata/internal/providers"
	"github.com/aristath/stockdata/internal/quotes"
	"github.com/aristath/stockdata/internal/records"
	"github.com/aristath/stockdata/internal/scheduler"
	"github.com/aristath/stockdata/internal/statusapi"
	"github.com/aristath/stockdata/internal/store"
	"github.com/aristath/stockdata/internal/syncplanner"
	"github.com/aristath/stockdata/pkg/logger"
)

func main() {
	market := flag.String("market", "US", "market the calendar gate and catalog query apply to")
	schedule := flag.String("schedule", "", "robfig/cron schedule for daemon mode; empty runs once and exits")
	sqlitePath := flag.String("sqlite", "", "use a local SQLite repository at this path instead of DynamoDB")
	statusAddr := flag.String("status-addr", "", "serve the read-only status API on this address in daemon mode, e.g. :8080; empty disables it")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	repo, closeRepo, err := buildRepository(*sqlitePath, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open repository")
	}
	defer closeRepo()

	catalogS := catalog.New(repo)
	quoteS := quotes.New(repo, cfg.WriteExtendedFields)
	cal := calendar.New()
	// Concrete upstream Sources are wired by the deployment, not this
	// repository: spec 4.3 names the provider contracts only, not a
	// vendor to call. A deployment registers its Sources here before
	// starting the orchestrator, e.g.
	// providers.NewChain(log, providers.NewGlobalMarketAdapter("primary", myFetcher), ...).
	chain := providers.NewChain(log)

	orchestrator := ingest.New(ingest.Config{
		ShardTotal:     cfg.ShardTotal,
		ShardIndex:     cfg.ShardIndex,
		MaxConcurrency: cfg.MaxConcurrency,
		UpstreamRPS:    cfg.UpstreamRPS,
		Bounds: syncplanner.Bounds{
			FullBackfillYears: cfg.FullBackfillYears,
			CatchUpMaxDays:    cfg.CatchUpMaxDays,
			CatchUpMaxYears:   cfg.CatchUpMaxYears,
		},
	}, chain, quoteS, cal, log)

	archiver, err := buildArchiver(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build export archiver")
	}
	recorder := &statusapi.Recorder{}

	job := ingestJob{
		orchestrator: orchestrator,
		catalogS:     catalogS,
		quoteS:       quoteS,
		market:       *market,
		cfg:          cfg,
		archiver:     archiver,
		recorder:     recorder,
	}

	if *schedule == "" {
		if err := job.Run(); err != nil {
			log.Fatal().Err(err).Msg("ingestion run failed")
		}
		return
	}

	sched := scheduler.New(log)
	sched.Start()
	if err := sched.AddJob(*schedule, job); err != nil {
		log.Fatal().Err(err).Msg("failed to register ingestion job")
	}

	var statusSrv *http.Server
	if *statusAddr != "" {
		statusSrv = &http.Server{Addr: *statusAddr, Handler: statusapi.NewRouter(log, recorder)}
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("status api server failed")
			}
		}()
		log.Info().Str("addr", *statusAddr).Msg("status api listening")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sched.Stop()
	if statusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = statusSrv.Shutdown(ctx)
	}
}

// ingestJob adapts one orchestrator run to scheduler.Job.
type ingestJob struct {
	orchestrator *ingest.Orchestrator
	catalogS     *catalog.Service
	quoteS       *quotes.Service
	market       string
	cfg          *config.Config
	archiver     *export.Archiver
	recorder     *statusapi.Recorder
}

func (j ingestJob) Name() string { return "ingest:" + j.market }

func (j ingestJob) Run() error {
	ctx := context.Background()
	today, err := j.cfg.Today()
	if err != nil {
		return err
	}

	entries, err := j.catalogS.QueryCatalog(ctx, "", j.market, records.StatusActive, 0)
	if err != nil {
		return err
	}
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}

	latestOf := func(symbol string) (time.Time, bool) {
		t, ok, err := j.quoteS.LatestQuoteDate(ctx, symbol)
		if err != nil || !ok {
			return time.Time{}, false
		}
		return t, true
	}

	result, err := j.orchestrator.Run(ctx, symbols, j.market, today, latestOf)
	if err != nil {
		return err
	}

	j.recorder.RecordIngest(statusapi.IngestSummary{
		RunID:       result.RunID,
		Market:      j.market,
		CompletedAt: time.Now().UTC(),
		TotalRows:   result.TotalRows,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
	})
	if err := j.archiver.UploadIngestManifest(ctx, result.RunID, result); err != nil {
		return err
	}
	return nil
}

// buildRepository opens a SQLiteRepository when sqlitePath is set
// (local dev / CI), otherwise a DynamoRepository built from the
// default AWS credential chain, honoring cfg.DynamoDBEndpoint as a
// local-testing override (e.g. DynamoDB Local).
func buildRepository(sqlitePath string, cfg *config.Config, log zerolog.Logger) (store.Repository, func(), error) {
	if sqlitePath != "" {
		repo, err := store.NewSQLiteRepository(sqlitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
	repo := store.NewDynamoRepository(client, cfg.TableName, log)
	return repo, func() {}, nil
}

// buildArchiver wires an export.Archiver to S3 when cfg.ExportBucket
// is set; otherwise the archiver is a configured no-op (export.New
// skips uploads when bucket is empty).
func buildArchiver(cfg *config.Config, log zerolog.Logger) (*export.Archiver, error) {
	if cfg.ExportBucket == "" {
		return export.New(nil, "", log), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client)
	return export.New(uploader, cfg.ExportBucket, log), nil
}
