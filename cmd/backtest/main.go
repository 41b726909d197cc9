// Command backtest runs one event-driven simulation (spec 4.10) over
// a universe and price window and writes the resulting Result as JSON.
// Flags follow the teacher's stdlib flag.* pattern used by its
// migration scripts rather than a cobra/cli framework, since this is a
// single-purpose operator tool, not a multi-subcommand CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/stockdata/internal/backtest"
	"github.com/aristath/stockdata/internal/catalog"
	"github.com/aristath/stockdata/internal/company"
	"github.com/aristath/stockdata/internal/config"
	"github.com/aristath/stockdata/internal/export"
	"github.com/aristath/stockdata/internal/panel"
	"github.com/aristath/stockdata/internal/quotes"
	"github.com/aristath/stockdata/internal/store"
	"github.com/aristath/stockdata/internal/strategy"
	"github.com/aristath/stockdata/internal/universe"
	"github.com/aristath/stockdata/pkg/logger"
)

func main() {
	startDate := flag.String("start-date", "", "backtest start date, YYYY-MM-DD (required)")
	endDate := flag.String("end-date", "", "backtest end date, YYYY-MM-DD (required)")
	initialCapital := flag.Float64("initial-capital", 100000, "starting cash")
	rebalance := flag.String("rebalance", "monthly", "rebalance frequency: daily, weekly, monthly, or <N>d")
	maxPositions := flag.Int("max-positions", 10, "maximum concurrently held positions")
	slippageBps := flag.Float64("slippage-bps", 10, "slippage in basis points")
	feeBps := flag.Float64("fee-bps", 5, "transaction cost in basis points")
	priceField := flag.String("price-field", "adj_close", "primary price field")
	fallbackPriceField := flag.String("fallback-price-field", "close", "fallback price field")

	universeList := flag.String("universe-list", "", "comma-separated symbol list; overrides dynamic selection")
	universeFile := flag.String("universe-file", "", "path to a newline-delimited symbol file; overrides dynamic selection")
	dynamicUniverse := flag.Bool("dynamic-universe", false, "resolve the universe via internal/universe.Selector instead of a fixed list")
	market := flag.String("market", "US", "market passed to the dynamic universe selector")

	strategyName := flag.String("strategy", "low-pe-momentum", "low-pe-momentum or red-line")
	momentumWindow := flag.Int("momentum-window", 60, "low-pe-momentum: trailing window length in bars")
	maxAssets := flag.Int("max-assets", 5, "low-pe-momentum: number of names to hold (red-line uses --max-positions)")

	sqlitePath := flag.String("sqlite", "", "use a local SQLite repository at this path instead of DynamoDB")
	panelCache := flag.String("panel-cache", "", "load/save the price panel from this msgpack cache file instead of the repository")
	outputDir := flag.String("output-dir", ".", "directory to write the result JSON into")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Pretty: true})

	if *startDate == "" || *endDate == "" {
		log.Error().Msg("--start-date and --end-date are required")
		os.Exit(2)
	}
	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Error().Err(err).Msg("invalid --start-date")
		os.Exit(2)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Error().Err(err).Msg("invalid --end-date")
		os.Exit(2)
	}

	cfg := backtest.Config{
		StartDate:          start,
		EndDate:            end,
		InitialCapital:     *initialCapital,
		RebalanceFrequency: *rebalance,
		MaxPositions:       *maxPositions,
		SlippageBps:        *slippageBps,
		TransactionCostBps: *feeBps,
		PriceField:         *priceField,
		FallbackPriceField: *fallbackPriceField,
	}

	strat, err := buildStrategy(*strategyName, *momentumWindow, *maxAssets, *maxPositions, *priceField)
	if err != nil {
		log.Error().Err(err).Msg("invalid --strategy")
		os.Exit(2)
	}

	engine, err := backtest.New(cfg, strat, log)
	if err != nil {
		log.Error().Err(err).Msg("invalid backtest configuration")
		os.Exit(2)
	}

	var priceLoader backtest.PriceLoader
	var fundamentalLoader backtest.FundamentalLoader
	var resolver backtest.UniverseResolver
	var closeRepo func()

	if *panelCache != "" {
		cached, err := panel.LoadCachedPanel(*panelCache)
		if err != nil {
			log.Error().Err(err).Msg("failed to load panel cache")
			os.Exit(2)
		}
		priceLoader = &backtest.CachedPanelLoader{Panel: cached}
		closeRepo = func() {}
	} else {
		repo, closer, err := buildRepository(*sqlitePath, cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to open repository")
			os.Exit(2)
		}
		closeRepo = closer
		quoteS := quotes.New(repo, false)
		companyS := company.New(repo)
		priceLoader = backtest.NewQuotesPriceLoader(quoteS)
		fundamentalLoader = backtest.NewCompanyFundamentalLoader(companyS)
		if *dynamicUniverse {
			catalogS := catalog.New(repo)
			selector := universe.New(catalogS, companyS)
			resolver = backtest.NewUniverseSelectorResolver(selector, *market, universe.Thresholds{}, universe.Permissive, 0)
		}
	}
	defer closeRepo()

	symbols, err := resolveUniverse(*universeList, *universeFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve universe")
		os.Exit(2)
	}

	result, err := engine.Run(context.Background(), symbols, resolver, priceLoader, fundamentalLoader)
	if err != nil {
		log.Error().Err(err).Msg("backtest run failed")
		os.Exit(2)
	}

	outPath := filepath.Join(*outputDir, fmt.Sprintf("backtest-%s.json", result.RunID))
	if err := writeResult(outPath, result); err != nil {
		log.Error().Err(err).Msg("failed to write result")
		os.Exit(2)
	}

	archiveCfg, archiveErr := config.Load()
	if archiveErr == nil && archiveCfg.ExportBucket != "" {
		archiver, err := buildArchiver(archiveCfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to build export archiver; skipping archival")
		} else if err := archiver.UploadBacktestResult(context.Background(), result.RunID, result); err != nil {
			log.Warn().Err(err).Msg("failed to archive backtest result")
		}
	}

	log.Info().
		Str("run_id", result.RunID).
		Float64("total_return", result.TotalReturn).
		Float64("max_drawdown", result.MaxDrawdown).
		Int("num_trades", result.NumTrades).
		Str("output", outPath).
		Msg("backtest complete")
}

func buildStrategy(name string, momentumWindow, maxAssets, maxPositions int, priceField string) (backtest.Strategy, error) {
	switch name {
	case "low-pe-momentum":
		return &strategy.LowPEMomentum{
			MaxAssets:      maxAssets,
			MomentumWindow: momentumWindow,
			PriceField:     priceField,
		}, nil
	case "red-line":
		return &strategy.RedLine{
			MaxPositions:     maxPositions,
			EMAShortLen:      9,
			EMAMidLen:        21,
			EMALongLen:       55,
			RSILen:           14,
			ATRBreakoutLen:   14,
			ATRTrailLen:      14,
			VolumeLookback:   20,
			RSIBuyThreshold:  50,
			RSIExitThreshold: 40,
			BuyVolumeFactor:  1.2,
			TrailATRMult:     3,
			PriceField:       priceField,
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func resolveUniverse(list, file string) ([]string, error) {
	if list != "" {
		return strings.Split(list, ","), nil
	}
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				out = append(out, line)
			}
		}
		return out, nil
	}
	return nil, nil
}

func writeResult(path string, result *backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// buildRepository mirrors cmd/ingest's: SQLite for local dev/CI,
// DynamoDB (honoring a local-endpoint override) otherwise.
func buildRepository(sqlitePath string, _ backtest.Config, log zerolog.Logger) (store.Repository, func(), error) {
	if sqlitePath != "" {
		repo, err := store.NewSQLiteRepository(sqlitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
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

// buildArchiver mirrors cmd/ingest's S3-uploader wiring for archiving
// this run's Result to the configured export bucket.
func buildArchiver(cfg *config.Config, log zerolog.Logger) (*export.Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client)
	return export.New(uploader, cfg.ExportBucket, log), nil
}
