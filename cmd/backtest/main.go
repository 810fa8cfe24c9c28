package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"candle-trade-lab/internal/backtest"
	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/exchange/binance"
	"candle-trade-lab/internal/exits"
	"candle-trade-lab/internal/feed"
	"candle-trade-lab/internal/observability"
	"candle-trade-lab/internal/reporting"
	"candle-trade-lab/internal/storage"
	chstore "candle-trade-lab/internal/storage/clickhouse"
	"candle-trade-lab/internal/storage/migrations"
	pgstore "candle-trade-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	symbol := flag.String("symbol", "", "Trading pair, e.g. BTCUSDT (required)")
	period := flag.String("period", "1h", "Candle timeframe: 1m, 5m, 15m, 1h, 4h, 1d")
	csvPath := flag.String("csv", "", "Candle CSV file; omit to fetch from Binance")
	htfCSVPath := flag.String("htf-csv", "", "Higher-timeframe candle CSV file (optional)")
	htfPeriod := flag.String("htf-period", "4h", "Higher-timeframe of --htf-csv")
	fetchLimit := flag.Int("fetch-limit", 1000, "Candles to fetch when no CSV is given")
	fetchSince := flag.Int64("fetch-since-ms", 0, "Fetch start time (ms since epoch), 0 = exchange default")

	strategyType := flag.String("strategy", "", "Strategy: TREND, CROSSOVER, SCORED, DCA, BREAKOUT (required)")
	balance := flag.Float64("balance", 10_000, "Initial balance")
	execution := flag.String("execution", "realistic", "Fill model: ideal, realistic, pessimistic")

	// Strategy parameters
	fastEMA := flag.Int("fast-ema", 9, "Fast EMA period for TREND")
	slowEMA := flag.Int("slow-ema", 21, "Slow EMA period for TREND")
	htfEMA := flag.Int("htf-ema", 50, "Higher-timeframe EMA period for TREND")
	fastSMA := flag.Int("fast-sma", 10, "Fast SMA period for CROSSOVER")
	slowSMA := flag.Int("slow-sma", 30, "Slow SMA period for CROSSOVER")
	adxPeriod := flag.Int("adx-period", 14, "ADX period for CROSSOVER")
	minADX := flag.Float64("min-adx", 20, "Minimum ADX for CROSSOVER")
	scoreThreshold := flag.Float64("score-threshold", 0.7, "Entry threshold for SCORED")
	maxEntries := flag.Int("max-entries", 3, "Cost-averaging levels for DCA")
	levelDropPct := flag.Float64("level-drop-pct", 0.03, "Drop per re-entry level for DCA")
	takeProfitPct := flag.Float64("take-profit-pct", 0.05, "Cycle take-profit fraction for DCA")
	lookbackBars := flag.Int("lookback-bars", 20, "Breakout lookback for BREAKOUT")
	volumeMult := flag.Float64("volume-mult", 1.5, "Volume confirmation multiple for BREAKOUT")

	// Exit parameters
	trailPct := flag.Float64("trail-pct", 0.02, "Trailing stop distance as a fraction")
	trailATRPeriod := flag.Int("trail-atr-period", 0, "ATR period for the ATR trail variant, 0 = pct trail")
	trailATRMult := flag.Float64("trail-atr-mult", 0, "ATR trail multiple, 0 = pct trail")
	breakevenR := flag.Float64("breakeven-r", 1.0, "Move stop to entry at this R-multiple, 0 = off")
	partialFraction := flag.Float64("partial-fraction", 0.5, "Fraction closed at TP1")
	maxAgeCandles := flag.Int("max-age-candles", 0, "Time exit after this many candles, 0 = off")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (trade persistence)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (equity curve persistence)")

	// Output
	outputJSON := flag.Bool("json", false, "Output result as JSON")
	reportDir := flag.String("report-dir", "", "Write markdown and CSV report files to this directory")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	// Validate required flags
	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if *strategyType == "" {
		logger.Fatal("--strategy is required")
	}
	periodMs, err := parsePeriod(*period)
	if err != nil {
		logger.Fatal(err)
	}
	execCfg, err := parseExecution(*execution)
	if err != nil {
		logger.Fatal(err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Load candles
	candles, err := loadCandles(ctx, *csvPath, *symbol, periodMs, *fetchSince, *fetchLimit)
	if err != nil {
		logger.Fatalf("load candles: %v", err)
	}
	logger.Printf("Loaded %d %s candles for %s", len(candles), *period, *symbol)

	var htf []domain.Candle
	var htfPeriodMs int64
	if *htfCSVPath != "" {
		htfPeriodMs, err = parsePeriod(*htfPeriod)
		if err != nil {
			logger.Fatal(err)
		}
		htf, err = feed.LoadCSV(*htfCSVPath)
		if err != nil {
			logger.Fatalf("load higher-timeframe candles: %v", err)
		}
	}

	// Wire persistence when DSNs are given
	runnerOpts := backtest.RunnerOptions{Logger: logger}
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("postgres migrations: %v", err)
		}
		runnerOpts.TradeStore = pgstore.NewTradeStore(pool)
	}
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("clickhouse migrations: %v", err)
		}
		defer conn.Close()
		runnerOpts.EquityStore = chstore.NewEquityCurveStore(conn)

		// Archive remotely fetched candles so later runs can replay the
		// same window without refetching. Duplicates are tolerated.
		if *csvPath == "" {
			candleStore := chstore.NewCandleStore(conn)
			if err := candleStore.InsertBatch(ctx, *symbol, periodMs, candles); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				logger.Printf("archive candles: %v", err)
			}
		}
	}

	cfg := backtest.Config{
		Symbol:           *symbol,
		PeriodMs:         periodMs,
		Candles:          candles,
		HigherTF:         htf,
		HigherTFPeriodMs: htfPeriodMs,
		Strategy: buildStrategyConfig(strategyParams{
			strategyType:   strings.ToUpper(*strategyType),
			fastEMA:        *fastEMA,
			slowEMA:        *slowEMA,
			htfEMA:         *htfEMA,
			fastSMA:        *fastSMA,
			slowSMA:        *slowSMA,
			adxPeriod:      *adxPeriod,
			minADX:         *minADX,
			scoreThreshold: *scoreThreshold,
			maxEntries:     *maxEntries,
			levelDropPct:   *levelDropPct,
			takeProfitPct:  *takeProfitPct,
			lookbackBars:   *lookbackBars,
			volumeMult:     *volumeMult,
		}),
		InitialBalance: *balance,
		Execution:      execCfg,
		Exits: exits.Config{
			PartialFraction: *partialFraction,
			BreakevenR:      *breakevenR,
			TrailPct:        *trailPct,
			TrailATRMult:    *trailATRMult,
			MaxAgeCandles:   *maxAgeCandles,
			MinRForAge:      exits.DefaultConfig().MinRForAge,
		},
		TrailATRPeriod: *trailATRPeriod,
	}

	// Run
	logger.Printf("Running backtest: symbol=%s strategy=%s period=%s candles=%d",
		*symbol, cfg.Strategy.StrategyType, *period, len(candles))

	start := time.Now()
	runner := backtest.NewRunner(runnerOpts)
	res, err := runner.Run(ctx, cfg)
	if err != nil {
		observability.RecordBacktestRun("error", time.Since(start).Seconds())
		logger.Fatalf("backtest failed: %v", err)
	}
	observability.RecordBacktestRun("success", time.Since(start).Seconds())
	observability.RecordEntriesSkipped(res.SkippedEntries)

	// Output result
	if *outputJSON {
		output, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(output))
	} else {
		printResult(res)
	}

	if *reportDir != "" {
		if err := writeReport(*reportDir, res); err != nil {
			logger.Fatalf("write report: %v", err)
		}
		logger.Printf("Report written to %s", *reportDir)
	}
}

// loadCandles reads the CSV when given, otherwise fetches from Binance.
func loadCandles(ctx context.Context, csvPath, symbol string, periodMs, sinceMs int64, limit int) ([]domain.Candle, error) {
	if csvPath != "" {
		return feed.LoadCSV(csvPath)
	}
	client := binance.NewClient()
	return client.FetchOHLCV(ctx, symbol, periodMs, sinceMs, limit)
}

type strategyParams struct {
	strategyType   string
	fastEMA        int
	slowEMA        int
	htfEMA         int
	fastSMA        int
	slowSMA        int
	adxPeriod      int
	minADX         float64
	scoreThreshold float64
	maxEntries     int
	levelDropPct   float64
	takeProfitPct  float64
	lookbackBars   int
	volumeMult     float64
}

// buildStrategyConfig creates a StrategyConfig from CLI flags. Only the
// fields of the chosen strategy type are set; the factory validates.
func buildStrategyConfig(p strategyParams) domain.StrategyConfig {
	cfg := domain.StrategyConfig{StrategyType: p.strategyType}

	switch p.strategyType {
	case domain.StrategyTypeTrend:
		cfg.FastEMA = &p.fastEMA
		cfg.SlowEMA = &p.slowEMA
		cfg.HigherTFEMA = &p.htfEMA
	case domain.StrategyTypeCrossover:
		cfg.FastSMA = &p.fastSMA
		cfg.SlowSMA = &p.slowSMA
		cfg.ADXPeriod = &p.adxPeriod
		cfg.MinADX = &p.minADX
	case domain.StrategyTypeScored:
		cfg.ScoreThreshold = &p.scoreThreshold
	case domain.StrategyTypeDCA:
		cfg.MaxEntries = &p.maxEntries
		cfg.LevelDropPct = &p.levelDropPct
		cfg.TakeProfitPct = &p.takeProfitPct
	case domain.StrategyTypeBreakout:
		cfg.LookbackBars = &p.lookbackBars
		cfg.VolumeMult = &p.volumeMult
	}

	return cfg
}

// parsePeriod maps a timeframe name to its bucket length.
func parsePeriod(name string) (int64, error) {
	switch strings.ToLower(name) {
	case "1m":
		return domain.PeriodMs1m, nil
	case "5m":
		return domain.PeriodMs5m, nil
	case "15m":
		return domain.PeriodMs15m, nil
	case "1h":
		return domain.PeriodMs1h, nil
	case "4h":
		return domain.PeriodMs4h, nil
	case "1d":
		return domain.PeriodMs1d, nil
	default:
		return 0, fmt.Errorf("invalid period: %s (use 1m, 5m, 15m, 1h, 4h, 1d)", name)
	}
}

// parseExecution maps a fill-model name to its preset.
func parseExecution(name string) (domain.ExecutionConfig, error) {
	switch strings.ToLower(name) {
	case "ideal":
		return domain.ExecutionConfigIdeal, nil
	case "realistic":
		return domain.ExecutionConfigRealistic, nil
	case "pessimistic":
		return domain.ExecutionConfigPessimistic, nil
	default:
		return domain.ExecutionConfig{}, fmt.Errorf("invalid execution: %s (use ideal, realistic, pessimistic)", name)
	}
}

// printResult outputs a human-readable run summary.
func printResult(res *backtest.Result) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Symbol:             %s\n", res.Meta.Symbol)
	fmt.Printf("Strategy:           %s\n", res.Meta.StrategyID)
	fmt.Printf("Candles:            %d\n", res.Meta.Candles)
	fmt.Printf("Range:              %s - %s\n",
		time.UnixMilli(res.Meta.StartMs).UTC().Format(time.RFC3339),
		time.UnixMilli(res.Meta.EndMs).UTC().Format(time.RFC3339))
	fmt.Println()

	fmt.Println("Performance:")
	fmt.Printf("  Final Balance:    %.4f\n", res.FinalBalance)
	fmt.Printf("  Total PnL:        %.4f (%.2f%%)\n", res.TotalPnL, res.TotalPnLPercent)
	fmt.Printf("  Total Trades:     %d\n", res.TotalTrades)
	fmt.Printf("  Win Rate:         %.2f%%\n", res.WinRate*100)
	fmt.Printf("  Profit Factor:    %.4f\n", res.ProfitFactor)
	fmt.Printf("  Max Drawdown:     %.2f%%\n", res.MaxDrawdown*100)
	if res.SkippedEntries > 0 {
		fmt.Printf("  Skipped Entries:  %d\n", res.SkippedEntries)
	}
	fmt.Println()

	if len(res.HoldReasons) > 0 {
		fmt.Println("Hold Reasons:")
		for reason, count := range res.HoldReasons {
			fmt.Printf("  %-24s %d\n", reason, count)
		}
		fmt.Println()
	}
}

// writeReport renders markdown and CSV report files for one run.
func writeReport(dir string, res *backtest.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	report := reporting.BuildFromResults([]*backtest.Result{res}, time.Now().UTC())

	files := map[string]string{
		"REPORT.md":   reporting.RenderMarkdown(report),
		"TRADES.csv":  reporting.RenderCSV(report.Trades),
		"SUMMARY.csv": reporting.RenderSummaryCSV(report.RunSummaries),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
