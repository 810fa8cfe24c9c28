package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"candle-trade-lab/internal/backtest"
	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/exchange"
	"candle-trade-lab/internal/exchange/binance"
	"candle-trade-lab/internal/exits"
	"candle-trade-lab/internal/feed"
	"candle-trade-lab/internal/observability"
	"candle-trade-lab/internal/scheduler"
	"candle-trade-lab/internal/storage"
	"candle-trade-lab/internal/storage/memory"
	"candle-trade-lab/internal/storage/migrations"
	pgstore "candle-trade-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	symbol := flag.String("symbol", "", "Trading pair, e.g. BTCUSDT (required)")
	period := flag.String("period", "1m", "Candle timeframe: 1m, 5m, 15m, 1h, 4h, 1d")
	htfPeriod := flag.String("htf-period", "", "Higher timeframe for trend context, resampled from the seed; empty = off")
	csvPath := flag.String("csv", "", "Candle CSV file to replay; omit to seed from Binance")
	seedLimit := flag.Int("seed-limit", 1000, "Candles fetched to seed the replay when no CSV is given")

	strategyType := flag.String("strategy", "", "Strategy: TREND, CROSSOVER, SCORED, DCA, BREAKOUT (required)")
	balance := flag.Float64("balance", 10_000, "Initial balance")
	tickInterval := flag.Duration("tick-interval", time.Second, "Timer period between cycles")

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
	breakevenR := flag.Float64("breakeven-r", 1.0, "Move stop to entry at this R-multiple, 0 = off")
	partialFraction := flag.Float64("partial-fraction", 0.5, "Fraction closed at TP1")

	// Storage and observability
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (trade persistence)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus /metrics on this address, e.g. :9090")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[paper] ", log.LstdFlags)

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
	var htfPeriodMs int64
	if *htfPeriod != "" {
		if htfPeriodMs, err = parsePeriod(*htfPeriod); err != nil {
			logger.Fatal(err)
		}
		if htfPeriodMs <= periodMs || htfPeriodMs%periodMs != 0 {
			logger.Fatalf("--htf-period %s must be a larger multiple of --period %s", *htfPeriod, *period)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the paper exchange with history to replay
	candles, err := loadSeedCandles(ctx, *csvPath, *symbol, periodMs, *seedLimit)
	if err != nil {
		logger.Fatalf("load candles: %v", err)
	}
	logger.Printf("Seeded %d %s candles for %s", len(candles), *period, *symbol)

	paper := exchange.NewPaperExchange(*balance)
	paper.LoadSeries(*symbol, periodMs, candles)
	if htfPeriodMs > 0 {
		htf := feed.Resample(candles, periodMs, htfPeriodMs)
		paper.LoadSeries(*symbol, htfPeriodMs, htf)
		logger.Printf("Resampled %d %s candles for higher-timeframe context", len(htf), *htfPeriod)
	}

	// Persistence: postgres when configured, memory otherwise
	var tradeStore storage.TradeStore = memory.NewTradeStore()
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("postgres migrations: %v", err)
		}
		tradeStore = pgstore.NewTradeStore(pool)
	}

	cfg := scheduler.Config{
		Symbol:           *symbol,
		PeriodMs:         periodMs,
		Mode:             domain.ModePaper,
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
		Execution:      domain.ExecutionConfigRealistic,
		Exits: exits.Config{
			PartialFraction: *partialFraction,
			BreakevenR:      *breakevenR,
			TrailPct:        *trailPct,
			MinRForAge:      exits.DefaultConfig().MinRForAge,
		},
		TickInterval: *tickInterval,
	}

	sink := &metricsSink{}
	session, err := scheduler.NewSession(cfg, scheduler.Options{
		Exchange:     paper,
		TradeStore:   tradeStore,
		Observer:     sink,
		TickObserver: observeTicks(domain.ModePaper),
		Logger:       logger,
	})
	if err != nil {
		logger.Fatalf("create session: %v", err)
	}
	sink.run = session.RunID()

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr, logger)
		go sampleAccountMetrics(ctx, session)
	}

	if err := session.Start(ctx); err != nil {
		logger.Fatalf("start session: %v", err)
	}
	logger.Printf("Paper session %s running", session.RunID())

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("Received signal %v, shutting down...", sig)

	if err := session.Stop(); err != nil {
		logger.Printf("stop session: %v", err)
	}
	if err := session.CloseAll(ctx); err != nil {
		logger.Printf("close positions: %v", err)
	}
	cancel()

	printSessionSummary(session)
}

// metricsSink feeds trade events into the Prometheus counters. Trade
// events never overlap (ticks are serialized and CloseAll runs after
// Stop), so the running total is unguarded.
type metricsSink struct {
	run   string
	total float64
}

var _ backtest.TradeSink = (*metricsSink)(nil)

func (s *metricsSink) TradeOpened(t *domain.Trade) {
	observability.RecordTradeOpened(t.Mode, t.StrategyID)
}

func (s *metricsSink) TradeClosed(t *domain.Trade) {
	observability.RecordTradeClosed(t.Mode, t.StrategyID, t.ExitReason)
	s.total += t.PnL
	observability.RecordRealizedPnL(s.run, s.total)
}

// observeTicks feeds tick outcomes into the session counters and the
// liveness gauge.
func observeTicks(mode string) func(scheduler.TickOutcome) {
	return func(o scheduler.TickOutcome) {
		if o.Skipped {
			observability.DefaultMetrics.TicksSkipped.Inc()
			return
		}
		observability.RecordTick(mode, o.Duration.Seconds(), o.Err != nil)
		if o.Candles > 0 {
			observability.DefaultMetrics.CandlesProcessed.Add(float64(o.Candles))
		}
		if o.Err == nil {
			observability.DefaultMetrics.LastSuccessfulTick.SetToCurrentTime()
		}
	}
}

// serveMetrics exposes /metrics in a background goroutine.
func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	go func() {
		logger.Printf("Serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()
}

// sampleAccountMetrics refreshes the account gauges once per second.
// Only mutex-guarded session reads; ticks mutate the ledger concurrently.
func sampleAccountMetrics(ctx context.Context, session *scheduler.Session) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum := session.Summary(nil)
			observability.UpdateAccount(session.RunID(), sum.Balance, sum.Equity, sum.MaxDrawdown, sum.OpenTrades)
		}
	}
}

func printSessionSummary(session *scheduler.Session) {
	p := session.Snapshot()
	st := session.Stats()
	summary := session.Summary(nil)

	fmt.Println()
	fmt.Println("=== Paper Session Summary ===")
	fmt.Printf("Run:                %s\n", session.RunID())
	fmt.Printf("Ticks:              %d (skipped %d, errors %d)\n", st.Ticks, st.Skipped, st.Errors)
	fmt.Printf("Candles Processed:  %d\n", st.Candles)
	fmt.Printf("Final Balance:      %.4f\n", p.Balance)
	fmt.Printf("Closed Trades:      %d\n", summary.ClosedTrades)
	fmt.Printf("Total PnL:          %.4f (%.2f%%)\n", summary.TotalPnL, summary.TotalPnLPercent)
	fmt.Printf("Max Drawdown:       %.2f%%\n", summary.MaxDrawdown*100)
}

// loadSeedCandles reads the CSV when given, otherwise fetches recent
// history from Binance.
func loadSeedCandles(ctx context.Context, csvPath, symbol string, periodMs int64, limit int) ([]domain.Candle, error) {
	if csvPath != "" {
		return feed.LoadCSV(csvPath)
	}
	client := binance.NewClient()
	return client.FetchOHLCV(ctx, symbol, periodMs, 0, limit)
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
