package backtest

import (
	"context"
	"errors"
	"log"
	"sync"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/exits"
	"candle-trade-lab/internal/feed"
	"candle-trade-lab/internal/portfolio"
	"candle-trade-lab/internal/stats"
	"candle-trade-lab/internal/storage"
	"candle-trade-lab/internal/strategy"
)

// Config errors, raised before any candle or trade state is touched.
var (
	ErrEmptySymbol    = errors.New("symbol is required")
	ErrNoCandles      = errors.New("candle series is empty")
	ErrInvalidPeriod  = errors.New("period must be positive")
	ErrInvalidBalance = errors.New("initial balance must be positive")
)

// Config describes one backtest run.
type Config struct {
	Symbol   string
	PeriodMs int64
	Candles  []domain.Candle

	// Optional higher-timeframe context for strategies that filter on it.
	HigherTF         []domain.Candle
	HigherTFPeriodMs int64

	Strategy       domain.StrategyConfig
	InitialBalance float64
	Execution      domain.ExecutionConfig
	Exits          exits.Config

	// TrailATRPeriod feeds the ATR trail variant; 0 = pct trail only.
	TrailATRPeriod int
}

// Validate checks the config. Hard errors, per the error taxonomy:
// configuration problems fail fast at the entry point.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return ErrEmptySymbol
	}
	if len(c.Candles) == 0 {
		return ErrNoCandles
	}
	if c.PeriodMs <= 0 {
		return ErrInvalidPeriod
	}
	if c.InitialBalance <= 0 {
		return ErrInvalidBalance
	}
	return feed.Validate(c.Candles)
}

// riskConfig resolves the per-strategy override or the run default.
func (c *Config) riskConfig() domain.RiskConfig {
	if c.Strategy.Risk != nil {
		return *c.Strategy.Risk
	}
	return domain.DefaultRiskConfig()
}

// Meta identifies a run in its result.
type Meta struct {
	Symbol     string
	StrategyID string
	Mode       string
	PeriodMs   int64
	Candles    int
	StartMs    int64
	EndMs      int64
}

// Result is the backtest outcome.
type Result struct {
	FinalBalance    float64
	TotalTrades     int
	WinRate         float64
	ProfitFactor    float64
	MaxDrawdown     float64
	TotalPnL        float64
	TotalPnLPercent float64

	EquityCurve   []domain.EquityPoint
	DrawdownCurve []float64
	Trades        []*domain.Trade

	// HoldReasons counts why cycles produced no entry.
	HoldReasons map[string]int

	// SkippedEntries counts actionable signals dropped by sizing or
	// admission.
	SkippedEntries int

	Meta Meta
}

// Runner executes backtests. Stores are optional; writes are
// fire-and-forget and never fail a run.
type Runner struct {
	tradeStore  storage.TradeStore
	equityStore storage.EquityCurveStore
	logger      *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	TradeStore  storage.TradeStore
	EquityStore storage.EquityCurveStore
	Logger      *log.Logger
}

// NewRunner creates a backtest runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		tradeStore:  opts.TradeStore,
		equityStore: opts.EquityStore,
		logger:      logger,
	}
}

// Run executes one backtest.
// Steps:
//  1. Validate config (hard errors)
//  2. Build strategy via strategy.FromConfig
//  3. Create ledger, exit machine and engine
//  4. Step through every candle in order
//  5. Force-close remaining positions at the final candle (END_OF_DATA)
//  6. Persist trades and equity curve, fire-and-forget
//  7. Assemble the result
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	// 1. Validate config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 2. Build strategy via factory
	strat, err := strategy.FromConfig(cfg.Strategy, cfg.PeriodMs)
	if err != nil {
		return nil, err
	}

	// 3. Wire the run
	ledger := portfolio.NewLedger(cfg.InitialBalance, cfg.Execution, domain.ModeBacktest)
	engine := NewEngine(EngineOptions{
		Symbol:           cfg.Symbol,
		PeriodMs:         cfg.PeriodMs,
		Strategy:         strat,
		Machine:          exits.NewMachine(cfg.Exits),
		Ledger:           ledger,
		Risk:             cfg.riskConfig(),
		HigherTF:         cfg.HigherTF,
		HigherTFPeriodMs: cfg.HigherTFPeriodMs,
		ATRPeriod:        cfg.TrailATRPeriod,
	})

	// 4. Candle loop
	for i := range cfg.Candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := engine.Step(ctx, cfg.Candles, i); err != nil {
			return nil, err
		}
	}

	// 5. Forced close at the end of data
	last := cfg.Candles[len(cfg.Candles)-1]
	if err := engine.ForceCloseAll(last.Close, last.CloseTimeMs(cfg.PeriodMs)); err != nil {
		return nil, err
	}

	result := r.buildResult(cfg, strat.ID(), ledger, engine)

	// 6. Fire-and-forget persistence
	r.persist(ctx, result)

	// 7. Done
	return result, nil
}

// RunMany executes independent runs in parallel, one goroutine per
// config. Each run has its own ledger; results align with the input
// order. The first error is returned alongside whatever completed.
func (r *Runner) RunMany(ctx context.Context, cfgs []Config) ([]*Result, error) {
	results := make([]*Result, len(cfgs))
	errs := make([]error, len(cfgs))

	var wg sync.WaitGroup
	for i := range cfgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Run(ctx, cfgs[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (r *Runner) buildResult(cfg Config, strategyID string, ledger *portfolio.Ledger, engine *Engine) *Result {
	p := ledger.Portfolio()
	agg := stats.ComputeFromTrades(p.ClosedTrades, strategyID)

	return &Result{
		FinalBalance:    p.Balance,
		TotalTrades:     agg.TotalTrades,
		WinRate:         agg.WinRate,
		ProfitFactor:    agg.ProfitFactor,
		MaxDrawdown:     stats.MaxEquityDrawdown(p.EquityCurve),
		TotalPnL:        agg.TotalPnL,
		TotalPnLPercent: agg.TotalPnL / cfg.InitialBalance * 100,
		EquityCurve:     p.EquityCurve,
		DrawdownCurve:   stats.DrawdownCurve(p.EquityCurve),
		Trades:          p.ClosedTrades,
		HoldReasons:     engine.HoldReasons,
		SkippedEntries:  engine.SkippedEntries,
		Meta: Meta{
			Symbol:     cfg.Symbol,
			StrategyID: strategyID,
			Mode:       domain.ModeBacktest,
			PeriodMs:   cfg.PeriodMs,
			Candles:    len(cfg.Candles),
			StartMs:    cfg.Candles[0].TimestampMs,
			EndMs:      cfg.Candles[len(cfg.Candles)-1].TimestampMs,
		},
	}
}

// persist writes the run output. Failures are logged and swallowed:
// storage must never fail a simulation.
func (r *Runner) persist(ctx context.Context, res *Result) {
	if r.tradeStore != nil {
		for _, t := range res.Trades {
			if err := r.tradeStore.Upsert(ctx, t); err != nil {
				r.logger.Printf("trade persist failed for %s: %v", t.TradeID, err)
				break
			}
		}
	}
	if r.equityStore != nil {
		runID := runID(res.Meta)
		if err := r.equityStore.InsertBatch(ctx, runID, res.EquityCurve); err != nil {
			r.logger.Printf("equity curve persist failed for %s: %v", runID, err)
		}
	}
}

func runID(m Meta) string {
	return m.Symbol + "/" + m.StrategyID + "/" + m.Mode
}
