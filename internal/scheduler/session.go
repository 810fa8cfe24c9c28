// Package scheduler runs paper and real trading sessions on a
// fixed-interval timer. Each tick replays the backtest engine's cycle
// against freshly fetched candle history, so the three run modes share
// one decision path and differ only in candle source and clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"candle-trade-lab/internal/backtest"
	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/exchange"
	"candle-trade-lab/internal/exits"
	"candle-trade-lab/internal/feed"
	"candle-trade-lab/internal/portfolio"
	"candle-trade-lab/internal/storage"
	"candle-trade-lab/internal/strategy"
)

// Session lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("scheduler: session already running")
	ErrNotRunning     = errors.New("scheduler: session not running")
	ErrNoExchange     = errors.New("scheduler: exchange is required")
	ErrInvalidMode    = errors.New("scheduler: mode must be paper or real")
)

// defaultHistory is the candle depth fetched per tick; deep enough for
// every indicator warm-up the strategy factory can configure.
const defaultHistory = 500

// Advancer is implemented by exchanges with a simulated clock. The
// paper session advances it one bar per tick.
type Advancer interface {
	Advance(symbol string)
}

// Config describes one trading session.
type Config struct {
	Symbol   string
	PeriodMs int64
	Mode     string // domain.ModePaper or domain.ModeReal

	// Optional higher-timeframe context, refetched every tick.
	HigherTFPeriodMs int64

	Strategy       domain.StrategyConfig
	InitialBalance float64
	Execution      domain.ExecutionConfig
	Exits          exits.Config

	// TrailATRPeriod feeds the ATR trail variant; 0 = pct trail only.
	TrailATRPeriod int

	// TickInterval is the timer period; defaults to the candle period.
	TickInterval time.Duration

	// History caps the candle depth fetched per tick.
	History int
}

// Validate checks the config before any session state is created.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return backtest.ErrEmptySymbol
	}
	if c.PeriodMs <= 0 {
		return backtest.ErrInvalidPeriod
	}
	if c.InitialBalance <= 0 {
		return backtest.ErrInvalidBalance
	}
	if c.Mode != domain.ModePaper && c.Mode != domain.ModeReal {
		return ErrInvalidMode
	}
	return nil
}

func (c *Config) riskConfig() domain.RiskConfig {
	if c.Strategy.Risk != nil {
		return *c.Strategy.Risk
	}
	return domain.DefaultRiskConfig()
}

// Stats counts tick outcomes for diagnostics.
type Stats struct {
	Ticks   int64
	Skipped int64 // previous tick still running
	Errors  int64 // fetch or step failures, cycle survived
	Candles int64 // closed candles processed
}

// TickOutcome describes one finished tick for observers.
type TickOutcome struct {
	Skipped  bool
	Err      error
	Duration time.Duration
	Candles  int // closed candles stepped this tick
}

// Options contains collaborators for creating a Session.
type Options struct {
	Exchange exchange.Exchange

	// Optional stores; writes are fire-and-forget.
	TradeStore  storage.TradeStore
	EquityStore storage.EquityCurveStore

	// Observer receives trade events after the session's own handling,
	// e.g. for metrics. Optional.
	Observer backtest.TradeSink

	// TickObserver receives each tick's outcome after it finishes,
	// including dropped overlapping firings. Optional.
	TickObserver func(TickOutcome)

	Logger *log.Logger

	// now is injectable for tests.
	Now func() time.Time
}

// Session owns one (symbol, strategy, mode) trading loop: its ledger,
// engine and candle cache. Multiple sessions are independent instances;
// nothing is shared process-wide.
type Session struct {
	cfg    Config
	exch   exchange.Exchange
	engine *backtest.Engine
	ledger *portfolio.Ledger
	strat  strategy.Evaluator

	tradeStore   storage.TradeStore
	equityStore  storage.EquityCurveStore
	observer     backtest.TradeSink
	tickObserver func(TickOutcome)
	logger       *log.Logger
	now          func() time.Time

	// series is the merged closed-candle cache; lastProcessedMs marks
	// the newest candle the engine has stepped on.
	series          []domain.Candle
	lastProcessedMs int64
	equityPersisted int

	running  atomic.Bool
	tickBusy atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

var _ backtest.TradeSink = (*Session)(nil)

// NewSession wires a session. The engine, exit machine and ledger are
// the same components the backtest runner uses.
func NewSession(cfg Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Exchange == nil {
		return nil, ErrNoExchange
	}

	strat, err := strategy.FromConfig(cfg.Strategy, cfg.PeriodMs)
	if err != nil {
		return nil, err
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Duration(cfg.PeriodMs) * time.Millisecond
	}
	if cfg.History <= 0 {
		cfg.History = defaultHistory
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		cfg:          cfg,
		exch:         opts.Exchange,
		tradeStore:   opts.TradeStore,
		equityStore:  opts.EquityStore,
		observer:     opts.Observer,
		tickObserver: opts.TickObserver,
		logger:       logger,
		now:          now,
	}

	s.ledger = portfolio.NewLedger(cfg.InitialBalance, cfg.Execution, cfg.Mode)
	s.engine = backtest.NewEngine(backtest.EngineOptions{
		Symbol:           cfg.Symbol,
		PeriodMs:         cfg.PeriodMs,
		Strategy:         strat,
		Machine:          exits.NewMachine(cfg.Exits),
		Ledger:           s.ledger,
		Risk:             cfg.riskConfig(),
		HigherTFPeriodMs: cfg.HigherTFPeriodMs,
		ATRPeriod:        cfg.TrailATRPeriod,
		Sink:             s,
	})
	s.strat = strat
	return s, nil
}

// RunID identifies the session's equity curve in storage.
func (s *Session) RunID() string {
	return s.cfg.Symbol + "/" + s.strat.ID() + "/" + s.cfg.Mode
}

// Portfolio exposes the session's ledger state for reporting.
func (s *Session) Portfolio() *domain.Portfolio {
	return s.ledger.Portfolio()
}

// Snapshot returns a mutex-guarded copy of the portfolio, safe to read
// from other goroutines while ticks run.
func (s *Session) Snapshot() domain.Portfolio {
	return s.ledger.Snapshot()
}

// Summary computes the ledger summary, marking any open positions at
// the given prices.
func (s *Session) Summary(marks map[string]float64) portfolio.Summary {
	return s.ledger.GetSummary(marks)
}

// Stats returns a copy of the tick counters.
func (s *Session) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Start arms the timer. The loop runs until Stop or ctx cancellation;
// both only disarm between ticks, never mid-tick.
func (s *Session) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.done = make(chan struct{})

	s.logger.Printf("session %s starting, tick interval %v", s.RunID(), s.cfg.TickInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Printf("session %s stopping: %v", s.RunID(), ctx.Err())
				return
			case <-s.done:
				s.logger.Printf("session %s stopping", s.RunID())
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
	return nil
}

// Stop disarms the timer and waits for an in-flight tick to finish.
func (s *Session) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	close(s.done)
	s.wg.Wait()
	return nil
}

// Tick runs one cycle. Ticks never overlap: if the previous one is
// still running the new firing is dropped. Network and step failures
// are logged and absorbed; the loop survives every tick.
func (s *Session) Tick(ctx context.Context) {
	if !s.tickBusy.CompareAndSwap(false, true) {
		s.count(func(st *Stats) { st.Skipped++ })
		s.logger.Printf("session %s: tick overlap, skipping", s.RunID())
		if s.tickObserver != nil {
			s.tickObserver(TickOutcome{Skipped: true})
		}
		return
	}
	defer s.tickBusy.Store(false)
	s.count(func(st *Stats) { st.Ticks++ })
	start := time.Now()

	if s.cfg.Mode == domain.ModePaper {
		if a, ok := s.exch.(Advancer); ok {
			a.Advance(s.cfg.Symbol)
		}
	}

	processed, err := s.cycle(ctx)
	if err != nil {
		s.count(func(st *Stats) { st.Errors++ })
		s.logger.Printf("session %s: tick failed: %v", s.RunID(), err)
	}

	s.persistEquity(ctx)

	if s.tickObserver != nil {
		s.tickObserver(TickOutcome{
			Err:      err,
			Duration: time.Since(start),
			Candles:  processed,
		})
	}
}

// cycle fetches fresh candles, merges them into the cache and steps the
// engine over every newly closed bar, oldest first.
func (s *Session) cycle(ctx context.Context) (int, error) {
	fresh, err := s.exch.FetchOHLCV(ctx, s.cfg.Symbol, s.cfg.PeriodMs, 0, s.cfg.History)
	if err != nil {
		return 0, fmt.Errorf("fetch candles: %w", err)
	}
	s.series = feed.Merge(s.series, fresh)

	if s.cfg.HigherTFPeriodMs > 0 {
		htf, err := s.exch.FetchOHLCV(ctx, s.cfg.Symbol, s.cfg.HigherTFPeriodMs, 0, s.cfg.History)
		if err != nil {
			return 0, fmt.Errorf("fetch higher timeframe: %w", err)
		}
		s.engine.SetHigherTF(htf)
	}

	// The freshest bar may still be forming; only bars closed by the
	// wall clock are visible to the engine.
	nowMs := s.now().UnixMilli()
	processed := 0
	for i, c := range s.series {
		if c.TimestampMs <= s.lastProcessedMs && s.lastProcessedMs > 0 {
			continue
		}
		if !c.ClosedBy(nowMs, s.cfg.PeriodMs) {
			break
		}
		if err := s.engine.Step(ctx, s.series[:i+1], i); err != nil {
			s.count(func(st *Stats) { st.Candles += int64(processed) })
			return processed, fmt.Errorf("step at %d: %w", c.TimestampMs, err)
		}
		s.lastProcessedMs = c.TimestampMs
		processed++
	}
	s.count(func(st *Stats) { st.Candles += int64(processed) })

	// Between candle closes, mark open positions to the live ticker so
	// the drawdown curve stays continuous.
	if processed == 0 && len(s.series) > 0 {
		price, err := s.exch.FetchTicker(ctx, s.cfg.Symbol)
		if err != nil {
			return 0, fmt.Errorf("fetch ticker: %w", err)
		}
		s.ledger.UpdateEquityCurve(nowMs, map[string]float64{s.cfg.Symbol: price})
	}
	return processed, nil
}

// CloseAll force-closes every open position at the current ticker
// price, used on operator shutdown.
func (s *Session) CloseAll(ctx context.Context) error {
	price, err := s.exch.FetchTicker(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	if err := s.engine.ForceCloseAll(price, s.now().UnixMilli()); err != nil {
		return err
	}
	s.persistEquity(ctx)
	return nil
}

// TradeOpened mirrors the entry to the exchange and persists the trade.
// Both are fire-and-forget relative to the simulation.
func (s *Session) TradeOpened(t *domain.Trade) {
	ctx := context.Background()

	side := exchange.OrderBuy
	if t.Side == domain.SideShort {
		side = exchange.OrderSell
	}
	orderID, err := s.exch.PlaceOrder(ctx, exchange.Order{
		Symbol:   t.Symbol,
		Side:     side,
		Quantity: t.Quantity,
	})
	if err != nil {
		s.logger.Printf("session %s: entry order failed for %s: %v", s.RunID(), t.TradeID, err)
	} else {
		s.logger.Printf("session %s: opened %s qty %.8f order %s", s.RunID(), t.TradeID, t.Quantity, orderID)
	}

	if s.cfg.Exits.TrailPct > 0 {
		tsID, err := s.exch.PlaceTrailingStop(ctx, exchange.TrailingStopOrder{
			Symbol:       t.Symbol,
			Side:         oppositeSide(side),
			Quantity:     t.Quantity,
			ActivationPx: t.EntryPrice,
			CallbackPct:  s.cfg.Exits.TrailPct,
		})
		if err != nil {
			s.logger.Printf("session %s: trailing stop failed for %s: %v", s.RunID(), t.TradeID, err)
		} else {
			s.logger.Printf("session %s: trailing stop %s armed for %s", s.RunID(), tsID, t.TradeID)
		}
	}

	s.persistTrade(ctx, t)
	if s.observer != nil {
		s.observer.TradeOpened(t)
	}
}

// TradeClosed mirrors the exit to the exchange and persists the trade.
func (s *Session) TradeClosed(t *domain.Trade) {
	ctx := context.Background()

	side := exchange.OrderSell
	if t.Side == domain.SideShort {
		side = exchange.OrderBuy
	}
	orderID, err := s.exch.PlaceOrder(ctx, exchange.Order{
		Symbol:   t.Symbol,
		Side:     side,
		Quantity: t.Quantity,
	})
	if err != nil {
		s.logger.Printf("session %s: exit order failed for %s: %v", s.RunID(), t.TradeID, err)
	} else {
		s.logger.Printf("session %s: closed %s (%s) order %s", s.RunID(), t.TradeID, t.ExitReason, orderID)
	}

	s.persistTrade(ctx, t)
	if s.observer != nil {
		s.observer.TradeClosed(t)
	}
}

func (s *Session) persistTrade(ctx context.Context, t *domain.Trade) {
	if s.tradeStore == nil {
		return
	}
	if err := s.tradeStore.Upsert(ctx, t); err != nil {
		s.logger.Printf("session %s: trade persist failed for %s: %v", s.RunID(), t.TradeID, err)
	}
}

// persistEquity appends equity points accumulated since the last
// successful write.
func (s *Session) persistEquity(ctx context.Context) {
	if s.equityStore == nil {
		return
	}
	curve := s.ledger.Portfolio().EquityCurve
	if s.equityPersisted >= len(curve) {
		return
	}
	fresh := curve[s.equityPersisted:]
	if err := s.equityStore.InsertBatch(ctx, s.RunID(), fresh); err != nil {
		s.logger.Printf("session %s: equity persist failed: %v", s.RunID(), err)
		return
	}
	s.equityPersisted = len(curve)
}

func (s *Session) count(fn func(*Stats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

func oppositeSide(side exchange.OrderSide) exchange.OrderSide {
	if side == exchange.OrderBuy {
		return exchange.OrderSell
	}
	return exchange.OrderBuy
}
