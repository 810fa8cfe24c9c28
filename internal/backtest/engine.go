// Package backtest runs the simulation loop over pre-fetched candle
// history. The per-cycle ordering here is the canonical one; the tick
// scheduler replays the same steps against live data.
package backtest

import (
	"context"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/exits"
	"candle-trade-lab/internal/feed"
	"candle-trade-lab/internal/indicator"
	"candle-trade-lab/internal/portfolio"
	"candle-trade-lab/internal/risk"
	"candle-trade-lab/internal/strategy"
)

// TradeSink receives trade lifecycle events. Sinks are fire-and-forget:
// the engine never fails a cycle on sink errors, so implementations log
// their own failures.
type TradeSink interface {
	TradeOpened(t *domain.Trade)
	TradeClosed(t *domain.Trade)
}

// Engine advances one symbol's simulation candle by candle against a
// shared ledger. Not safe for concurrent use; one engine per symbol.
type Engine struct {
	symbol   string
	periodMs int64
	strat    strategy.Evaluator
	machine  *exits.Machine
	ledger   *portfolio.Ledger
	riskCfg  domain.RiskConfig

	higherTF         []domain.Candle
	higherTFPeriodMs int64

	atrPeriod int
	sink      TradeSink

	// Diagnostics: hold reasons seen, count of skipped entries.
	HoldReasons    map[string]int
	SkippedEntries int
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Symbol   string
	PeriodMs int64
	Strategy strategy.Evaluator
	Machine  *exits.Machine
	Ledger   *portfolio.Ledger
	Risk     domain.RiskConfig

	HigherTF         []domain.Candle
	HigherTFPeriodMs int64

	ATRPeriod int       // trailing ATR source, 0 = pct trail only
	Sink      TradeSink // optional
}

// NewEngine creates an engine.
func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		symbol:           opts.Symbol,
		periodMs:         opts.PeriodMs,
		strat:            opts.Strategy,
		machine:          opts.Machine,
		ledger:           opts.Ledger,
		riskCfg:          opts.Risk,
		higherTF:         opts.HigherTF,
		higherTFPeriodMs: opts.HigherTFPeriodMs,
		atrPeriod:        opts.ATRPeriod,
		sink:             opts.Sink,
		HoldReasons:      make(map[string]int),
	}
}

// Step processes the candle at index i. series[:i+1] is the closed
// prefix; everything past i is invisible to this cycle.
// Steps, identical in all run modes:
//  1. Roll daily bookkeeping on a new UTC day
//  2. Advance trailing stops from the previous closed candle
//  3. Resolve exits against the current candle
//  4. Evaluate the strategy on the closed prefix
//  5. Admit, size and open a new trade if the signal is actionable
//  6. Append an equity point at the candle close
func (e *Engine) Step(ctx context.Context, series []domain.Candle, i int) error {
	candle := series[i]
	closeTs := candle.CloseTimeMs(e.periodMs)

	// 1. Daily reset.
	e.ledger.RollDay(candle.TimestampMs)

	// 2. Trailing update from the PREVIOUS candle. The current candle is
	// treated as just-closed; its extrema feed the next cycle.
	if i > 0 {
		prev := series[i-1]
		atr := e.trailingATR(series[:i])
		for _, t := range e.openTrades() {
			e.machine.UpdateTrailing(t, prev, atr)
		}
	}

	// 3. Exit checks against the current candle, conservative-first.
	advisor, _ := e.strat.(exits.Advisor)
	for _, t := range e.openTrades() {
		ins := e.machine.Check(t, candle, series[:i+1], advisor)
		if ins == nil {
			continue
		}
		if err := e.applyExit(t, ins, closeTs); err != nil {
			return err
		}
	}

	// 4. Fresh signal from the closed prefix.
	snap := e.ledger.Snapshot()
	input := &strategy.Input{
		Symbol:              e.symbol,
		Series:              series[:i+1],
		HigherTF:            feed.ClipToClosed(e.higherTF, closeTs, e.higherTFPeriodMs),
		HigherTFPeriodMs:    e.higherTFPeriodMs,
		OpenTrades:          e.ledger.OpenTradesFor(e.symbol, e.strat.ID()),
		LastTradeClosedAtMs: snap.LastTradeClosedAtMs,
	}
	sig, err := e.strat.Evaluate(ctx, input)
	if err != nil {
		return err
	}
	if !sig.Actionable() {
		e.HoldReasons[sig.Diagnostics.Reason]++
	} else {
		// 5. Admission and sizing.
		e.tryOpen(sig, closeTs)
	}

	// 6. Equity sample, every cycle regardless of trade events.
	e.ledger.UpdateEquityCurve(closeTs, map[string]float64{e.symbol: candle.Close})
	return nil
}

// SetHigherTF replaces the higher-timeframe context. The tick scheduler
// refreshes it between cycles as fresh candles arrive.
func (e *Engine) SetHigherTF(series []domain.Candle) {
	e.higherTF = series
}

// ForceCloseAll closes every remaining open position at the given price,
// used at the end of the candle array.
func (e *Engine) ForceCloseAll(price float64, nowMs int64) error {
	for _, t := range e.openTrades() {
		if err := e.ledger.CloseTrade(t, price, domain.ExitReasonEndOfData, nowMs); err != nil {
			return err
		}
		e.notifyClosed(t)
	}
	return nil
}

func (e *Engine) applyExit(t *domain.Trade, ins *exits.Instruction, nowMs int64) error {
	if ins.Partial {
		closed, err := e.ledger.PartialCloseTrade(t, ins.ExitPrice, ins.PartialQuantity, ins.Reason, nowMs)
		if err != nil {
			return err
		}
		if e.sink != nil {
			e.sink.TradeClosed(closed)
		}
		return nil
	}
	if err := e.ledger.CloseTrade(t, ins.ExitPrice, ins.Reason, nowMs); err != nil {
		return err
	}
	e.notifyClosed(t)
	return nil
}

func (e *Engine) tryOpen(sig *domain.Signal, nowMs int64) {
	// Position sizing needs the stop distance; an entry without a stop
	// is unsizeable.
	if sig.StopLoss == nil {
		e.SkippedEntries++
		return
	}

	snap := e.ledger.Snapshot()
	decision := risk.CanOpenTrade(risk.StateFromPortfolio(&snap, nowMs), e.riskCfg)
	if !decision.Allowed {
		e.HoldReasons[decision.Reason]++
		return
	}

	riskPct := e.riskCfg.RiskPercent
	if sig.SizingHint != nil && *sig.SizingHint > 0 && *sig.SizingHint <= 1 {
		riskPct *= *sig.SizingHint
	}
	qty := risk.SizePosition(snap.Balance, sig.Price, *sig.StopLoss, riskPct, e.riskCfg.MaxCapitalFraction)
	if qty <= 0 {
		e.SkippedEntries++
		return
	}

	side := domain.SideLong
	if sig.Action == domain.ActionSell {
		side = domain.SideShort
	}
	t, err := e.ledger.OpenTrade(sig, e.symbol, e.strat.ID(), side, qty)
	if err != nil {
		e.SkippedEntries++
		return
	}
	if obs, ok := e.strat.(strategy.TradeObserver); ok {
		obs.OnTradeOpened(t)
	}
	if e.sink != nil {
		e.sink.TradeOpened(t)
	}
}

func (e *Engine) notifyClosed(t *domain.Trade) {
	if obs, ok := e.strat.(strategy.TradeObserver); ok {
		obs.OnTradeClosed(t)
	}
	if e.sink != nil {
		e.sink.TradeClosed(t)
	}
}

func (e *Engine) openTrades() []*domain.Trade {
	return e.ledger.OpenTradesFor(e.symbol, e.strat.ID())
}

// trailingATR returns the ATR of the prefix ending at the previous
// closed candle, for the ATR trail variant.
func (e *Engine) trailingATR(prefix []domain.Candle) float64 {
	if e.atrPeriod <= 0 || len(prefix) < e.atrPeriod+1 {
		return 0
	}
	atr := indicator.ATR(prefix, e.atrPeriod)
	return atr[len(atr)-1]
}
