// Package portfolio owns capital accounting. The Ledger is the only
// component that mutates balance; every fill passes through it with
// slippage and fees applied.
package portfolio

import (
	"errors"
	"sync"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/idhash"
)

// Ledger errors.
var (
	ErrNilSignal       = errors.New("nil signal")
	ErrMissingStopLoss = errors.New("signal has no stop-loss")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrTradeNotOpen    = errors.New("trade is not open")
	ErrInvalidPartial  = errors.New("partial quantity must be positive and below the open quantity")
)

const msPerDay = int64(24 * 60 * 60 * 1000)

// Ledger wraps one Portfolio with fill accounting. Single-symbol runs
// call it from one goroutine; multi-symbol runs share one Ledger across
// symbol goroutines and the mutex serializes every mutation.
type Ledger struct {
	mu   sync.Mutex
	p    *domain.Portfolio
	exec domain.ExecutionConfig
	mode string
}

// NewLedger creates a ledger over a fresh portfolio.
func NewLedger(initialBalance float64, exec domain.ExecutionConfig, mode string) *Ledger {
	return &Ledger{
		p:    domain.NewPortfolio(initialBalance),
		exec: exec,
		mode: mode,
	}
}

// Portfolio returns the underlying portfolio. Callers read it to derive
// risk state and summaries; all mutation goes through ledger operations.
func (l *Ledger) Portfolio() *domain.Portfolio {
	return l.p
}

// Snapshot returns a copy of the portfolio's scalar state, safe to read
// while other goroutines mutate the ledger. Trade and curve slices are
// not copied.
func (l *Ledger) Snapshot() domain.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Portfolio{
		Balance:             l.p.Balance,
		InitialBalance:      l.p.InitialBalance,
		PeakBalance:         l.p.PeakBalance,
		DailyStartBalance:   l.p.DailyStartBalance,
		LastDayResetMs:      l.p.LastDayResetMs,
		TradesToday:         l.p.TradesToday,
		LastTradeClosedAtMs: l.p.LastTradeClosedAtMs,
	}
}

// Balance returns the current cash balance.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p.Balance
}

// OpenTradesFor returns the open trades for one symbol and strategy.
func (l *Ledger) OpenTradesFor(symbol, strategyID string) []*domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Trade
	for _, t := range l.p.OpenTrades {
		if t.Symbol == symbol && t.StrategyID == strategyID {
			out = append(out, t)
		}
	}
	return out
}

// RollDay resets the daily bookkeeping when nowMs falls on a new UTC
// day. Idempotent within a day.
func (l *Ledger) RollDay(nowMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	day := nowMs - nowMs%msPerDay
	if l.p.LastDayResetMs == day {
		return
	}
	l.p.LastDayResetMs = day
	l.p.DailyStartBalance = l.p.Balance
	l.p.TradesToday = 0
}

// OpenTrade admits a sized signal into the book. Entry price is
// slippage-adjusted against the position; the fee is charged on the
// adjusted notional. Long entries debit the balance, short entries
// credit the proceeds.
func (l *Ledger) OpenTrade(sig *domain.Signal, symbol, strategyID string, side domain.Side, quantity float64) (*domain.Trade, error) {
	if sig == nil {
		return nil, ErrNilSignal
	}
	if sig.StopLoss == nil {
		return nil, ErrMissingStopLoss
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := sig.Price * (1 + l.exec.Slippage)
	if side == domain.SideShort {
		entry = sig.Price * (1 - l.exec.Slippage)
	}
	notional := entry * quantity
	fee := notional * l.exec.FeeRate

	stop := *sig.StopLoss
	risk := entry - stop
	if side == domain.SideShort {
		risk = stop - entry
	}

	t := &domain.Trade{
		TradeID:         idhash.ComputeTradeID(symbol, strategyID, string(side), l.mode, sig.TimestampMs),
		Symbol:          symbol,
		Side:            side,
		StrategyID:      strategyID,
		Mode:            l.mode,
		EntryPrice:      entry,
		Quantity:        quantity,
		EntryFee:        fee,
		OpenedAtMs:      sig.TimestampMs,
		StopLoss:        stop,
		TakeProfit:      sig.TakeProfit,
		TakeProfit1:     sig.TakeProfit1,
		InitialStopLoss: stop,
		InitialRisk:     risk,
		HighestPrice:    entry,
		LowestPrice:     entry,
		Status:          domain.StatusOpen,
	}

	if side == domain.SideLong {
		l.p.Balance -= notional + fee
	} else {
		l.p.Balance += notional - fee
	}
	l.p.OpenTrades = append(l.p.OpenTrades, t)
	l.p.TradesToday++
	l.appendEquityPointLocked(sig.TimestampMs, map[string]float64{symbol: sig.Price})
	return t, nil
}

// CloseTrade closes the full open quantity at rawPrice (slippage and
// exit fee applied), credits the balance, advances the peak, and moves
// the trade to the closed list.
func (l *Ledger) CloseTrade(t *domain.Trade, rawPrice float64, reason string, nowMs int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOfOpenLocked(t.TradeID)
	if idx < 0 {
		return ErrTradeNotOpen
	}

	exit, exitFee := l.fillExit(t.Side, rawPrice, t.Quantity)
	pnl := priceMovePnL(t.Side, t.EntryPrice, exit, t.Quantity) - t.EntryFee - exitFee

	l.settleLocked(t.Side, exit, t.Quantity, exitFee)

	t.Status = domain.StatusClosed
	t.ExitPrice = exit
	t.ExitFee = exitFee
	t.PnL = pnl
	t.ExitReason = reason
	t.ClosedAtMs = nowMs

	l.p.OpenTrades = append(l.p.OpenTrades[:idx], l.p.OpenTrades[idx+1:]...)
	l.p.ClosedTrades = append(l.p.ClosedTrades, t)
	l.p.LastTradeClosedAtMs = nowMs
	if l.p.Balance > l.p.PeakBalance {
		l.p.PeakBalance = l.p.Balance
	}
	l.appendEquityPointLocked(nowMs, map[string]float64{t.Symbol: rawPrice})
	return nil
}

// PartialCloseTrade closes partialQty at rawPrice and keeps the
// remainder open with a prorated entry fee and the partial flag set so
// the same level cannot re-trigger. The closed slice becomes its own
// record with its own PnL.
func (l *Ledger) PartialCloseTrade(t *domain.Trade, rawPrice, partialQty float64, reason string, nowMs int64) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOfOpenLocked(t.TradeID) < 0 {
		return nil, ErrTradeNotOpen
	}
	if partialQty <= 0 || partialQty >= t.Quantity {
		return nil, ErrInvalidPartial
	}

	exit, exitFee := l.fillExit(t.Side, rawPrice, partialQty)
	feeShare := t.EntryFee * partialQty / t.Quantity
	pnl := priceMovePnL(t.Side, t.EntryPrice, exit, partialQty) - feeShare - exitFee

	l.settleLocked(t.Side, exit, partialQty, exitFee)

	closed := *t
	closed.TradeID = t.TradeID + "-p"
	closed.Quantity = partialQty
	closed.EntryFee = feeShare
	closed.Status = domain.StatusClosed
	closed.ExitPrice = exit
	closed.ExitFee = exitFee
	closed.PnL = pnl
	closed.ExitReason = reason
	closed.ClosedAtMs = nowMs

	t.Quantity -= partialQty
	t.EntryFee -= feeShare
	t.PartialCloseDone = true
	t.Status = domain.StatusPartial

	l.p.ClosedTrades = append(l.p.ClosedTrades, &closed)
	l.p.LastTradeClosedAtMs = nowMs
	if l.p.Balance > l.p.PeakBalance {
		l.p.PeakBalance = l.p.Balance
	}
	l.appendEquityPointLocked(nowMs, map[string]float64{t.Symbol: rawPrice})
	return &closed, nil
}

// UpdateEquityCurve appends one equity sample, marking every open
// position to its symbol's price. Missing symbols mark at entry price
// so a gap in the feed never zeroes the equity.
func (l *Ledger) UpdateEquityCurve(nowMs int64, marks map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendEquityPointLocked(nowMs, marks)
}

// Summary is a pure read of the run outcome so far.
type Summary struct {
	Balance         float64
	Equity          float64
	TotalPnL        float64
	TotalPnLPercent float64
	MaxDrawdown     float64
	OpenTrades      int
	ClosedTrades    int
}

// GetSummary derives the headline numbers. No mutation.
func (l *Ledger) GetSummary(marks map[string]float64) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity := l.equityLocked(marks)
	s := Summary{
		Balance:      l.p.Balance,
		Equity:       equity,
		OpenTrades:   len(l.p.OpenTrades),
		ClosedTrades: len(l.p.ClosedTrades),
	}
	for _, t := range l.p.ClosedTrades {
		s.TotalPnL += t.PnL
	}
	if l.p.InitialBalance > 0 {
		s.TotalPnLPercent = s.TotalPnL / l.p.InitialBalance * 100
	}
	if l.p.PeakBalance > 0 {
		s.MaxDrawdown = (l.p.PeakBalance - l.p.Balance) / l.p.PeakBalance
		if s.MaxDrawdown < 0 {
			s.MaxDrawdown = 0
		}
	}
	return s
}

func (l *Ledger) fillExit(side domain.Side, rawPrice, qty float64) (exit, fee float64) {
	exit = rawPrice * (1 - l.exec.Slippage)
	if side == domain.SideShort {
		exit = rawPrice * (1 + l.exec.Slippage)
	}
	return exit, exit * qty * l.exec.FeeRate
}

// settleLocked applies the exit cash flow: longs receive the proceeds,
// shorts pay to buy back.
func (l *Ledger) settleLocked(side domain.Side, exit, qty, exitFee float64) {
	if side == domain.SideLong {
		l.p.Balance += exit*qty - exitFee
	} else {
		l.p.Balance -= exit*qty + exitFee
	}
}

func priceMovePnL(side domain.Side, entry, exit, qty float64) float64 {
	if side == domain.SideLong {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}

func (l *Ledger) indexOfOpenLocked(tradeID string) int {
	for i, t := range l.p.OpenTrades {
		if t.TradeID == tradeID {
			return i
		}
	}
	return -1
}

func (l *Ledger) equityLocked(marks map[string]float64) float64 {
	equity := l.p.Balance
	for _, t := range l.p.OpenTrades {
		mark, ok := marks[t.Symbol]
		if !ok {
			mark = t.EntryPrice
		}
		equity += t.Notional(mark)
	}
	return equity
}

func (l *Ledger) appendEquityPointLocked(nowMs int64, marks map[string]float64) {
	l.p.EquityCurve = append(l.p.EquityCurve, domain.EquityPoint{
		TimestampMs: nowMs,
		Balance:     l.p.Balance,
		Equity:      l.equityLocked(marks),
	})
}
