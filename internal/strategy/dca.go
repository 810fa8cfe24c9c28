package strategy

import (
	"context"
	"fmt"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/indicator"
)

// AccumulationState tracks one multi-entry cost-averaging cycle. Owned
// by a single DCAStrategy instance and advanced only through the trade
// observer hooks, never inside Evaluate.
type AccumulationState struct {
	Entries      []float64 // entry prices of the open cycle, in order
	CycleStartMs int64
}

// AverageCost returns the mean entry price of the open cycle.
func (st *AccumulationState) AverageCost() float64 {
	if len(st.Entries) == 0 {
		return 0
	}
	var sum float64
	for _, p := range st.Entries {
		sum += p
	}
	return sum / float64(len(st.Entries))
}

// Reset clears the cycle after completion.
func (st *AccumulationState) Reset() {
	st.Entries = nil
	st.CycleStartMs = 0
}

// DCAStrategy accumulates a long position across falling price levels.
// The first entry triggers on an oversold reading; each re-entry is
// gated on price dropping LevelDropPct below the previous entry, up to
// MaxEntries. The whole cycle exits together when price recovers
// TakeProfitPct above the average cost; a wide per-entry stop bounds the
// worst case.
type DCAStrategy struct {
	RSIPeriod     int
	OversoldRSI   float64
	MaxEntries    int
	LevelDropPct  float64 // e.g. 0.02 = re-enter 2% below last entry
	TakeProfitPct float64 // e.g. 0.015 = cycle exit 1.5% above average cost

	state AccumulationState
}

// NewDCAStrategy creates a DCAStrategy.
func NewDCAStrategy(rsiPeriod int, oversoldRSI float64, maxEntries int, levelDropPct, takeProfitPct float64) *DCAStrategy {
	return &DCAStrategy{
		RSIPeriod:     rsiPeriod,
		OversoldRSI:   oversoldRSI,
		MaxEntries:    maxEntries,
		LevelDropPct:  levelDropPct,
		TakeProfitPct: takeProfitPct,
	}
}

// ID returns the strategy identifier including parameters.
func (s *DCAStrategy) ID() string {
	return fmt.Sprintf("DCA_rsi%d@%.0f_lv%d_drop%.1f%%_tp%.1f%%",
		s.RSIPeriod, s.OversoldRSI, s.MaxEntries, s.LevelDropPct*100, s.TakeProfitPct*100)
}

// Warmup returns the minimum candle count.
func (s *DCAStrategy) Warmup() int {
	return s.RSIPeriod + 2
}

// State exposes the current accumulation cycle (read-only use).
func (s *DCAStrategy) State() AccumulationState {
	return s.state
}

// Evaluate implements Evaluator. It reads the accumulation state but
// never mutates it; the observer hooks advance the cycle.
func (s *DCAStrategy) Evaluate(_ context.Context, in *Input) (*domain.Signal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if len(in.Series) < s.Warmup() {
		return hold(in, domain.ReasonInsufficientCandles), nil
	}

	series := in.Series
	i := len(series) - 1
	last := series[i]

	rsi := indicator.RSI(series, s.RSIPeriod)
	if anyNaN(rsi[i]) {
		return hold(in, domain.ReasonIndicatorNaN), nil
	}

	diag := domain.Diagnostics{Values: map[string]float64{
		"rsi":     rsi[i],
		"entries": float64(len(s.state.Entries)),
		"avgCost": s.state.AverageCost(),
	}}

	entries := len(s.state.Entries)
	switch {
	case entries == 0:
		// Fresh cycle: wait for an oversold reading.
		if rsi[i] >= s.OversoldRSI {
			diag.Reason = domain.ReasonNoSetup
			return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
		}
	case entries >= s.MaxEntries:
		diag.Reason = domain.ReasonMaxPositions
		return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
	default:
		// Re-entry only after the gated drawdown below the last level.
		lastEntry := s.state.Entries[entries-1]
		if last.Close > lastEntry*(1-s.LevelDropPct) {
			diag.Reason = domain.ReasonDrawdownGate
			return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
		}
	}

	// The per-entry stop bounds the worst case below the deepest
	// possible level; the cycle normally exits via ShouldExit.
	stop := last.Close * (1 - float64(s.MaxEntries)*s.LevelDropPct - s.LevelDropPct)
	return &domain.Signal{
		Action:      domain.ActionBuy,
		Price:       last.Close,
		TimestampMs: last.TimestampMs,
		StopLoss:    &stop,
		TakeProfit:  nil, // cycle-level exit via advisor
		SizingHint:  domain.Float64Ptr(1.0 / float64(s.MaxEntries)),
		Diagnostics: diag,
	}, nil
}

// ShouldExit implements ExitAdvisor: the whole cycle closes when price
// recovers TakeProfitPct above the average cost.
func (s *DCAStrategy) ShouldExit(_ *domain.Trade, series []domain.Candle) (bool, string) {
	if len(s.state.Entries) == 0 || len(series) == 0 {
		return false, ""
	}
	target := s.state.AverageCost() * (1 + s.TakeProfitPct)
	if series[len(series)-1].Close >= target {
		return true, domain.ExitReasonTakeProfit
	}
	return false, ""
}

// OnTradeOpened implements TradeObserver.
func (s *DCAStrategy) OnTradeOpened(t *domain.Trade) {
	if len(s.state.Entries) == 0 {
		s.state.CycleStartMs = t.OpenedAtMs
	}
	s.state.Entries = append(s.state.Entries, t.EntryPrice)
}

// OnTradeClosed implements TradeObserver.
func (s *DCAStrategy) OnTradeClosed(_ *domain.Trade) {
	if n := len(s.state.Entries); n > 0 {
		s.state.Entries = s.state.Entries[:n-1]
	}
	if len(s.state.Entries) == 0 {
		s.state.Reset()
	}
}

var (
	_ Evaluator     = (*DCAStrategy)(nil)
	_ ExitAdvisor   = (*DCAStrategy)(nil)
	_ TradeObserver = (*DCAStrategy)(nil)
)
