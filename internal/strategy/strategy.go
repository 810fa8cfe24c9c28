package strategy

import (
	"context"
	"errors"

	"candle-trade-lab/internal/domain"
)

// Input validation errors.
var (
	ErrNilInput    = errors.New("nil strategy input")
	ErrEmptySeries = errors.New("strategy input has empty candle series")
)

// Evaluator produces a signal from a candle-series prefix. The contract:
//
//   - Evaluate must read only the supplied series prefix; everything past
//     its last index is unavailable for that call (no-lookahead).
//   - Returns HOLD, with Diagnostics.Reason set, whenever fewer than
//     Warmup() candles are available or a required indicator is NaN.
//   - On BUY/SELL the stop-loss is strictly on the losing side of the
//     price; a nil take-profit means "runner, exit via trailing only."
//   - Evaluate never mutates the input; two calls with identical frozen
//     inputs yield identical signals.
type Evaluator interface {
	// Evaluate maps the series prefix and context to a signal. Errors
	// are reserved for contract violations (nil input); data
	// insufficiency resolves to HOLD.
	Evaluate(ctx context.Context, input *Input) (*domain.Signal, error)

	// ID returns the strategy identifier (includes parameters).
	ID() string

	// Warmup returns the minimum candle count before the strategy can
	// produce a non-HOLD signal.
	Warmup() int
}

// TradeObserver is an optional extension for strategies that advance
// private state (e.g. an accumulation cycle) as trades open and close.
// The orchestrator invokes the hooks; Evaluate itself stays pure.
type TradeObserver interface {
	OnTradeOpened(t *domain.Trade)
	OnTradeClosed(t *domain.Trade)
}

// ExitAdvisor is an optional extension for strategies with an early or
// opposite-signal exit rule. Consulted by the exit pipeline after the
// hard checks; returns a reason code when the position should close.
type ExitAdvisor interface {
	ShouldExit(trade *domain.Trade, series []domain.Candle) (bool, string)
}

// Input holds all data available for one evaluation. Series contains
// only closed candles up to the cursor; HigherTF has already been
// clipped by the caller so its last bar is fully closed too.
type Input struct {
	Symbol string
	Series []domain.Candle

	// Optional higher-timeframe context.
	HigherTF         []domain.Candle
	HigherTFPeriodMs int64

	// Open trades for this symbol+strategy, for max-position gating.
	OpenTrades []*domain.Trade

	// Portfolio-derived context.
	LastTradeClosedAtMs int64
}

// Validate checks the input at the package boundary.
func (in *Input) Validate() error {
	if in == nil {
		return ErrNilInput
	}
	if len(in.Series) == 0 {
		return ErrEmptySeries
	}
	return nil
}

// Last returns the final (most recent closed) candle of the series.
func (in *Input) Last() domain.Candle {
	return in.Series[len(in.Series)-1]
}
