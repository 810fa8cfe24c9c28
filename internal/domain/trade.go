package domain

import "math"

// Side of a position.
type Side string

// Side constants.
const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TradeStatus tracks a trade through its lifecycle.
type TradeStatus string

// Trade status constants.
const (
	StatusOpen    TradeStatus = "OPEN"
	StatusPartial TradeStatus = "PARTIAL"
	StatusClosed  TradeStatus = "CLOSED"
)

// Exit reason codes.
const (
	ExitReasonStopLoss       = "STOP_LOSS"
	ExitReasonTakeProfit     = "TAKE_PROFIT"
	ExitReasonPartialTP      = "PARTIAL_TAKE_PROFIT"
	ExitReasonTrailingStop   = "TRAILING_STOP"
	ExitReasonOppositeSignal = "OPPOSITE_SIGNAL"
	ExitReasonTimeExit       = "TIME_EXIT"
	ExitReasonEndOfData      = "END_OF_DATA"
)

// Run mode constants.
const (
	ModeBacktest = "backtest"
	ModePaper    = "paper"
	ModeReal     = "real"
)

// Trade is the unit of position accounting. Created by the portfolio
// ledger in response to an admitted signal; its stop may be tightened by
// the exit state machine; it is moved to the closed list on full close.
//
// TakeProfit nil is intentional runner policy: the trade is exited only
// by stop-loss, trailing stop, opposite signal, or time exit. The
// trailing machinery is always armed for such trades, so the position is
// never truly uncapped.
type Trade struct {
	TradeID    string
	Symbol     string
	Side       Side
	StrategyID string
	Mode       string

	// Entry (price already slippage-adjusted).
	EntryPrice  float64
	Quantity    float64
	EntryFee    float64
	OpenedAtMs  int64

	// Protective levels. StopLoss is mutable but may only tighten.
	StopLoss         float64
	TakeProfit       *float64
	TakeProfit1      *float64
	PartialCloseDone bool

	// Frozen at open, used for R-multiple math.
	InitialStopLoss float64
	InitialRisk     float64 // |entryPrice - initialStopLoss|

	// Trailing extrema and age, advanced once per closed candle.
	HighestPrice float64
	LowestPrice  float64
	CandleCount  int

	Status TradeStatus

	// Set once, on close.
	ExitPrice  float64
	ExitFee    float64
	PnL        float64
	ExitReason string
	ClosedAtMs int64
}

// RMultiple expresses the unrealized move at price as a multiple of the
// initial risk distance. Returns 0 when the initial risk is degenerate.
func (t *Trade) RMultiple(price float64) float64 {
	if t.InitialRisk <= 0 || math.IsNaN(t.InitialRisk) {
		return 0
	}
	if t.Side == SideLong {
		return (price - t.EntryPrice) / t.InitialRisk
	}
	return (t.EntryPrice - price) / t.InitialRisk
}

// Notional returns the signed mark value of the open quantity: positive
// for long, negative for short.
func (t *Trade) Notional(markPrice float64) float64 {
	if t.Side == SideShort {
		return -markPrice * t.Quantity
	}
	return markPrice * t.Quantity
}

// UnrealizedPnL returns the fee-free price move PnL at markPrice.
func (t *Trade) UnrealizedPnL(markPrice float64) float64 {
	if t.Side == SideLong {
		return (markPrice - t.EntryPrice) * t.Quantity
	}
	return (t.EntryPrice - markPrice) * t.Quantity
}
