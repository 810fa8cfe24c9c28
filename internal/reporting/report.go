package reporting

import "time"

// Report summarises one or more simulation runs.
type Report struct {
	// Metadata
	GeneratedAt   time.Time
	RunCount      int
	StrategyCount int

	// Per-run summary rows (sorted by symbol, strategy_id, mode)
	RunSummaries []RunSummaryRow

	// Exit reason breakdown across all runs
	ExitBreakdown []ExitReasonRow

	// Hold reason breakdown (why cycles produced no entry), when the
	// source carries diagnostics; empty for store-backed reports
	HoldBreakdown []HoldReasonRow

	// Closed trades (sorted by closed_at, trade_id)
	Trades []TradeRow
}

// RunSummaryRow is the headline table: one row per (symbol, strategy,
// mode) run.
type RunSummaryRow struct {
	Symbol     string
	StrategyID string
	Mode       string

	TotalTrades     int
	Wins            int
	Losses          int
	WinRate         float64
	ProfitFactor    float64 // +Inf when there are no losing trades
	TotalPnL        float64
	TotalPnLPercent float64 // 0 when the initial balance is unknown
	MaxDrawdown     float64
	FinalBalance    float64 // 0 when the initial balance is unknown

	MaxConsecutiveLosses int
}

// ExitReasonRow counts closes per exit reason.
type ExitReasonRow struct {
	Reason   string
	Count    int
	TotalPnL float64
}

// HoldReasonRow counts cycles that produced no entry, per reason.
type HoldReasonRow struct {
	Reason string
	Count  int
}

// TradeRow is one closed trade in the report's trade list.
type TradeRow struct {
	TradeID    string
	Symbol     string
	StrategyID string
	Mode       string
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	RMultiple  float64 // realised exit move over initial risk
	ExitReason string
	OpenedAtMs int64
	ClosedAtMs int64
}
