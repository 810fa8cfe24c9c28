package domain

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	TimestampMs int64
	Balance     float64 // cash balance
	Equity      float64 // balance + signed open notional
}

// Portfolio holds the capital state for one simulation run. Owned by
// exactly one orchestrator or tick session; never shared across runs.
// Balance changes only through ledger operations.
type Portfolio struct {
	Balance        float64
	InitialBalance float64
	PeakBalance    float64

	OpenTrades   []*Trade
	ClosedTrades []*Trade
	EquityCurve  []EquityPoint

	// Daily-reset bookkeeping (UTC days).
	DailyStartBalance float64
	LastDayResetMs    int64
	TradesToday       int

	LastTradeClosedAtMs int64
}

// NewPortfolio creates a portfolio with an initial cash balance.
func NewPortfolio(initialBalance float64) *Portfolio {
	return &Portfolio{
		Balance:           initialBalance,
		InitialBalance:    initialBalance,
		PeakBalance:       initialBalance,
		DailyStartBalance: initialBalance,
	}
}

// Drawdown returns the current decline from peak balance, in [0, 1].
func (p *Portfolio) Drawdown() float64 {
	if p.PeakBalance <= 0 {
		return 0
	}
	dd := (p.PeakBalance - p.Balance) / p.PeakBalance
	if dd < 0 {
		return 0
	}
	return dd
}

// DailyLoss returns today's decline from the daily start balance, in [0, 1].
func (p *Portfolio) DailyLoss() float64 {
	if p.DailyStartBalance <= 0 {
		return 0
	}
	loss := (p.DailyStartBalance - p.Balance) / p.DailyStartBalance
	if loss < 0 {
		return 0
	}
	return loss
}
