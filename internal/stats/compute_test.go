package stats

import (
	"fmt"
	"math"
	"testing"

	"candle-trade-lab/internal/domain"
)

func tradesFromPnls(pnls []float64) []*domain.Trade {
	out := make([]*domain.Trade, len(pnls))
	for i, p := range pnls {
		out[i] = &domain.Trade{
			TradeID:    fmt.Sprintf("t%03d", i),
			PnL:        p,
			ClosedAtMs: int64(1000 + i*60),
			Status:     domain.StatusClosed,
		}
	}
	return out
}

func TestComputeFromTrades_Empty(t *testing.T) {
	agg := ComputeFromTrades(nil, "TREND")
	if agg.TotalTrades != 0 || agg.WinRate != 0 || agg.MaxDrawdown != 0 {
		t.Errorf("empty input should yield a zero aggregate, got %+v", agg)
	}
	if agg.StrategyID != "TREND" {
		t.Errorf("strategy id should carry through, got %s", agg.StrategyID)
	}
}

func TestComputeFromTrades_Counts(t *testing.T) {
	agg := ComputeFromTrades(tradesFromPnls([]float64{10, -5, 20, -5, -10, 30}), "TREND")

	if agg.TotalTrades != 6 {
		t.Errorf("expected 6 trades, got %d", agg.TotalTrades)
	}
	if agg.Wins != 3 || agg.Losses != 3 {
		t.Errorf("expected 3/3 wins/losses, got %d/%d", agg.Wins, agg.Losses)
	}
	if agg.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %.4f", agg.WinRate)
	}
	if agg.TotalPnL != 40 {
		t.Errorf("expected total pnl 40, got %.4f", agg.TotalPnL)
	}
	// Gross profit 60 over gross loss 20.
	if agg.ProfitFactor != 3.0 {
		t.Errorf("expected profit factor 3, got %.4f", agg.ProfitFactor)
	}
}

func TestComputeFromTrades_OrderDependent(t *testing.T) {
	agg := ComputeFromTrades(tradesFromPnls([]float64{10, -5, 20, -5, -10, 30}), "TREND")

	// Cumulative: 10, 5, 25, 20, 10, 40 → worst peak-to-trough 25-10.
	if agg.MaxDrawdown != 15 {
		t.Errorf("expected max drawdown 15, got %.4f", agg.MaxDrawdown)
	}
	if agg.MaxConsecutiveLosses != 2 {
		t.Errorf("expected 2 consecutive losses, got %d", agg.MaxConsecutiveLosses)
	}
}

func TestComputeFromTrades_InputOrderIrrelevant(t *testing.T) {
	// Same trades handed over in reverse order: the aggregate sorts by
	// close time, so order-dependent metrics must not change.
	trades := tradesFromPnls([]float64{10, -5, 20, -5, -10, 30})
	reversed := make([]*domain.Trade, len(trades))
	for i, tr := range trades {
		reversed[len(trades)-1-i] = tr
	}

	a := ComputeFromTrades(trades, "TREND")
	b := ComputeFromTrades(reversed, "TREND")
	if a.MaxDrawdown != b.MaxDrawdown || a.MaxConsecutiveLosses != b.MaxConsecutiveLosses {
		t.Errorf("aggregates differ by input order: %+v vs %+v", a, b)
	}
}

func TestComputeFromTrades_NoLosses(t *testing.T) {
	agg := ComputeFromTrades(tradesFromPnls([]float64{5, 10}), "TREND")
	if !math.IsInf(agg.ProfitFactor, 1) {
		t.Errorf("expected +Inf profit factor, got %.4f", agg.ProfitFactor)
	}
	if agg.MaxConsecutiveLosses != 0 {
		t.Errorf("expected 0 consecutive losses, got %d", agg.MaxConsecutiveLosses)
	}
}

func TestComputeFromTrades_Distribution(t *testing.T) {
	agg := ComputeFromTrades(tradesFromPnls([]float64{3, 1, 5, 2, 4}), "TREND")

	if agg.PnLMedian != 3 {
		t.Errorf("expected median 3, got %.4f", agg.PnLMedian)
	}
	if agg.PnLP25 != 2 {
		t.Errorf("expected p25 2, got %.4f", agg.PnLP25)
	}
	// p90 with linear interpolation: idx 3.6 → 4 + 0.6*(5-4).
	if math.Abs(agg.PnLP90-4.6) > 1e-9 {
		t.Errorf("expected p90 4.6, got %.4f", agg.PnLP90)
	}
	if agg.PnLMin != 1 || agg.PnLMax != 5 {
		t.Errorf("expected min/max 1/5, got %.1f/%.1f", agg.PnLMin, agg.PnLMax)
	}
	// Sample stddev of 1..5 is sqrt(2.5).
	if math.Abs(agg.PnLStddev-math.Sqrt(2.5)) > 1e-9 {
		t.Errorf("expected stddev %.6f, got %.6f", math.Sqrt(2.5), agg.PnLStddev)
	}
}

func TestDrawdownCurve(t *testing.T) {
	curve := []domain.EquityPoint{
		{TimestampMs: 1000, Equity: 100},
		{TimestampMs: 2000, Equity: 110},
		{TimestampMs: 3000, Equity: 99},
		{TimestampMs: 4000, Equity: 121},
		{TimestampMs: 5000, Equity: 110},
	}

	dd := DrawdownCurve(curve)
	if len(dd) != len(curve) {
		t.Fatalf("expected %d points, got %d", len(curve), len(dd))
	}
	if dd[0] != 0 || dd[1] != 0 || dd[3] != 0 {
		t.Errorf("points at the running peak must have zero drawdown: %v", dd)
	}
	if math.Abs(dd[2]-0.1) > 1e-9 {
		t.Errorf("expected drawdown 0.1, got %.6f", dd[2])
	}

	for _, v := range dd {
		if v < 0 {
			t.Errorf("drawdown must never be negative: %v", dd)
		}
	}

	if max := MaxEquityDrawdown(curve); math.Abs(max-0.1) > 1e-9 {
		t.Errorf("expected max drawdown 0.1, got %.6f", max)
	}
}
