// Package stats derives aggregate performance numbers from closed
// trades and equity curves. All functions are pure reads.
package stats

import (
	"math"
	"sort"

	"candle-trade-lab/internal/domain"
)

// Aggregate summarizes a set of closed trades for one strategy.
type Aggregate struct {
	StrategyID string

	// Counts
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64

	// PnL distribution
	TotalPnL     float64
	ProfitFactor float64 // +Inf when there are no losing trades
	PnLMean      float64
	PnLMedian    float64
	PnLP10       float64
	PnLP25       float64
	PnLP75       float64
	PnLP90       float64
	PnLMin       float64
	PnLMax       float64
	PnLStddev    float64

	// Order-dependent (chronological close order)
	MaxDrawdown          float64 // worst peak-to-trough on cumulative PnL
	MaxConsecutiveLosses int
}

// ComputeFromTrades calculates all aggregates from closed trades.
// Trades are sorted by ClosedAtMs ASC, TradeID ASC before computing
// order-dependent metrics so the result is deterministic.
func ComputeFromTrades(trades []*domain.Trade, strategyID string) *Aggregate {
	n := len(trades)
	if n == 0 {
		return &Aggregate{StrategyID: strategyID}
	}

	sorted := make([]*domain.Trade, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ClosedAtMs != sorted[j].ClosedAtMs {
			return sorted[i].ClosedAtMs < sorted[j].ClosedAtMs
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	pnls := make([]float64, n)
	wins := 0
	var grossProfit, grossLoss, total float64
	for i, t := range sorted {
		pnls[i] = t.PnL
		total += t.PnL
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}

	sortedPnls := make([]float64, n)
	copy(sortedPnls, pnls)
	sort.Float64s(sortedPnls)

	mean := computeMean(pnls)

	return &Aggregate{
		StrategyID: strategyID,

		TotalTrades: n,
		Wins:        wins,
		Losses:      n - wins,
		WinRate:     float64(wins) / float64(n),

		TotalPnL:     total,
		ProfitFactor: computeProfitFactor(grossProfit, grossLoss),
		PnLMean:      mean,
		PnLMedian:    computePercentile(sortedPnls, 0.50),
		PnLP10:       computePercentile(sortedPnls, 0.10),
		PnLP25:       computePercentile(sortedPnls, 0.25),
		PnLP75:       computePercentile(sortedPnls, 0.75),
		PnLP90:       computePercentile(sortedPnls, 0.90),
		PnLMin:       sortedPnls[0],
		PnLMax:       sortedPnls[n-1],
		PnLStddev:    computeStddev(pnls, mean),

		MaxDrawdown:          computeMaxDrawdown(pnls),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(pnls),
	}
}

func computeProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// computeMean calculates arithmetic mean.
func computeMean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(vals []float64, mean float64) float64 {
	n := len(vals)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range vals {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation. sorted must be
// pre-sorted ASC; p is the percentile (0.10 = 10th).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates the worst peak-to-trough on cumulative
// PnL. Values must be in chronological order.
func computeMaxDrawdown(pnls []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds the longest streak of pnl <= 0.
func computeMaxConsecutiveLosses(pnls []float64) int {
	maxStreak := 0
	current := 0
	for _, p := range pnls {
		if p <= 0 {
			current++
			if current > maxStreak {
				maxStreak = current
			}
		} else {
			current = 0
		}
	}
	return maxStreak
}

// DrawdownCurve returns the fractional decline from the running equity
// peak for every point of the curve. Always in [0, 1).
func DrawdownCurve(curve []domain.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	peak := 0.0
	for i, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			out[i] = (peak - pt.Equity) / peak
		}
	}
	return out
}

// MaxEquityDrawdown returns the worst fractional decline from the
// running equity peak.
func MaxEquityDrawdown(curve []domain.EquityPoint) float64 {
	max := 0.0
	for _, dd := range DrawdownCurve(curve) {
		if dd > max {
			max = dd
		}
	}
	return max
}
