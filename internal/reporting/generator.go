package reporting

import (
	"context"
	"sort"
	"time"

	"candle-trade-lab/internal/backtest"
	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/stats"
	"candle-trade-lab/internal/storage"
)

// Generator produces reports from stored trades and equity curves.
type Generator struct {
	tradeStore  storage.TradeStore
	equityStore storage.EquityCurveStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a report generator. The equity store is optional;
// without it drawdown falls back to the cumulative-PnL measure.
func NewGenerator(tradeStore storage.TradeStore, equityStore storage.EquityCurveStore) *Generator {
	return &Generator{
		tradeStore:  tradeStore,
		equityStore: equityStore,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report over every stored trade of the given
// strategies, grouped into one summary row per (symbol, strategy, mode).
func (g *Generator) Generate(ctx context.Context, strategyIDs []string) (*Report, error) {
	var trades []*domain.Trade
	for _, id := range strategyIDs {
		batch, err := g.tradeStore.ListByStrategy(ctx, id)
		if err != nil {
			return nil, err
		}
		trades = append(trades, batch...)
	}

	report := &Report{
		GeneratedAt:   g.now(),
		StrategyCount: len(strategyIDs),
	}

	closed := closedOnly(trades)
	groups := groupTrades(closed)
	for _, grp := range groups {
		agg := stats.ComputeFromTrades(grp.trades, grp.strategyID)
		row := summaryRow(grp.symbol, grp.mode, agg)
		row.MaxDrawdown = g.drawdownFor(ctx, grp, agg)
		report.RunSummaries = append(report.RunSummaries, row)
	}
	report.RunCount = len(report.RunSummaries)

	report.ExitBreakdown = exitBreakdown(closed)
	report.Trades = tradeRows(closed)
	return report, nil
}

// BuildFromResults assembles a report directly from in-memory backtest
// results, including the per-cycle hold diagnostics a store-backed
// report cannot recover.
func BuildFromResults(results []*backtest.Result, now time.Time) *Report {
	report := &Report{
		GeneratedAt: now,
		RunCount:    len(results),
	}

	strategySet := make(map[string]struct{})
	holdTotals := make(map[string]int)
	var closed []*domain.Trade

	for _, res := range results {
		strategySet[res.Meta.StrategyID] = struct{}{}

		agg := stats.ComputeFromTrades(res.Trades, res.Meta.StrategyID)
		row := summaryRow(res.Meta.Symbol, res.Meta.Mode, agg)
		row.MaxDrawdown = res.MaxDrawdown
		row.TotalPnLPercent = res.TotalPnLPercent
		row.FinalBalance = res.FinalBalance
		report.RunSummaries = append(report.RunSummaries, row)

		for reason, count := range res.HoldReasons {
			holdTotals[reason] += count
		}
		closed = append(closed, closedOnly(res.Trades)...)
	}
	report.StrategyCount = len(strategySet)

	sortSummaries(report.RunSummaries)
	report.ExitBreakdown = exitBreakdown(closed)
	report.HoldBreakdown = holdRows(holdTotals)
	report.Trades = tradeRows(closed)
	return report
}

type tradeGroup struct {
	symbol     string
	strategyID string
	mode       string
	trades     []*domain.Trade
}

func groupTrades(trades []*domain.Trade) []tradeGroup {
	type key struct{ symbol, strategyID, mode string }

	byKey := make(map[key][]*domain.Trade)
	for _, t := range trades {
		k := key{t.Symbol, t.StrategyID, t.Mode}
		byKey[k] = append(byKey[k], t)
	}

	groups := make([]tradeGroup, 0, len(byKey))
	for k, grp := range byKey {
		groups = append(groups, tradeGroup{
			symbol:     k.symbol,
			strategyID: k.strategyID,
			mode:       k.mode,
			trades:     grp,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].symbol != groups[j].symbol {
			return groups[i].symbol < groups[j].symbol
		}
		if groups[i].strategyID != groups[j].strategyID {
			return groups[i].strategyID < groups[j].strategyID
		}
		return groups[i].mode < groups[j].mode
	})
	return groups
}

// drawdownFor prefers the stored equity curve; the cumulative-PnL
// drawdown from the aggregate is the fallback.
func (g *Generator) drawdownFor(ctx context.Context, grp tradeGroup, agg *stats.Aggregate) float64 {
	if g.equityStore == nil {
		return agg.MaxDrawdown
	}
	runID := grp.symbol + "/" + grp.strategyID + "/" + grp.mode
	curve, err := g.equityStore.GetByRunID(ctx, runID)
	if err != nil || len(curve) == 0 {
		return agg.MaxDrawdown
	}
	return stats.MaxEquityDrawdown(curve)
}

func summaryRow(symbol, mode string, agg *stats.Aggregate) RunSummaryRow {
	return RunSummaryRow{
		Symbol:               symbol,
		StrategyID:           agg.StrategyID,
		Mode:                 mode,
		TotalTrades:          agg.TotalTrades,
		Wins:                 agg.Wins,
		Losses:               agg.Losses,
		WinRate:              agg.WinRate,
		ProfitFactor:         agg.ProfitFactor,
		TotalPnL:             agg.TotalPnL,
		MaxDrawdown:          agg.MaxDrawdown,
		MaxConsecutiveLosses: agg.MaxConsecutiveLosses,
	}
}

func closedOnly(trades []*domain.Trade) []*domain.Trade {
	var out []*domain.Trade
	for _, t := range trades {
		if t.Status == domain.StatusClosed {
			out = append(out, t)
		}
	}
	return out
}

func exitBreakdown(closed []*domain.Trade) []ExitReasonRow {
	counts := make(map[string]*ExitReasonRow)
	for _, t := range closed {
		row := counts[t.ExitReason]
		if row == nil {
			row = &ExitReasonRow{Reason: t.ExitReason}
			counts[t.ExitReason] = row
		}
		row.Count++
		row.TotalPnL += t.PnL
	}

	rows := make([]ExitReasonRow, 0, len(counts))
	for _, row := range counts {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Reason < rows[j].Reason })
	return rows
}

func holdRows(totals map[string]int) []HoldReasonRow {
	rows := make([]HoldReasonRow, 0, len(totals))
	for reason, count := range totals {
		rows = append(rows, HoldReasonRow{Reason: reason, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Reason < rows[j].Reason })
	return rows
}

func tradeRows(closed []*domain.Trade) []TradeRow {
	rows := make([]TradeRow, len(closed))
	for i, t := range closed {
		rows[i] = TradeRow{
			TradeID:    t.TradeID,
			Symbol:     t.Symbol,
			StrategyID: t.StrategyID,
			Mode:       t.Mode,
			Side:       string(t.Side),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Quantity:   t.Quantity,
			PnL:        t.PnL,
			RMultiple:  t.RMultiple(t.ExitPrice),
			ExitReason: t.ExitReason,
			OpenedAtMs: t.OpenedAtMs,
			ClosedAtMs: t.ClosedAtMs,
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ClosedAtMs != rows[j].ClosedAtMs {
			return rows[i].ClosedAtMs < rows[j].ClosedAtMs
		}
		return rows[i].TradeID < rows[j].TradeID
	})
	return rows
}

func sortSummaries(rows []RunSummaryRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		if rows[i].StrategyID != rows[j].StrategyID {
			return rows[i].StrategyID < rows[j].StrategyID
		}
		return rows[i].Mode < rows[j].Mode
	})
}
