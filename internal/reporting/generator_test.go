package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"candle-trade-lab/internal/backtest"
	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/storage/memory"
)

func closedTrade(id, symbol, strategyID string, pnl float64, closedAtMs int64) *domain.Trade {
	return &domain.Trade{
		TradeID:         id,
		Symbol:          symbol,
		Side:            domain.SideLong,
		StrategyID:      strategyID,
		Mode:            domain.ModeBacktest,
		EntryPrice:      100,
		Quantity:        1,
		OpenedAtMs:      closedAtMs - 60_000,
		StopLoss:        95,
		InitialStopLoss: 95,
		InitialRisk:     5,
		Status:          domain.StatusClosed,
		ExitPrice:       100 + pnl,
		PnL:             pnl,
		ExitReason:      domain.ExitReasonStopLoss,
		ClosedAtMs:      closedAtMs,
	}
}

func setupTestData(t *testing.T) (*memory.TradeStore, *memory.EquityCurveStore) {
	ctx := context.Background()

	tradeStore := memory.NewTradeStore()
	equityStore := memory.NewEquityCurveStore()

	trades := []*domain.Trade{
		closedTrade("t1", "BTCUSDT", "trend", 10, 1_000_000),
		closedTrade("t2", "BTCUSDT", "trend", -5, 2_000_000),
		closedTrade("t3", "ETHUSDT", "trend", 15, 1_500_000),
	}
	for _, tr := range trades {
		if err := tradeStore.Insert(ctx, tr); err != nil {
			t.Fatalf("Insert trade failed: %v", err)
		}
	}

	curve := []domain.EquityPoint{
		{TimestampMs: 1_000_000, Balance: 10_000, Equity: 10_000},
		{TimestampMs: 1_500_000, Balance: 11_000, Equity: 11_000},
		{TimestampMs: 2_000_000, Balance: 9_900, Equity: 9_900},
	}
	if err := equityStore.InsertBatch(ctx, "BTCUSDT/trend/backtest", curve); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	return tradeStore, equityStore
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
}

func TestGenerator_Generate(t *testing.T) {
	tradeStore, equityStore := setupTestData(t)
	gen := NewGenerator(tradeStore, equityStore).WithClock(fixedClock())

	report, err := gen.Generate(context.Background(), []string{"trend"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if report.RunCount != 2 {
		t.Fatalf("RunCount = %d, want 2", report.RunCount)
	}
	if report.StrategyCount != 1 {
		t.Errorf("StrategyCount = %d, want 1", report.StrategyCount)
	}

	// Sorted by symbol: BTCUSDT first.
	btc := report.RunSummaries[0]
	if btc.Symbol != "BTCUSDT" {
		t.Fatalf("First summary symbol = %s, want BTCUSDT", btc.Symbol)
	}
	if btc.TotalTrades != 2 || btc.Wins != 1 || btc.Losses != 1 {
		t.Errorf("BTC counts = %d/%d/%d, want 2/1/1", btc.TotalTrades, btc.Wins, btc.Losses)
	}
	if btc.WinRate != 0.5 {
		t.Errorf("BTC WinRate = %f, want 0.5", btc.WinRate)
	}
	if btc.TotalPnL != 5 {
		t.Errorf("BTC TotalPnL = %f, want 5", btc.TotalPnL)
	}
	// Drawdown comes from the stored equity curve: peak 11000 to 9900.
	if diff := btc.MaxDrawdown - 0.1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("BTC MaxDrawdown = %f, want 0.1", btc.MaxDrawdown)
	}

	// ETHUSDT has no stored curve; drawdown falls back to the trade
	// aggregate (single winning trade, zero drawdown).
	eth := report.RunSummaries[1]
	if eth.Symbol != "ETHUSDT" {
		t.Fatalf("Second summary symbol = %s, want ETHUSDT", eth.Symbol)
	}
	if eth.MaxDrawdown != 0 {
		t.Errorf("ETH MaxDrawdown = %f, want 0", eth.MaxDrawdown)
	}

	if len(report.Trades) != 3 {
		t.Fatalf("Trades = %d, want 3", len(report.Trades))
	}
	// Sorted by closed_at: t1, t3, t2.
	if report.Trades[0].TradeID != "t1" || report.Trades[1].TradeID != "t3" || report.Trades[2].TradeID != "t2" {
		t.Errorf("Trade order = %s,%s,%s, want t1,t3,t2",
			report.Trades[0].TradeID, report.Trades[1].TradeID, report.Trades[2].TradeID)
	}
	// t1: +10 over an initial risk of 5.
	if report.Trades[0].RMultiple != 2 {
		t.Errorf("t1 RMultiple = %f, want 2", report.Trades[0].RMultiple)
	}

	if len(report.ExitBreakdown) != 1 {
		t.Fatalf("ExitBreakdown rows = %d, want 1", len(report.ExitBreakdown))
	}
	if row := report.ExitBreakdown[0]; row.Reason != domain.ExitReasonStopLoss || row.Count != 3 || row.TotalPnL != 20 {
		t.Errorf("ExitBreakdown = %+v, want STOP_LOSS x3 totalling 20", row)
	}
}

func TestGenerator_GenerateEmpty(t *testing.T) {
	gen := NewGenerator(memory.NewTradeStore(), memory.NewEquityCurveStore()).WithClock(fixedClock())

	report, err := gen.Generate(context.Background(), []string{"trend"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.RunCount != 0 || len(report.Trades) != 0 {
		t.Errorf("Empty store produced %d runs, %d trades", report.RunCount, len(report.Trades))
	}

	md := RenderMarkdown(report)
	if !strings.Contains(md, "No runs available.") {
		t.Error("Markdown missing empty-runs placeholder")
	}
	if !strings.Contains(md, "No trades recorded.") {
		t.Error("Markdown missing empty-trades placeholder")
	}
}

func TestBuildFromResults(t *testing.T) {
	results := []*backtest.Result{
		{
			FinalBalance:    10_500,
			MaxDrawdown:     0.03,
			TotalPnLPercent: 5,
			Trades: []*domain.Trade{
				closedTrade("r1", "BTCUSDT", "trend", 500, 1_000_000),
			},
			HoldReasons: map[string]int{"NO_SETUP": 40, "INSUFFICIENT_DATA": 10},
			Meta:        backtest.Meta{Symbol: "BTCUSDT", StrategyID: "trend", Mode: domain.ModeBacktest},
		},
		{
			FinalBalance: 9_800,
			MaxDrawdown:  0.05,
			Trades: []*domain.Trade{
				closedTrade("r2", "ETHUSDT", "trend", -200, 2_000_000),
			},
			HoldReasons: map[string]int{"NO_SETUP": 25},
			Meta:        backtest.Meta{Symbol: "ETHUSDT", StrategyID: "trend", Mode: domain.ModeBacktest},
		},
	}

	report := BuildFromResults(results, fixedClock()())

	if report.RunCount != 2 || report.StrategyCount != 1 {
		t.Fatalf("RunCount = %d, StrategyCount = %d, want 2 and 1", report.RunCount, report.StrategyCount)
	}
	if report.RunSummaries[0].FinalBalance != 10_500 {
		t.Errorf("FinalBalance = %f, want 10500", report.RunSummaries[0].FinalBalance)
	}
	if report.RunSummaries[0].MaxDrawdown != 0.03 {
		t.Errorf("MaxDrawdown = %f, want 0.03", report.RunSummaries[0].MaxDrawdown)
	}

	// Hold reasons are summed across runs.
	var noSetup int
	for _, row := range report.HoldBreakdown {
		if row.Reason == "NO_SETUP" {
			noSetup = row.Count
		}
	}
	if noSetup != 65 {
		t.Errorf("NO_SETUP cycles = %d, want 65", noSetup)
	}
}

func TestRenderMarkdown(t *testing.T) {
	tradeStore, equityStore := setupTestData(t)
	gen := NewGenerator(tradeStore, equityStore).WithClock(fixedClock())

	report, err := gen.Generate(context.Background(), []string{"trend"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)

	for _, want := range []string{
		"# Simulation Report",
		"Generated: 2024-06-01T12:00:00Z",
		"Runs: 2 | Strategies: 1",
		"| BTCUSDT | trend | backtest |",
		"| STOP_LOSS | 3 | 20.0000 |",
		"| t1 | BTCUSDT | LONG |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q", want)
		}
	}

	// ETHUSDT's single winner has no losing trades: profit factor inf.
	if !strings.Contains(md, "| inf |") {
		t.Error("Markdown missing inf profit factor")
	}
}

func TestRenderCSV(t *testing.T) {
	tradeStore, equityStore := setupTestData(t)
	gen := NewGenerator(tradeStore, equityStore).WithClock(fixedClock())

	report, err := gen.Generate(context.Background(), []string{"trend"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	csv := RenderCSV(report.Trades)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 4 {
		t.Fatalf("CSV lines = %d, want 4 (header + 3 trades)", len(lines))
	}
	if !strings.HasPrefix(lines[0], "trade_id,symbol,strategy_id,") {
		t.Errorf("CSV header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "t1,BTCUSDT,trend,backtest,LONG,") {
		t.Errorf("First CSV row = %q", lines[1])
	}

	summary := RenderSummaryCSV(report.RunSummaries)
	summaryLines := strings.Split(strings.TrimSpace(summary), "\n")
	if len(summaryLines) != 3 {
		t.Fatalf("Summary CSV lines = %d, want 3", len(summaryLines))
	}
	if !strings.Contains(summaryLines[2], ",inf,") {
		t.Errorf("Summary row missing inf profit factor: %q", summaryLines[2])
	}
}
