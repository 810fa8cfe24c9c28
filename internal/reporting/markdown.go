package reporting

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Simulation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Runs: %d | Strategies: %d\n\n", r.RunCount, r.StrategyCount))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	if len(r.RunSummaries) > 0 {
		sb.WriteString("| Symbol | Strategy | Mode | Trades | Wins | Losses | WinRate | ProfitFactor | TotalPnL | PnL% | MaxDD | MaxLossStreak | FinalBalance |\n")
		sb.WriteString("|--------|----------|------|--------|------|--------|---------|--------------|----------|------|-------|---------------|--------------|\n")
		for _, row := range r.RunSummaries {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %.4f | %s | %.4f | %.2f | %.4f | %d | %.4f |\n",
				row.Symbol, row.StrategyID, row.Mode,
				row.TotalTrades, row.Wins, row.Losses,
				row.WinRate, formatProfitFactor(row.ProfitFactor),
				row.TotalPnL, row.TotalPnLPercent, row.MaxDrawdown,
				row.MaxConsecutiveLosses, row.FinalBalance))
		}
	} else {
		sb.WriteString("No runs available.\n")
	}
	sb.WriteString("\n")

	// Exit Breakdown
	sb.WriteString("## Exit Reasons\n\n")
	if len(r.ExitBreakdown) > 0 {
		sb.WriteString("| Reason | Count | TotalPnL |\n")
		sb.WriteString("|--------|-------|----------|\n")
		for _, row := range r.ExitBreakdown {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f |\n", row.Reason, row.Count, row.TotalPnL))
		}
	} else {
		sb.WriteString("No closed trades.\n")
	}
	sb.WriteString("\n")

	// Hold Breakdown
	if len(r.HoldBreakdown) > 0 {
		sb.WriteString("## Hold Reasons\n\n")
		sb.WriteString("| Reason | Cycles |\n")
		sb.WriteString("|--------|--------|\n")
		for _, row := range r.HoldBreakdown {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", row.Reason, row.Count))
		}
		sb.WriteString("\n")
	}

	// Trade List
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Trade | Symbol | Side | Entry | Exit | Qty | PnL | R | Reason | Opened (ms) | Closed (ms) |\n")
		sb.WriteString("|-------|--------|------|-------|------|-----|-----|---|--------|-------------|-------------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.6f | %.6f | %.6f | %.4f | %.2f | %s | %d | %d |\n",
				t.TradeID, t.Symbol, t.Side,
				t.EntryPrice, t.ExitPrice, t.Quantity,
				t.PnL, t.RMultiple, t.ExitReason,
				t.OpenedAtMs, t.ClosedAtMs))
		}
	} else {
		sb.WriteString("No trades recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// formatProfitFactor keeps the no-losses case readable in tables.
func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.4f", pf)
}
