package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the trade list as CSV string.
func RenderCSV(trades []TradeRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("trade_id,symbol,strategy_id,mode,side,entry_price,exit_price,quantity,")
	sb.WriteString("pnl,r_multiple,exit_reason,opened_at_ms,closed_at_ms\n")

	// Rows
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%.8f,%.8f,%.8f,%.8f,%.4f,%s,%d,%d\n",
			t.TradeID,
			t.Symbol,
			t.StrategyID,
			t.Mode,
			t.Side,
			t.EntryPrice,
			t.ExitPrice,
			t.Quantity,
			t.PnL,
			t.RMultiple,
			t.ExitReason,
			t.OpenedAtMs,
			t.ClosedAtMs,
		))
	}

	return sb.String()
}

// RenderSummaryCSV renders the run summary table as CSV string.
func RenderSummaryCSV(rows []RunSummaryRow) string {
	var sb strings.Builder

	sb.WriteString("symbol,strategy_id,mode,total_trades,wins,losses,win_rate,profit_factor,")
	sb.WriteString("total_pnl,total_pnl_percent,max_drawdown,max_consecutive_losses,final_balance\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%d,%d,%.6f,%s,%.6f,%.6f,%.6f,%d,%.6f\n",
			r.Symbol,
			r.StrategyID,
			r.Mode,
			r.TotalTrades,
			r.Wins,
			r.Losses,
			r.WinRate,
			formatProfitFactor(r.ProfitFactor),
			r.TotalPnL,
			r.TotalPnLPercent,
			r.MaxDrawdown,
			r.MaxConsecutiveLosses,
			r.FinalBalance,
		))
	}

	return sb.String()
}
