// Package risk gates trade admission and computes position size from
// account risk. All functions are pure; state is derived fresh from the
// portfolio at every check.
package risk

import (
	"fmt"
	"math"

	"candle-trade-lab/internal/domain"
)

// Denial reason codes. The Decision reason string starts with one of
// these, followed by the measured values.
const (
	DenyCooldown        = "COOLDOWN_ACTIVE"
	DenyMaxTradesPerDay = "MAX_TRADES_PER_DAY"
	DenyMaxDrawdown     = "MAX_DRAWDOWN"
	DenyMaxDailyLoss    = "MAX_DAILY_LOSS"
)

// State is the admission snapshot, computed from the portfolio and the
// sim/wall clock at each check. Never stored.
type State struct {
	Balance             float64
	PeakBalance         float64
	DailyStartBalance   float64
	TradesToday         int
	LastTradeClosedAtMs int64
	NowMs               int64
}

// StateFromPortfolio derives the admission snapshot.
func StateFromPortfolio(p *domain.Portfolio, nowMs int64) State {
	return State{
		Balance:             p.Balance,
		PeakBalance:         p.PeakBalance,
		DailyStartBalance:   p.DailyStartBalance,
		TradesToday:         p.TradesToday,
		LastTradeClosedAtMs: p.LastTradeClosedAtMs,
		NowMs:               nowMs,
	}
}

// Decision is the admission outcome. Denial is an expected result, not
// an error; Reason explains it.
type Decision struct {
	Allowed bool
	Reason  string
}

func deny(code, detail string) Decision {
	return Decision{Allowed: false, Reason: code + ": " + detail}
}

// CanOpenTrade applies the admission gates in order: cooldown, day
// trade cap, drawdown, daily loss. A zero threshold disables its gate.
func CanOpenTrade(st State, cfg domain.RiskConfig) Decision {
	if cfg.CooldownMs > 0 && st.LastTradeClosedAtMs > 0 {
		elapsed := st.NowMs - st.LastTradeClosedAtMs
		if elapsed < cfg.CooldownMs {
			return deny(DenyCooldown, fmt.Sprintf("%dms since last close, need %dms", elapsed, cfg.CooldownMs))
		}
	}

	if cfg.MaxTradesPerDay > 0 && st.TradesToday >= cfg.MaxTradesPerDay {
		return deny(DenyMaxTradesPerDay, fmt.Sprintf("%d trades today, cap %d", st.TradesToday, cfg.MaxTradesPerDay))
	}

	if cfg.MaxDrawdown > 0 && st.PeakBalance > 0 {
		dd := (st.PeakBalance - st.Balance) / st.PeakBalance
		if dd >= cfg.MaxDrawdown {
			return deny(DenyMaxDrawdown, fmt.Sprintf("drawdown %.2f%% at/above limit %.2f%%", dd*100, cfg.MaxDrawdown*100))
		}
	}

	if cfg.MaxDailyLoss > 0 && st.DailyStartBalance > 0 {
		loss := (st.DailyStartBalance - st.Balance) / st.DailyStartBalance
		if loss >= cfg.MaxDailyLoss {
			return deny(DenyMaxDailyLoss, fmt.Sprintf("daily loss %.2f%% at/above limit %.2f%%", loss*100, cfg.MaxDailyLoss*100))
		}
	}

	return Decision{Allowed: true}
}

// SizePosition computes the quantity that risks riskPercent of balance
// over the entry-to-stop distance, capped so the entry notional never
// exceeds maxCapitalFraction of balance (0 disables the cap). Returns 0,
// never negative or NaN, on any degenerate input; callers treat 0 as
// "skip, do not open."
func SizePosition(balance, entryPrice, stopLoss, riskPercent, maxCapitalFraction float64) float64 {
	if invalid(balance) || invalid(entryPrice) || invalid(riskPercent) ||
		balance <= 0 || entryPrice <= 0 || riskPercent <= 0 {
		return 0
	}
	dist := math.Abs(entryPrice - stopLoss)
	if invalid(dist) || dist <= 0 {
		return 0
	}

	qty := balance * riskPercent / dist
	if maxCapitalFraction > 0 {
		if cap := maxCapitalFraction * balance / entryPrice; qty > cap {
			qty = cap
		}
	}
	if invalid(qty) || qty < 0 {
		return 0
	}
	return qty
}

func invalid(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
