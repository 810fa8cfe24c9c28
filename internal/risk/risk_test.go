package risk

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"candle-trade-lab/internal/domain"
)

func TestCanOpenTrade_Allowed(t *testing.T) {
	st := State{
		Balance:           10000,
		PeakBalance:       10000,
		DailyStartBalance: 10000,
		NowMs:             1000000,
	}
	d := CanOpenTrade(st, domain.DefaultRiskConfig())
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestCanOpenTrade_DrawdownDenied(t *testing.T) {
	// 11% drawdown against a 10% limit.
	st := State{
		Balance:           8900,
		PeakBalance:       10000,
		DailyStartBalance: 9000,
		NowMs:             1000000,
	}
	cfg := domain.DefaultRiskConfig()
	cfg.MaxDrawdown = 0.10

	d := CanOpenTrade(st, cfg)
	assert.False(t, d.Allowed)
	assert.True(t, strings.HasPrefix(d.Reason, DenyMaxDrawdown), "reason %q", d.Reason)
	assert.Contains(t, d.Reason, "drawdown")
}

func TestCanOpenTrade_DailyLossDenied(t *testing.T) {
	st := State{
		Balance:           9400,
		PeakBalance:       10000,
		DailyStartBalance: 10000,
		NowMs:             1000000,
	}
	cfg := domain.DefaultRiskConfig()
	cfg.MaxDrawdown = 0.20   // 6% dd passes
	cfg.MaxDailyLoss = 0.05 // 6% daily loss does not

	d := CanOpenTrade(st, cfg)
	assert.False(t, d.Allowed)
	assert.True(t, strings.HasPrefix(d.Reason, DenyMaxDailyLoss), "reason %q", d.Reason)
}

func TestCanOpenTrade_Cooldown(t *testing.T) {
	st := State{
		Balance:             10000,
		PeakBalance:         10000,
		DailyStartBalance:   10000,
		LastTradeClosedAtMs: 990000,
		NowMs:               1000000, // 10s since close
	}
	cfg := domain.DefaultRiskConfig()
	cfg.CooldownMs = 60000

	d := CanOpenTrade(st, cfg)
	assert.False(t, d.Allowed)
	assert.True(t, strings.HasPrefix(d.Reason, DenyCooldown), "reason %q", d.Reason)

	// Elapsed window clears the gate.
	st.NowMs = 990000 + 60000
	assert.True(t, CanOpenTrade(st, cfg).Allowed)
}

func TestCanOpenTrade_DayTradeCap(t *testing.T) {
	st := State{
		Balance:           10000,
		PeakBalance:       10000,
		DailyStartBalance: 10000,
		TradesToday:       3,
		NowMs:             1000000,
	}
	cfg := domain.DefaultRiskConfig()
	cfg.MaxTradesPerDay = 3

	d := CanOpenTrade(st, cfg)
	assert.False(t, d.Allowed)
	assert.True(t, strings.HasPrefix(d.Reason, DenyMaxTradesPerDay), "reason %q", d.Reason)

	cfg.MaxTradesPerDay = 0 // uncapped
	assert.True(t, CanOpenTrade(st, cfg).Allowed)
}

func TestSizePosition(t *testing.T) {
	// 1% of 10000 over a 2-point stop distance.
	qty := SizePosition(10000, 100, 98, 0.01, 0)
	assert.InDelta(t, 50.0, qty, 1e-9)

	// Capital cap: 25% of 10000 at price 100 caps the same setup at 25.
	qty = SizePosition(10000, 100, 98, 0.01, 0.25)
	assert.InDelta(t, 25.0, qty, 1e-9)

	// Cap above the risk size leaves it unchanged.
	qty = SizePosition(10000, 100, 90, 0.01, 0.25)
	assert.InDelta(t, 10.0, qty, 1e-9)
}

func TestSizePosition_DegenerateInputs(t *testing.T) {
	cases := []struct {
		name                      string
		balance, entry, stop, pct float64
	}{
		{"zero stop distance", 10000, 100, 100, 0.01},
		{"zero balance", 0, 100, 98, 0.01},
		{"negative balance", -100, 100, 98, 0.01},
		{"zero entry", 10000, 0, 98, 0.01},
		{"zero risk", 10000, 100, 98, 0},
		{"NaN entry", 10000, math.NaN(), 98, 0.01},
		{"NaN stop", 10000, 100, math.NaN(), 0.01},
		{"Inf balance", math.Inf(1), 100, 98, 0.01},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qty := SizePosition(tc.balance, tc.entry, tc.stop, tc.pct, 0.25)
			assert.Equal(t, 0.0, qty)
			assert.False(t, math.IsNaN(qty))
		})
	}
}

func TestStateFromPortfolio(t *testing.T) {
	p := domain.NewPortfolio(10000)
	p.Balance = 9500
	p.PeakBalance = 10500
	p.DailyStartBalance = 9800
	p.TradesToday = 2
	p.LastTradeClosedAtMs = 123456

	st := StateFromPortfolio(p, 999999)
	assert.Equal(t, 9500.0, st.Balance)
	assert.Equal(t, 10500.0, st.PeakBalance)
	assert.Equal(t, 9800.0, st.DailyStartBalance)
	assert.Equal(t, 2, st.TradesToday)
	assert.Equal(t, int64(123456), st.LastTradeClosedAtMs)
	assert.Equal(t, int64(999999), st.NowMs)
}
