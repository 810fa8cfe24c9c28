package idhash

import "testing"

func TestComputeTradeID_Deterministic(t *testing.T) {
	id1 := ComputeTradeID("BTCUSDT", "TREND_ema20-50", "LONG", "backtest", 1700000000000)
	id2 := ComputeTradeID("BTCUSDT", "TREND_ema20-50", "LONG", "backtest", 1700000000000)

	if id1 != id2 {
		t.Error("same inputs should produce same ID")
	}
	if len(id1) != 64 {
		t.Errorf("expected 64 char hex, got %d", len(id1))
	}
}

func TestComputeTradeID_DistinguishesInputs(t *testing.T) {
	base := ComputeTradeID("BTCUSDT", "TREND_ema20-50", "LONG", "backtest", 1700000000000)

	variants := []string{
		ComputeTradeID("ETHUSDT", "TREND_ema20-50", "LONG", "backtest", 1700000000000),
		ComputeTradeID("BTCUSDT", "TREND_ema10-30", "LONG", "backtest", 1700000000000),
		ComputeTradeID("BTCUSDT", "TREND_ema20-50", "SHORT", "backtest", 1700000000000),
		ComputeTradeID("BTCUSDT", "TREND_ema20-50", "LONG", "paper", 1700000000000),
		ComputeTradeID("BTCUSDT", "TREND_ema20-50", "LONG", "backtest", 1700000060000),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base ID", i)
		}
	}
}
