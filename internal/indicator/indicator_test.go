package indicator

import (
	"math"
	"testing"

	"candle-trade-lab/internal/domain"
)

func candlesFromCloses(closes []float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			TimestampMs: int64(i) * domain.PeriodMs1m,
			Open:        c,
			High:        c + 0.5,
			Low:         c - 0.5,
			Close:       c,
			Volume:      1,
		}
	}
	return out
}

func TestSMA_WarmupNaN(t *testing.T) {
	c := candlesFromCloses([]float64{1, 2, 3, 4, 5})
	sma := SMA(c, 3)
	if !math.IsNaN(sma[0]) || !math.IsNaN(sma[1]) {
		t.Error("warm-up indices must be NaN")
	}
	if sma[2] != 2 || sma[4] != 4 {
		t.Errorf("wrong SMA values: %v", sma)
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	c := candlesFromCloses([]float64{2, 2, 2, 2, 10})
	ema := EMA(c, 4)
	if !math.IsNaN(ema[2]) {
		t.Error("EMA must be NaN before seed index")
	}
	if ema[3] != 2 {
		t.Errorf("seed should equal SMA of first 4 closes, got %.4f", ema[3])
	}
	// k = 2/5 = 0.4 → 2 + 0.4*(10-2) = 5.2
	if math.Abs(ema[4]-5.2) > 1e-9 {
		t.Errorf("expected 5.2, got %.4f", ema[4])
	}
}

func TestRSI_Bounds(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%7) - float64(i%3)
	}
	rsi := RSI(candlesFromCloses(closes), 14)
	for i := 15; i < len(rsi); i++ {
		if math.IsNaN(rsi[i]) {
			t.Fatalf("RSI NaN after warm-up at %d", i)
		}
		if rsi[i] < 0 || rsi[i] > 100 {
			t.Fatalf("RSI out of bounds at %d: %.4f", i, rsi[i])
		}
	}
}

func TestRSI_AllGainsIs100(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	rsi := RSI(candlesFromCloses(closes), 14)
	if rsi[len(rsi)-1] != 100 {
		t.Errorf("monotone rally should give RSI 100, got %.4f", rsi[len(rsi)-1])
	}
}

func TestATR_PositiveAfterWarmup(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i))*3
	}
	atr := ATR(candlesFromCloses(closes), 14)
	if !math.IsNaN(atr[12]) {
		t.Error("ATR must be NaN inside warm-up")
	}
	for i := 14; i < len(atr); i++ {
		if math.IsNaN(atr[i]) || atr[i] <= 0 {
			t.Fatalf("ATR invalid at %d: %.6f", i, atr[i])
		}
	}
}

func TestADX_TrendingMarketHighADX(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i)*2 // strong uptrend
	}
	d := ADX(candlesFromCloses(closes), 14)
	last := len(closes) - 1
	if math.IsNaN(d.ADX[last]) {
		t.Fatal("ADX NaN after warm-up")
	}
	if d.ADX[last] < 25 {
		t.Errorf("strong trend should give high ADX, got %.2f", d.ADX[last])
	}
	if d.PlusDI[last] <= d.MinusDI[last] {
		t.Errorf("uptrend should give +DI > -DI, got +%.2f -%.2f", d.PlusDI[last], d.MinusDI[last])
	}
}

func TestHighestLowest(t *testing.T) {
	c := candlesFromCloses([]float64{5, 9, 3, 7})
	hh := HighestHigh(c, 3)
	ll := LowestLow(c, 3)
	if hh[3] != 9+0.5 {
		t.Errorf("expected highest high 9.5, got %.2f", hh[3])
	}
	if ll[3] != 3-0.5 {
		t.Errorf("expected lowest low 2.5, got %.2f", ll[3])
	}
}

func TestRollingStd_Constant(t *testing.T) {
	c := candlesFromCloses([]float64{4, 4, 4, 4, 4})
	std := RollingStd(c, 3)
	if std[4] != 0 {
		t.Errorf("constant series should have zero std, got %.6f", std[4])
	}
}
