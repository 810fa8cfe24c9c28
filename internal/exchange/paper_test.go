package exchange

import (
	"context"
	"errors"
	"testing"

	"candle-trade-lab/internal/domain"
)

func paperSeries(n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		candles[i] = domain.Candle{
			TimestampMs: int64(i) * domain.PeriodMs1m,
			Open:        c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 100,
		}
	}
	return candles
}

func TestPaperExchange_FetchRespectsClock(t *testing.T) {
	ex := NewPaperExchange(10_000)
	ex.LoadSeries("BTCUSDT", domain.PeriodMs1m, paperSeries(10))
	ctx := context.Background()

	// At clock 0 only the first candle is visible.
	got, err := ex.FetchOHLCV(ctx, "BTCUSDT", domain.PeriodMs1m, 0, 0)
	if err != nil {
		t.Fatalf("FetchOHLCV failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 candle at clock 0, got %d", len(got))
	}

	for i := 0; i < 4; i++ {
		ex.Advance("BTCUSDT")
	}
	got, err = ex.FetchOHLCV(ctx, "BTCUSDT", domain.PeriodMs1m, 0, 0)
	if err != nil {
		t.Fatalf("FetchOHLCV failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Expected 5 candles after 4 advances, got %d", len(got))
	}
	if got[4].Close != 104 {
		t.Errorf("Last visible close = %f, want 104", got[4].Close)
	}
}

func TestPaperExchange_FetchSinceAndLimit(t *testing.T) {
	ex := NewPaperExchange(10_000)
	ex.LoadSeries("BTCUSDT", domain.PeriodMs1m, paperSeries(10))
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		ex.Advance("BTCUSDT")
	}

	got, err := ex.FetchOHLCV(ctx, "BTCUSDT", domain.PeriodMs1m, 5*domain.PeriodMs1m, 0)
	if err != nil {
		t.Fatalf("FetchOHLCV failed: %v", err)
	}
	if len(got) != 5 || got[0].TimestampMs != 5*domain.PeriodMs1m {
		t.Fatalf("since filter wrong: %d candles, first ts %d", len(got), got[0].TimestampMs)
	}

	got, err = ex.FetchOHLCV(ctx, "BTCUSDT", domain.PeriodMs1m, 0, 3)
	if err != nil {
		t.Fatalf("FetchOHLCV failed: %v", err)
	}
	// Limit keeps the most recent candles.
	if len(got) != 3 || got[2].Close != 109 {
		t.Fatalf("limit wrong: %d candles, last close %f", len(got), got[len(got)-1].Close)
	}
}

func TestPaperExchange_UnknownSymbol(t *testing.T) {
	ex := NewPaperExchange(10_000)
	ctx := context.Background()

	_, err := ex.FetchOHLCV(ctx, "NOPE", domain.PeriodMs1m, 0, 0)
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("Expected ErrUnknownSymbol, got %v", err)
	}
}

func TestPaperExchange_Ticker(t *testing.T) {
	ex := NewPaperExchange(10_000)
	ex.LoadSeries("BTCUSDT", domain.PeriodMs1m, paperSeries(10))
	ctx := context.Background()

	ex.Advance("BTCUSDT")
	ex.Advance("BTCUSDT")

	price, err := ex.FetchTicker(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("FetchTicker failed: %v", err)
	}
	if price != 102 {
		t.Errorf("Ticker = %f, want 102", price)
	}
}

func TestPaperExchange_TickerUsesFinestTimeframe(t *testing.T) {
	ex := NewPaperExchange(10_000)
	ex.LoadSeries("BTCUSDT", domain.PeriodMs1m, paperSeries(10))

	// Higher-timeframe series with very different closes; the ticker
	// must keep reading the 1m series regardless of load order.
	htf := paperSeries(2)
	htf[0].Close, htf[1].Close = 500, 600
	htf[0].TimestampMs, htf[1].TimestampMs = 0, domain.PeriodMs5m
	ex.LoadSeries("BTCUSDT", domain.PeriodMs5m, htf)

	ctx := context.Background()
	ex.Advance("BTCUSDT")
	ex.Advance("BTCUSDT")
	ex.Advance("BTCUSDT")

	for run := 0; run < 10; run++ {
		price, err := ex.FetchTicker(ctx, "BTCUSDT")
		if err != nil {
			t.Fatalf("FetchTicker failed: %v", err)
		}
		if price != 103 {
			t.Fatalf("Ticker = %f, want 103 from the 1m series", price)
		}
	}
}

func TestPaperExchange_Orders(t *testing.T) {
	ex := NewPaperExchange(10_000)
	ctx := context.Background()

	id1, err := ex.PlaceOrder(ctx, Order{Symbol: "BTCUSDT", Side: OrderBuy, Quantity: 1})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	id2, err := ex.PlaceTrailingStop(ctx, TrailingStopOrder{
		Symbol: "BTCUSDT", Side: OrderSell, Quantity: 1, ActivationPx: 110, CallbackPct: 0.02,
	})
	if err != nil {
		t.Fatalf("PlaceTrailingStop failed: %v", err)
	}
	if id1 == id2 {
		t.Errorf("Order ids must be distinct: %s", id1)
	}

	if _, err := ex.PlaceOrder(ctx, Order{Symbol: "", Quantity: 1}); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Expected ErrInvalidOrder, got %v", err)
	}
	if _, err := ex.PlaceTrailingStop(ctx, TrailingStopOrder{Symbol: "BTCUSDT", Quantity: 1}); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Expected ErrInvalidOrder for zero callback, got %v", err)
	}
}

func TestPaperExchange_Balance(t *testing.T) {
	ex := NewPaperExchange(10_000)
	ctx := context.Background()

	bal, err := ex.AvailableBalance(ctx, "USDT")
	if err != nil {
		t.Fatalf("AvailableBalance failed: %v", err)
	}
	if bal != 10_000 {
		t.Errorf("Balance = %f, want 10000", bal)
	}

	ex.SetBalance(9_500)
	bal, _ = ex.AvailableBalance(ctx, "USDT")
	if bal != 9_500 {
		t.Errorf("Balance = %f, want 9500", bal)
	}
}
