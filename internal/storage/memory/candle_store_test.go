package memory

import (
	"context"
	"errors"
	"testing"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/storage"
)

func TestCandleStore_InsertAndGetRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []domain.Candle{
		{TimestampMs: 60_000, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{TimestampMs: 120_000, Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 150},
		{TimestampMs: 180_000, Open: 11.5, High: 13, Low: 11, Close: 12.5, Volume: 120},
	}

	if err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, candles); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := store.GetRange(ctx, "BTCUSDT", domain.PeriodMs1m, 60_000, 120_000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(got))
	}
	if got[0].TimestampMs != 60_000 || got[1].TimestampMs != 120_000 {
		t.Errorf("Wrong order or bounds: %+v", got)
	}
	if got[1].Close != 11.5 {
		t.Errorf("Close mismatch: got %f", got[1].Close)
	}
}

func TestCandleStore_TimeframesIsolated(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	c1m := []domain.Candle{{TimestampMs: 60_000, Close: 1}}
	c1h := []domain.Candle{{TimestampMs: 60_000, Close: 2}}

	if err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, c1m); err != nil {
		t.Fatalf("InsertBatch 1m failed: %v", err)
	}
	// Same symbol and open time on a different timeframe is not a duplicate.
	if err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1h, c1h); err != nil {
		t.Fatalf("InsertBatch 1h failed: %v", err)
	}

	got, err := store.GetRange(ctx, "BTCUSDT", domain.PeriodMs1h, 0, 1_000_000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 1 || got[0].Close != 2 {
		t.Fatalf("Expected the 1h candle, got %+v", got)
	}
}

func TestCandleStore_DuplicateFailsBatch(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	first := []domain.Candle{{TimestampMs: 60_000, Close: 1}}
	if err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Batch with one new and one duplicate row fails entirely.
	second := []domain.Candle{
		{TimestampMs: 120_000, Close: 2},
		{TimestampMs: 60_000, Close: 3},
	}
	err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, second)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// The non-duplicate row must not have been written.
	got, err := store.GetRange(ctx, "BTCUSDT", domain.PeriodMs1m, 0, 1_000_000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Partial batch was written: got %d candles", len(got))
	}
}

func TestCandleStore_IntraBatchDuplicate(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	batch := []domain.Candle{
		{TimestampMs: 60_000, Close: 1},
		{TimestampMs: 60_000, Close: 2},
	}
	err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, batch)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCandleStore_EmptyRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	got, err := store.GetRange(ctx, "UNKNOWN", domain.PeriodMs1m, 0, 1_000_000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty result, got %d", len(got))
	}
}

func TestCandleStore_InvalidInput(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	err := store.InsertBatch(ctx, "", domain.PeriodMs1m, []domain.Candle{{TimestampMs: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty symbol, got %v", err)
	}

	err = store.InsertBatch(ctx, "BTCUSDT", 0, []domain.Candle{{TimestampMs: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero period, got %v", err)
	}
}
