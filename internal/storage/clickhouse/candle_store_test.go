package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/storage"
)

func TestCandleStore_InsertAndGetRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	candles := []domain.Candle{
		{TimestampMs: 60_000, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{TimestampMs: 120_000, Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 150},
		{TimestampMs: 180_000, Open: 11.5, High: 13, Low: 11, Close: 12.5, Volume: 120},
	}

	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, candles))

	got, err := store.GetRange(ctx, "BTCUSDT", domain.PeriodMs1m, 60_000, 120_000)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(60_000), got[0].TimestampMs)
	assert.Equal(t, int64(120_000), got[1].TimestampMs)
	assert.Equal(t, 11.5, got[1].Close)
	assert.Equal(t, 150.0, got[1].Volume)
}

func TestCandleStore_TimeframesIsolated(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m,
		[]domain.Candle{{TimestampMs: 60_000, Close: 1}}))
	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1h,
		[]domain.Candle{{TimestampMs: 60_000, Close: 2}}))

	got, err := store.GetRange(ctx, "BTCUSDT", domain.PeriodMs1h, 0, 1_000_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Close)
}

func TestCandleStore_DuplicateFailsBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m,
		[]domain.Candle{{TimestampMs: 60_000, Close: 1}}))

	err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, []domain.Candle{
		{TimestampMs: 120_000, Close: 2},
		{TimestampMs: 60_000, Close: 3},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCandleStore_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	err := store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, []domain.Candle{
		{TimestampMs: 60_000, Close: 1},
		{TimestampMs: 60_000, Close: 2},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCandleStore_EmptyBatchNoOp(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCandleStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT", domain.PeriodMs1m, nil))

	got, err := store.GetRange(ctx, "BTCUSDT", domain.PeriodMs1m, 0, 1_000_000)
	require.NoError(t, err)
	assert.Empty(t, got)
}
