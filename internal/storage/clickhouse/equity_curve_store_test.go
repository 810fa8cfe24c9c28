package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/storage"
)

func TestEquityCurveStore_InsertAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEquityCurveStore(conn)
	ctx := context.Background()

	points := []domain.EquityPoint{
		{TimestampMs: 1000, Balance: 10000, Equity: 10000},
		{TimestampMs: 2000, Balance: 9900, Equity: 10010},
		{TimestampMs: 3000, Balance: 10050, Equity: 10050},
	}

	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT/trend/backtest", points))

	got, err := store.GetByRunID(ctx, "BTCUSDT/trend/backtest")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, 10010.0, got[1].Equity)
	assert.Equal(t, 10050.0, got[2].Balance)
}

func TestEquityCurveStore_RunsIsolated(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEquityCurveStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBatch(ctx, "run1",
		[]domain.EquityPoint{{TimestampMs: 1000, Equity: 1}}))
	require.NoError(t, store.InsertBatch(ctx, "run2",
		[]domain.EquityPoint{{TimestampMs: 1000, Equity: 2}}))

	got, err := store.GetByRunID(ctx, "run2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Equity)
}

func TestEquityCurveStore_NotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEquityCurveStore(conn)
	ctx := context.Background()

	_, err := store.GetByRunID(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
