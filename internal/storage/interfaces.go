package storage

import (
	"context"

	"candle-trade-lab/internal/domain"
)

// TradeStore persists executed trades.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// Upsert inserts the trade or overwrites the existing row with the
	// same trade_id. Used by live sessions that write a trade at open
	// and rewrite it on close.
	Upsert(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// ListByStrategy retrieves all trades produced by a strategy,
	// ordered by opened_at ASC, trade_id ASC.
	ListByStrategy(ctx context.Context, strategyID string) ([]*domain.Trade, error)

	// ListBySymbol retrieves all trades for a symbol,
	// ordered by opened_at ASC, trade_id ASC.
	ListBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error)
}

// EquityCurveStore persists per-run equity curves.
type EquityCurveStore interface {
	// InsertBatch adds all points of one run's equity curve.
	// Empty batches are a no-op.
	InsertBatch(ctx context.Context, runID string, points []domain.EquityPoint) error

	// GetByRunID retrieves all points for a run, ordered by timestamp ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquityPoint, error)
}

// CandleStore persists OHLCV candles keyed by (symbol, period_ms, open_time).
type CandleStore interface {
	// InsertBatch adds candles for one symbol and timeframe. Duplicate
	// (symbol, period_ms, timestamp) rows fail the batch with ErrDuplicateKey.
	InsertBatch(ctx context.Context, symbol string, periodMs int64, candles []domain.Candle) error

	// GetRange retrieves candles with open time in [start, end] inclusive,
	// ordered by timestamp ASC.
	GetRange(ctx context.Context, symbol string, periodMs int64, start, end int64) ([]domain.Candle, error)
}
