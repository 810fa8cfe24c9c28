package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, symbol, side, strategy_id, mode,
	entry_price, quantity, entry_fee, opened_at_ms,
	stop_loss, take_profit, take_profit_1, partial_close_done,
	initial_stop_loss, initial_risk,
	highest_price, lowest_price, candle_count,
	status, exit_price, exit_fee, pnl, exit_reason, closed_at_ms
`

const tradeInsertQuery = `
	INSERT INTO trades (` + tradeColumns + `
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15,
		$16, $17, $18,
		$19, $20, $21, $22, $23, $24
	)
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, tradeInsertQuery, tradeArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Upsert inserts the trade or overwrites the existing row with the same
// trade_id. Live sessions write the trade at open and rewrite it on close.
func (s *TradeStore) Upsert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := tradeInsertQuery + `
	ON CONFLICT (trade_id) DO UPDATE SET
		stop_loss = EXCLUDED.stop_loss,
		take_profit = EXCLUDED.take_profit,
		take_profit_1 = EXCLUDED.take_profit_1,
		partial_close_done = EXCLUDED.partial_close_done,
		highest_price = EXCLUDED.highest_price,
		lowest_price = EXCLUDED.lowest_price,
		candle_count = EXCLUDED.candle_count,
		quantity = EXCLUDED.quantity,
		entry_fee = EXCLUDED.entry_fee,
		status = EXCLUDED.status,
		exit_price = EXCLUDED.exit_price,
		exit_fee = EXCLUDED.exit_fee,
		pnl = EXCLUDED.pnl,
		exit_reason = EXCLUDED.exit_reason,
		closed_at_ms = EXCLUDED.closed_at_ms
	`

	_, err := s.pool.Exec(ctx, query, tradeArgs(t)...)
	if err != nil {
		return fmt.Errorf("upsert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// ListByStrategy retrieves all trades produced by a strategy.
func (s *TradeStore) ListByStrategy(ctx context.Context, strategyID string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE strategy_id = $1
		ORDER BY opened_at_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("list trades by strategy: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListBySymbol retrieves all trades for a symbol.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE symbol = $1
		ORDER BY opened_at_ms ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("list trades by symbol: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// tradeArgs returns the insert parameters in tradeColumns order.
func tradeArgs(t *domain.Trade) []any {
	return []any{
		t.TradeID, t.Symbol, string(t.Side), t.StrategyID, t.Mode,
		t.EntryPrice, t.Quantity, t.EntryFee, t.OpenedAtMs,
		t.StopLoss, t.TakeProfit, t.TakeProfit1, t.PartialCloseDone,
		t.InitialStopLoss, t.InitialRisk,
		t.HighestPrice, t.LowestPrice, t.CandleCount,
		string(t.Status), t.ExitPrice, t.ExitFee, t.PnL, t.ExitReason, t.ClosedAtMs,
	}
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var side, status string

	err := row.Scan(
		&t.TradeID, &t.Symbol, &side, &t.StrategyID, &t.Mode,
		&t.EntryPrice, &t.Quantity, &t.EntryFee, &t.OpenedAtMs,
		&t.StopLoss, &t.TakeProfit, &t.TakeProfit1, &t.PartialCloseDone,
		&t.InitialStopLoss, &t.InitialRisk,
		&t.HighestPrice, &t.LowestPrice, &t.CandleCount,
		&status, &t.ExitPrice, &t.ExitFee, &t.PnL, &t.ExitReason, &t.ClosedAtMs,
	)
	if err != nil {
		return nil, err
	}

	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
