package clickhouse

import (
	"context"
	"fmt"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBatch adds candles for one symbol and timeframe. Fails the entire
// batch with ErrDuplicateKey on any duplicate (symbol, period_ms, timestamp_ms).
func (s *CandleStore) InsertBatch(ctx context.Context, symbol string, periodMs int64, candles []domain.Candle) error {
	if symbol == "" || periodMs <= 0 {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		if _, exists := seen[c.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[c.TimestampMs] = struct{}{}
	}

	// MergeTree doesn't enforce uniqueness, so check against existing rows
	// in [min, max] of the batch before inserting.
	minTs, maxTs := candles[0].TimestampMs, candles[0].TimestampMs
	for _, c := range candles[1:] {
		if c.TimestampMs < minTs {
			minTs = c.TimestampMs
		}
		if c.TimestampMs > maxTs {
			maxTs = c.TimestampMs
		}
	}
	existing, err := s.existingTimestamps(ctx, symbol, periodMs, minTs, maxTs)
	if err != nil {
		return fmt.Errorf("check existing candles: %w", err)
	}
	for _, c := range candles {
		if _, exists := existing[c.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			symbol, period_ms, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			symbol, uint64(periodMs), uint64(c.TimestampMs),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves candles with open time in [start, end], ordered ASC.
func (s *CandleStore) GetRange(ctx context.Context, symbol string, periodMs int64, start, end int64) ([]domain.Candle, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND period_ms = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, uint64(periodMs), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query candle range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// existingTimestamps returns the stored open times for a series in [start, end].
func (s *CandleStore) existingTimestamps(ctx context.Context, symbol string, periodMs, start, end int64) (map[int64]struct{}, error) {
	query := `
		SELECT timestamp_ms FROM candles
		WHERE symbol = ? AND period_ms = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	rows, err := s.conn.Query(ctx, query, symbol, uint64(periodMs), uint64(start), uint64(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]struct{})
	for rows.Next() {
		var ts uint64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		result[int64(ts)] = struct{}{}
	}
	return result, rows.Err()
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		var timestampMs uint64

		err := rows.Scan(&timestampMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.TimestampMs = int64(timestampMs)
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
