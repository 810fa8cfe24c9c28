package memory

import (
	"context"
	"sort"
	"sync"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/storage"
)

type candleSeriesKey struct {
	symbol   string
	periodMs int64
}

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[candleSeriesKey]map[int64]domain.Candle // inner map keyed by open time
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[candleSeriesKey]map[int64]domain.Candle),
	}
}

// Verify interface compliance at compile time.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBatch adds candles for one symbol and timeframe. The whole batch
// fails with ErrDuplicateKey on any duplicate open time.
func (s *CandleStore) InsertBatch(_ context.Context, symbol string, periodMs int64, candles []domain.Candle) error {
	if symbol == "" || periodMs <= 0 {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := candleSeriesKey{symbol, periodMs}
	series, exists := s.data[key]
	if !exists {
		series = make(map[int64]domain.Candle)
		s.data[key] = series
	}

	// Check for duplicates (intra-batch and against stored rows) before writing.
	seen := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		if _, dup := seen[c.TimestampMs]; dup {
			return storage.ErrDuplicateKey
		}
		if _, dup := series[c.TimestampMs]; dup {
			return storage.ErrDuplicateKey
		}
		seen[c.TimestampMs] = struct{}{}
	}

	for _, c := range candles {
		series[c.TimestampMs] = c
	}
	return nil
}

// GetRange retrieves candles with open time in [start, end], ordered ASC.
func (s *CandleStore) GetRange(_ context.Context, symbol string, periodMs int64, start, end int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[candleSeriesKey{symbol, periodMs}]

	var result []domain.Candle
	for ts, c := range series {
		if ts >= start && ts <= end {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}
