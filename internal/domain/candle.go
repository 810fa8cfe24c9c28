package domain

// Candle represents one OHLCV bar. Immutable once its timeframe bucket
// has closed; a still-forming bar may be updated in place by the feed.
type Candle struct {
	TimestampMs int64   // bucket open time (ms since epoch)
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// CloseTimeMs returns the time at which the candle's bucket closes.
func (c Candle) CloseTimeMs(periodMs int64) int64 {
	return c.TimestampMs + periodMs
}

// ClosedBy reports whether the candle is fully closed as of ts.
func (c Candle) ClosedBy(ts, periodMs int64) bool {
	return c.CloseTimeMs(periodMs) <= ts
}

// Common timeframe period lengths in milliseconds.
const (
	PeriodMs1m  = int64(60_000)
	PeriodMs5m  = 5 * PeriodMs1m
	PeriodMs15m = 15 * PeriodMs1m
	PeriodMs1h  = 60 * PeriodMs1m
	PeriodMs4h  = 4 * PeriodMs1h
	PeriodMs1d  = 24 * PeriodMs1h
)
