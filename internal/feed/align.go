package feed

import "candle-trade-lab/internal/domain"

// ClipToClosed returns the longest prefix of series whose last candle
// has fully closed as of ts. Used to align a higher timeframe to a
// lower-timeframe cursor without revealing a still-forming bar.
//
// Empty series or no closed candle yet returns an empty result; callers
// must treat that as insufficient data, not as zero trend.
func ClipToClosed(series []domain.Candle, ts, periodMs int64) []domain.Candle {
	// Series is ascending, so scan back for the last closed bar.
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].ClosedBy(ts, periodMs) {
			return series[:i+1]
		}
	}
	return nil
}
