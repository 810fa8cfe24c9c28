// Package feed provides ordered candle series operations: validation,
// incremental merge, and multi-timeframe alignment.
package feed

import (
	"errors"
	"fmt"

	"candle-trade-lab/internal/domain"
)

// Feed errors.
var (
	ErrEmptySeries        = errors.New("empty candle series")
	ErrUnorderedSeries    = errors.New("candle series not ascending by timestamp")
	ErrDuplicateTimestamp = errors.New("duplicate candle timestamp")
)

// Validate checks that the series is ascending with no duplicate
// timestamps. An empty series is valid (callers treat it as
// insufficient data).
func Validate(series []domain.Candle) error {
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1].TimestampMs, series[i].TimestampMs
		if cur == prev {
			return fmt.Errorf("%w: %d at index %d", ErrDuplicateTimestamp, cur, i)
		}
		if cur < prev {
			return fmt.Errorf("%w: index %d (%d < %d)", ErrUnorderedSeries, i, cur, prev)
		}
	}
	return nil
}

// Merge appends fresh candles onto an existing series. Overlapping
// timestamps take the fresh value (a still-open bucket may be updated in
// place); the result stays ascending. Both inputs must individually be
// ordered.
func Merge(existing, fresh []domain.Candle) []domain.Candle {
	if len(fresh) == 0 {
		return existing
	}
	if len(existing) == 0 {
		out := make([]domain.Candle, len(fresh))
		copy(out, fresh)
		return out
	}

	first := fresh[0].TimestampMs

	// Keep the prefix of existing strictly before the fresh window.
	cut := len(existing)
	for cut > 0 && existing[cut-1].TimestampMs >= first {
		cut--
	}

	out := make([]domain.Candle, 0, cut+len(fresh))
	out = append(out, existing[:cut]...)
	out = append(out, fresh...)
	return out
}

// Resample aggregates a series into larger buckets: open of the first
// bar, close of the last, extreme high/low, summed volume. Bucket
// boundaries align to multiples of targetPeriodMs, so a partial leading
// or trailing bucket carries only the bars that fall inside it.
// targetPeriodMs must be a multiple of periodMs.
func Resample(series []domain.Candle, periodMs, targetPeriodMs int64) []domain.Candle {
	if len(series) == 0 || targetPeriodMs <= periodMs || targetPeriodMs%periodMs != 0 {
		return nil
	}

	var out []domain.Candle
	for _, c := range series {
		bucket := c.TimestampMs - c.TimestampMs%targetPeriodMs
		if len(out) == 0 || out[len(out)-1].TimestampMs != bucket {
			agg := c
			agg.TimestampMs = bucket
			out = append(out, agg)
			continue
		}
		cur := &out[len(out)-1]
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	return out
}

// LastClosed returns the most recent candle fully closed as of ts, or
// false if none has closed yet. The freshest, possibly still-forming
// bucket is excluded.
func LastClosed(series []domain.Candle, ts, periodMs int64) (domain.Candle, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].ClosedBy(ts, periodMs) {
			return series[i], true
		}
	}
	return domain.Candle{}, false
}

// CloseAt returns the close of the candle at or before ts, or false when
// no candle opened at or before ts exists.
func CloseAt(series []domain.Candle, ts int64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].TimestampMs <= ts {
			return series[i].Close, true
		}
	}
	return 0, false
}
