package strategy

import (
	"math"

	"candle-trade-lab/internal/domain"
)

// hold returns a HOLD signal for the input's last candle with the given
// reason code.
func hold(in *Input, reason string) *domain.Signal {
	last := in.Last()
	return domain.Hold(last.TimestampMs, last.Close, reason)
}

// anyNaN reports whether any of the values is NaN.
func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// atMaxPositions reports whether the strategy-local open-trade cap is
// reached. maxPositions <= 0 means a single position.
func atMaxPositions(in *Input, maxPositions int) bool {
	limit := maxPositions
	if limit <= 0 {
		limit = 1
	}
	return len(in.OpenTrades) >= limit
}

// longLevels derives stop and take levels below/above entry from ATR
// multiples. takeMult nil means runner: no take-profit cap.
func longLevels(entry, atr, stopMult float64, takeMult *float64) (stop float64, take *float64) {
	stop = entry - atr*stopMult
	if takeMult != nil {
		take = domain.Float64Ptr(entry + atr*(*takeMult))
	}
	return stop, take
}

// shortLevels mirrors longLevels for the short side.
func shortLevels(entry, atr, stopMult float64, takeMult *float64) (stop float64, take *float64) {
	stop = entry + atr*stopMult
	if takeMult != nil {
		take = domain.Float64Ptr(entry - atr*(*takeMult))
	}
	return stop, take
}
