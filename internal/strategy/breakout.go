package strategy

import (
	"context"
	"fmt"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/indicator"
)

// BreakoutStrategy enters when the close clears the N-bar extreme on
// expanding volume. A cooldown measured in candles after the last trade
// close suppresses immediate re-entry into the same move.
type BreakoutStrategy struct {
	LookbackBars    int
	VolumeMult      float64 // required volume vs the lookback average
	CooldownCandles int
	ATRPeriod       int
	StopMult        float64
	MaxPos          int

	periodMs int64 // trading timeframe, for the cooldown window
}

// NewBreakoutStrategy creates a BreakoutStrategy. periodMs is the
// trading timeframe bucket length, used to convert the candle cooldown
// into a wall-clock window.
func NewBreakoutStrategy(lookbackBars int, volumeMult float64, cooldownCandles, atrPeriod int, stopMult float64, maxPos int, periodMs int64) *BreakoutStrategy {
	return &BreakoutStrategy{
		LookbackBars:    lookbackBars,
		VolumeMult:      volumeMult,
		CooldownCandles: cooldownCandles,
		ATRPeriod:       atrPeriod,
		StopMult:        stopMult,
		MaxPos:          maxPos,
		periodMs:        periodMs,
	}
}

// ID returns the strategy identifier including parameters.
func (s *BreakoutStrategy) ID() string {
	return fmt.Sprintf("BREAKOUT_n%d_vol%.1fx_cd%d", s.LookbackBars, s.VolumeMult, s.CooldownCandles)
}

// Warmup returns the minimum candle count.
func (s *BreakoutStrategy) Warmup() int {
	w := s.LookbackBars
	if s.ATRPeriod > w {
		w = s.ATRPeriod
	}
	return w + 1
}

// Evaluate implements Evaluator.
func (s *BreakoutStrategy) Evaluate(_ context.Context, in *Input) (*domain.Signal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if len(in.Series) < s.Warmup() {
		return hold(in, domain.ReasonInsufficientCandles), nil
	}
	if atMaxPositions(in, s.MaxPos) {
		return hold(in, domain.ReasonMaxPositions), nil
	}

	series := in.Series
	i := len(series) - 1
	last := series[i]

	// Cooldown since the last closed trade, in candle units.
	if s.CooldownCandles > 0 && in.LastTradeClosedAtMs > 0 {
		window := int64(s.CooldownCandles) * s.periodMs
		if last.TimestampMs-in.LastTradeClosedAtMs < window {
			return hold(in, domain.ReasonCooldownActive), nil
		}
	}

	// Extremes over the lookback window ending at the PREVIOUS bar, so
	// the breakout bar itself is not part of its own reference range.
	hh := indicator.HighestHigh(series[:i], s.LookbackBars)
	ll := indicator.LowestLow(series[:i], s.LookbackBars)
	atr := indicator.ATR(series, s.ATRPeriod)
	if anyNaN(hh[i-1], ll[i-1], atr[i]) {
		return hold(in, domain.ReasonIndicatorNaN), nil
	}

	var avgVol float64
	for j := i - s.LookbackBars; j < i; j++ {
		avgVol += series[j].Volume
	}
	avgVol /= float64(s.LookbackBars)
	volumeOK := avgVol > 0 && last.Volume >= s.VolumeMult*avgVol

	diag := domain.Diagnostics{Values: map[string]float64{
		"rangeHigh": hh[i-1],
		"rangeLow":  ll[i-1],
		"volume":    last.Volume,
		"avgVolume": avgVol,
		"atr":       atr[i],
	}}

	if !volumeOK {
		diag.Reason = domain.ReasonNoSetup
		return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
	}

	if last.Close > hh[i-1] {
		stop := last.Close - atr[i]*s.StopMult
		return &domain.Signal{
			Action:      domain.ActionBuy,
			Price:       last.Close,
			TimestampMs: last.TimestampMs,
			StopLoss:    &stop,
			TakeProfit:  nil, // let the breakout run, trail handles the exit
			ATR:         domain.Float64Ptr(atr[i]),
			Diagnostics: diag,
		}, nil
	}
	if last.Close < ll[i-1] {
		stop := last.Close + atr[i]*s.StopMult
		return &domain.Signal{
			Action:      domain.ActionSell,
			Price:       last.Close,
			TimestampMs: last.TimestampMs,
			StopLoss:    &stop,
			TakeProfit:  nil,
			ATR:         domain.Float64Ptr(atr[i]),
			Diagnostics: diag,
		}, nil
	}

	diag.Reason = domain.ReasonNoSetup
	return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
}

var _ Evaluator = (*BreakoutStrategy)(nil)
