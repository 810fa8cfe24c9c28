package strategy

import (
	"context"
	"fmt"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/indicator"
)

// ScoredStrategy sums weighted boolean conditions against a threshold.
// Each side gets its own score from four mirrored conditions (trend,
// momentum, volume expansion, range position); a signal fires when the
// score reaches Threshold. Diagnostics carry the per-condition
// contributions so a run can be audited factor by factor.
type ScoredStrategy struct {
	TrendEMA   int     // trend filter EMA period
	RSIPeriod  int
	VolumeSMA  int     // volume baseline window
	RangeBars  int     // range-position lookback
	Threshold  float64 // minimum score to enter, out of 1.0
	StopMult   float64 // ATR multiples
	ATRPeriod  int
	MaxPos     int
}

// Condition weights, sum to 1.0 per side.
const (
	weightTrend    = 0.35
	weightMomentum = 0.25
	weightVolume   = 0.15
	weightRange    = 0.25
)

// NewScoredStrategy creates a ScoredStrategy.
func NewScoredStrategy(trendEMA, rsiPeriod, volumeSMA, rangeBars int, threshold float64, atrPeriod int, stopMult float64, maxPos int) *ScoredStrategy {
	return &ScoredStrategy{
		TrendEMA:  trendEMA,
		RSIPeriod: rsiPeriod,
		VolumeSMA: volumeSMA,
		RangeBars: rangeBars,
		Threshold: threshold,
		ATRPeriod: atrPeriod,
		StopMult:  stopMult,
		MaxPos:    maxPos,
	}
}

// ID returns the strategy identifier including parameters.
func (s *ScoredStrategy) ID() string {
	return fmt.Sprintf("SCORED_ema%d_rsi%d_thr%.2f", s.TrendEMA, s.RSIPeriod, s.Threshold)
}

// Warmup returns the minimum candle count.
func (s *ScoredStrategy) Warmup() int {
	w := s.TrendEMA
	for _, n := range []int{s.RSIPeriod + 1, s.VolumeSMA, s.RangeBars, s.ATRPeriod} {
		if n > w {
			w = n
		}
	}
	return w + 1
}

// Evaluate implements Evaluator.
func (s *ScoredStrategy) Evaluate(_ context.Context, in *Input) (*domain.Signal, error) {
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

	ema := indicator.EMA(series, s.TrendEMA)
	rsi := indicator.RSI(series, s.RSIPeriod)
	atr := indicator.ATR(series, s.ATRPeriod)
	hh := indicator.HighestHigh(series, s.RangeBars)
	ll := indicator.LowestLow(series, s.RangeBars)

	if anyNaN(ema[i], rsi[i], atr[i], hh[i], ll[i]) {
		return hold(in, domain.ReasonIndicatorNaN), nil
	}

	var avgVol float64
	for j := i - s.VolumeSMA + 1; j <= i; j++ {
		avgVol += series[j].Volume
	}
	avgVol /= float64(s.VolumeSMA)
	volumeExpanding := avgVol > 0 && last.Volume > 1.5*avgVol

	// Range position: where the close sits inside the recent range.
	rangePos := 0.5
	if hh[i] > ll[i] {
		rangePos = (last.Close - ll[i]) / (hh[i] - ll[i])
	}

	bull := map[string]float64{}
	bear := map[string]float64{}
	score := func(m map[string]float64, name string, ok bool, w float64) {
		if ok {
			m[name] = w
		} else {
			m[name] = 0
		}
	}

	score(bull, "trend", last.Close > ema[i], weightTrend)
	score(bull, "momentum", rsi[i] >= 50 && rsi[i] < 70, weightMomentum)
	score(bull, "volume", volumeExpanding, weightVolume)
	score(bull, "range", rangePos >= 0.8, weightRange)

	score(bear, "trend", last.Close < ema[i], weightTrend)
	score(bear, "momentum", rsi[i] <= 50 && rsi[i] > 30, weightMomentum)
	score(bear, "volume", volumeExpanding, weightVolume)
	score(bear, "range", rangePos <= 0.2, weightRange)

	bullScore := sumScores(bull)
	bearScore := sumScores(bear)

	diag := domain.Diagnostics{
		Values: map[string]float64{
			"rsi":       rsi[i],
			"ema":       ema[i],
			"rangePos":  rangePos,
			"bullScore": bullScore,
			"bearScore": bearScore,
		},
	}

	if bullScore >= s.Threshold && bullScore >= bearScore {
		diag.Scores = bull
		stop := last.Close - atr[i]*s.StopMult
		return &domain.Signal{
			Action:      domain.ActionBuy,
			Price:       last.Close,
			TimestampMs: last.TimestampMs,
			StopLoss:    &stop,
			TakeProfit:  domain.Float64Ptr(last.Close + 2*atr[i]*s.StopMult),
			ATR:         domain.Float64Ptr(atr[i]),
			SizingHint:  domain.Float64Ptr(bullScore), // scale risk by conviction
			Diagnostics: diag,
		}, nil
	}
	if bearScore >= s.Threshold && bearScore > bullScore {
		diag.Scores = bear
		stop := last.Close + atr[i]*s.StopMult
		return &domain.Signal{
			Action:      domain.ActionSell,
			Price:       last.Close,
			TimestampMs: last.TimestampMs,
			StopLoss:    &stop,
			TakeProfit:  domain.Float64Ptr(last.Close - 2*atr[i]*s.StopMult),
			ATR:         domain.Float64Ptr(atr[i]),
			SizingHint:  domain.Float64Ptr(bearScore),
			Diagnostics: diag,
		}, nil
	}

	diag.Reason = domain.ReasonScoreBelowThreshold
	diag.Scores = bull
	if bearScore > bullScore {
		diag.Scores = bear
	}
	return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
}

func sumScores(m map[string]float64) float64 {
	var s float64
	for _, v := range m {
		s += v
	}
	return s
}

var _ Evaluator = (*ScoredStrategy)(nil)
