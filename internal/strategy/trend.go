package strategy

import (
	"context"
	"fmt"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/indicator"
)

// TrendStrategy trades pullbacks in the direction of the prevailing
// trend. The trend is established twice: on the trading timeframe by a
// fast/slow EMA pair, and on a higher timeframe by price above (or
// below) a long EMA. Entries require a pullback to the fast EMA followed
// by a close back in trend direction.
//
// Stops are ATR multiples. TakeMult nil makes the position a runner:
// a partial take-profit is armed at one initial risk distance and the
// remainder exits by trailing only.
type TrendStrategy struct {
	FastEMA     int
	SlowEMA     int
	HigherTFEMA int
	ATRPeriod   int
	StopMult    float64
	TakeMult    *float64
	MaxPos      int
}

// NewTrendStrategy creates a TrendStrategy.
func NewTrendStrategy(fastEMA, slowEMA, higherTFEMA, atrPeriod int, stopMult float64, takeMult *float64, maxPos int) *TrendStrategy {
	return &TrendStrategy{
		FastEMA:     fastEMA,
		SlowEMA:     slowEMA,
		HigherTFEMA: higherTFEMA,
		ATRPeriod:   atrPeriod,
		StopMult:    stopMult,
		TakeMult:    takeMult,
		MaxPos:      maxPos,
	}
}

// ID returns the strategy identifier including parameters.
func (s *TrendStrategy) ID() string {
	return fmt.Sprintf("TREND_ema%d-%d_htf%d_atr%dx%.1f",
		s.FastEMA, s.SlowEMA, s.HigherTFEMA, s.ATRPeriod, s.StopMult)
}

// Warmup returns the minimum trading-timeframe candle count.
func (s *TrendStrategy) Warmup() int {
	w := s.SlowEMA
	if s.ATRPeriod > w {
		w = s.ATRPeriod
	}
	return w + 2 // one extra closed bar for the pullback check
}

// Evaluate implements Evaluator.
func (s *TrendStrategy) Evaluate(_ context.Context, in *Input) (*domain.Signal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if len(in.Series) < s.Warmup() || len(in.HigherTF) < s.HigherTFEMA {
		return hold(in, domain.ReasonInsufficientCandles), nil
	}
	if atMaxPositions(in, s.MaxPos) {
		return hold(in, domain.ReasonMaxPositions), nil
	}

	series := in.Series
	i := len(series) - 1
	last := series[i]

	fast := indicator.EMA(series, s.FastEMA)
	slow := indicator.EMA(series, s.SlowEMA)
	atr := indicator.ATR(series, s.ATRPeriod)
	htfEMA := indicator.EMA(in.HigherTF, s.HigherTFEMA)

	htfLast := len(in.HigherTF) - 1
	if anyNaN(fast[i], slow[i], atr[i], htfEMA[htfLast]) {
		return hold(in, domain.ReasonIndicatorNaN), nil
	}

	htfClose := in.HigherTF[htfLast].Close
	upTrend := htfClose > htfEMA[htfLast] && fast[i] > slow[i]
	downTrend := htfClose < htfEMA[htfLast] && fast[i] < slow[i]

	// Pullback confirmation: the previous bar touched the fast EMA and
	// the current bar closed back in trend direction.
	prev := series[i-1]
	pullbackLong := upTrend && prev.Low <= fast[i-1] && last.Close > fast[i]
	pullbackShort := downTrend && prev.High >= fast[i-1] && last.Close < fast[i]

	diag := domain.Diagnostics{Values: map[string]float64{
		"emaFast": fast[i],
		"emaSlow": slow[i],
		"htfEMA":  htfEMA[htfLast],
		"atr":     atr[i],
	}}

	switch {
	case pullbackLong:
		stop, take := longLevels(last.Close, atr[i], s.StopMult, s.TakeMult)
		risk := last.Close - stop
		return &domain.Signal{
			Action:      domain.ActionBuy,
			Price:       last.Close,
			TimestampMs: last.TimestampMs,
			StopLoss:    &stop,
			TakeProfit:  take,
			TakeProfit1: domain.Float64Ptr(last.Close + risk), // 1R partial
			ATR:         domain.Float64Ptr(atr[i]),
			Diagnostics: diag,
		}, nil
	case pullbackShort:
		stop, take := shortLevels(last.Close, atr[i], s.StopMult, s.TakeMult)
		risk := stop - last.Close
		return &domain.Signal{
			Action:      domain.ActionSell,
			Price:       last.Close,
			TimestampMs: last.TimestampMs,
			StopLoss:    &stop,
			TakeProfit:  take,
			TakeProfit1: domain.Float64Ptr(last.Close - risk),
			ATR:         domain.Float64Ptr(atr[i]),
			Diagnostics: diag,
		}, nil
	}

	diag.Reason = domain.ReasonNoSetup
	return &domain.Signal{
		Action:      domain.ActionHold,
		Price:       last.Close,
		TimestampMs: last.TimestampMs,
		Diagnostics: diag,
	}, nil
}

// ShouldExit implements ExitAdvisor: a fast/slow EMA cross against the
// position closes it early.
func (s *TrendStrategy) ShouldExit(trade *domain.Trade, series []domain.Candle) (bool, string) {
	if len(series) < s.SlowEMA+1 {
		return false, ""
	}
	i := len(series) - 1
	fast := indicator.EMA(series, s.FastEMA)
	slow := indicator.EMA(series, s.SlowEMA)
	if anyNaN(fast[i], slow[i]) {
		return false, ""
	}
	if trade.Side == domain.SideLong && fast[i] < slow[i] {
		return true, domain.ExitReasonOppositeSignal
	}
	if trade.Side == domain.SideShort && fast[i] > slow[i] {
		return true, domain.ExitReasonOppositeSignal
	}
	return false, ""
}

var (
	_ Evaluator   = (*TrendStrategy)(nil)
	_ ExitAdvisor = (*TrendStrategy)(nil)
)
