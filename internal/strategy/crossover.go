package strategy

import (
	"context"
	"fmt"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/indicator"
)

// CrossoverStrategy trades SMA crosses filtered by trend strength: a
// cross only counts when ADX is at or above MinADX and the directional
// lines agree with the cross direction. Exits on the opposite cross.
type CrossoverStrategy struct {
	FastSMA   int
	SlowSMA   int
	ADXPeriod int
	MinADX    float64
	StopMult  float64 // ATR multiples, ATR period = ADXPeriod
	MaxPos    int
}

// NewCrossoverStrategy creates a CrossoverStrategy.
func NewCrossoverStrategy(fastSMA, slowSMA, adxPeriod int, minADX, stopMult float64, maxPos int) *CrossoverStrategy {
	return &CrossoverStrategy{
		FastSMA:   fastSMA,
		SlowSMA:   slowSMA,
		ADXPeriod: adxPeriod,
		MinADX:    minADX,
		StopMult:  stopMult,
		MaxPos:    maxPos,
	}
}

// ID returns the strategy identifier including parameters.
func (s *CrossoverStrategy) ID() string {
	return fmt.Sprintf("CROSSOVER_sma%d-%d_adx%d@%.0f", s.FastSMA, s.SlowSMA, s.ADXPeriod, s.MinADX)
}

// Warmup returns the minimum candle count (ADX needs ~2 periods).
func (s *CrossoverStrategy) Warmup() int {
	w := s.SlowSMA
	if 2*s.ADXPeriod > w {
		w = 2 * s.ADXPeriod
	}
	return w + 1
}

// Evaluate implements Evaluator.
func (s *CrossoverStrategy) Evaluate(_ context.Context, in *Input) (*domain.Signal, error) {
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

	fast := indicator.SMA(series, s.FastSMA)
	slow := indicator.SMA(series, s.SlowSMA)
	dmi := indicator.ADX(series, s.ADXPeriod)
	atr := indicator.ATR(series, s.ADXPeriod)

	if anyNaN(fast[i], slow[i], fast[i-1], slow[i-1], dmi.ADX[i], dmi.PlusDI[i], dmi.MinusDI[i], atr[i]) {
		return hold(in, domain.ReasonIndicatorNaN), nil
	}

	crossedUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
	crossedDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]

	diag := domain.Diagnostics{Values: map[string]float64{
		"smaFast": fast[i],
		"smaSlow": slow[i],
		"adx":     dmi.ADX[i],
		"plusDI":  dmi.PlusDI[i],
		"minusDI": dmi.MinusDI[i],
	}}

	if !crossedUp && !crossedDown {
		diag.Reason = domain.ReasonNoSetup
		return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
	}
	if dmi.ADX[i] < s.MinADX {
		diag.Reason = domain.ReasonADXTooLow
		return &domain.Signal{Action: domain.ActionHold, Price: last.Close, TimestampMs: last.TimestampMs, Diagnostics: diag}, nil
	}

	if crossedUp && dmi.PlusDI[i] > dmi.MinusDI[i] {
		stop := last.Close - atr[i]*s.StopMult
		return &domain.Signal{
			Action:      domain.ActionBuy,
			Price:       last.Close,
			TimestampMs: last.TimestampMs,
			StopLoss:    &stop,
			TakeProfit:  nil, // runner: the opposite cross or trail closes it
			ATR:         domain.Float64Ptr(atr[i]),
			Diagnostics: diag,
		}, nil
	}
	if crossedDown && dmi.MinusDI[i] > dmi.PlusDI[i] {
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

// ShouldExit implements ExitAdvisor: the opposite SMA cross closes the
// position.
func (s *CrossoverStrategy) ShouldExit(trade *domain.Trade, series []domain.Candle) (bool, string) {
	if len(series) < s.SlowSMA+1 {
		return false, ""
	}
	i := len(series) - 1
	fast := indicator.SMA(series, s.FastSMA)
	slow := indicator.SMA(series, s.SlowSMA)
	if anyNaN(fast[i], slow[i], fast[i-1], slow[i-1]) {
		return false, ""
	}
	if trade.Side == domain.SideLong && fast[i-1] >= slow[i-1] && fast[i] < slow[i] {
		return true, domain.ExitReasonOppositeSignal
	}
	if trade.Side == domain.SideShort && fast[i-1] <= slow[i-1] && fast[i] > slow[i] {
		return true, domain.ExitReasonOppositeSignal
	}
	return false, ""
}

var (
	_ Evaluator   = (*CrossoverStrategy)(nil)
	_ ExitAdvisor = (*CrossoverStrategy)(nil)
)
