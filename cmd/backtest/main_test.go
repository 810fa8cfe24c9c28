package main

import (
	"testing"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/strategy"
)

// Every strategy type the --strategy flag advertises must produce a
// config the factory accepts with default flag values.
func TestBuildStrategyConfig_EveryTypeConstructs(t *testing.T) {
	params := strategyParams{
		fastEMA:        9,
		slowEMA:        21,
		htfEMA:         50,
		fastSMA:        10,
		slowSMA:        30,
		adxPeriod:      14,
		minADX:         20,
		scoreThreshold: 0.7,
		maxEntries:     3,
		levelDropPct:   0.03,
		takeProfitPct:  0.05,
		lookbackBars:   20,
		volumeMult:     1.5,
	}

	types := []string{
		domain.StrategyTypeTrend,
		domain.StrategyTypeCrossover,
		domain.StrategyTypeScored,
		domain.StrategyTypeDCA,
		domain.StrategyTypeBreakout,
	}
	for _, st := range types {
		p := params
		p.strategyType = st
		cfg := buildStrategyConfig(p)
		if _, err := strategy.FromConfig(cfg, domain.PeriodMs1h); err != nil {
			t.Errorf("%s: factory rejected flag-built config: %v", st, err)
		}
	}
}
