package strategy

import (
	"errors"

	"candle-trade-lab/internal/domain"
)

// Factory errors.
var (
	ErrUnknownStrategyType  = errors.New("unknown strategy type")
	ErrMissingFastEMA       = errors.New("TREND requires FastEMA")
	ErrMissingSlowEMA       = errors.New("TREND requires SlowEMA")
	ErrMissingHigherTFEMA   = errors.New("TREND requires HigherTFEMA")
	ErrMissingFastSMA       = errors.New("CROSSOVER requires FastSMA")
	ErrMissingSlowSMA       = errors.New("CROSSOVER requires SlowSMA")
	ErrMissingADXPeriod     = errors.New("CROSSOVER requires ADXPeriod")
	ErrMissingMinADX        = errors.New("CROSSOVER requires MinADX")
	ErrMissingScoreThresh   = errors.New("SCORED requires ScoreThreshold")
	ErrMissingMaxEntries    = errors.New("DCA requires MaxEntries")
	ErrMissingLevelDropPct  = errors.New("DCA requires LevelDropPct")
	ErrMissingTakeProfitPct = errors.New("DCA requires TakeProfitPct")
	ErrMissingLookbackBars  = errors.New("BREAKOUT requires LookbackBars")
	ErrMissingVolumeMult    = errors.New("BREAKOUT requires VolumeMult")
)

// Parameter defaults applied when the config leaves a secondary knob
// unset.
const (
	defaultATRPeriod   = 14
	defaultStopMult    = 2.0
	defaultRSIPeriod   = 14
	defaultOversoldRSI = 35.0
	defaultTrendEMA    = 50
	defaultVolumeSMA   = 20
	defaultRangeBars   = 20
	defaultCooldown    = 3
)

// FromConfig creates an Evaluator from domain.StrategyConfig. Required
// parameters are validated per strategy type; secondary knobs fall back
// to defaults. periodMs is the trading timeframe bucket length.
func FromConfig(cfg domain.StrategyConfig, periodMs int64) (Evaluator, error) {
	switch cfg.StrategyType {
	case domain.StrategyTypeTrend:
		return fromTrendConfig(cfg)
	case domain.StrategyTypeCrossover:
		return fromCrossoverConfig(cfg)
	case domain.StrategyTypeScored:
		return fromScoredConfig(cfg)
	case domain.StrategyTypeDCA:
		return fromDCAConfig(cfg)
	case domain.StrategyTypeBreakout:
		return fromBreakoutConfig(cfg, periodMs)
	default:
		return nil, ErrUnknownStrategyType
	}
}

func fromTrendConfig(cfg domain.StrategyConfig) (*TrendStrategy, error) {
	if cfg.FastEMA == nil {
		return nil, ErrMissingFastEMA
	}
	if cfg.SlowEMA == nil {
		return nil, ErrMissingSlowEMA
	}
	if cfg.HigherTFEMA == nil {
		return nil, ErrMissingHigherTFEMA
	}
	return NewTrendStrategy(
		*cfg.FastEMA,
		*cfg.SlowEMA,
		*cfg.HigherTFEMA,
		intOr(cfg.ATRPeriod, defaultATRPeriod),
		floatOr(cfg.ATRStopMult, defaultStopMult),
		cfg.ATRTakeMult, // nil = runner
		intOr(cfg.MaxPositions, 1),
	), nil
}

func fromCrossoverConfig(cfg domain.StrategyConfig) (*CrossoverStrategy, error) {
	if cfg.FastSMA == nil {
		return nil, ErrMissingFastSMA
	}
	if cfg.SlowSMA == nil {
		return nil, ErrMissingSlowSMA
	}
	if cfg.ADXPeriod == nil {
		return nil, ErrMissingADXPeriod
	}
	if cfg.MinADX == nil {
		return nil, ErrMissingMinADX
	}
	return NewCrossoverStrategy(
		*cfg.FastSMA,
		*cfg.SlowSMA,
		*cfg.ADXPeriod,
		*cfg.MinADX,
		floatOr(cfg.ATRStopMult, defaultStopMult),
		intOr(cfg.MaxPositions, 1),
	), nil
}

func fromScoredConfig(cfg domain.StrategyConfig) (*ScoredStrategy, error) {
	if cfg.ScoreThreshold == nil {
		return nil, ErrMissingScoreThresh
	}
	return NewScoredStrategy(
		defaultTrendEMA,
		defaultRSIPeriod,
		defaultVolumeSMA,
		defaultRangeBars,
		*cfg.ScoreThreshold,
		intOr(cfg.ATRPeriod, defaultATRPeriod),
		floatOr(cfg.ATRStopMult, defaultStopMult),
		intOr(cfg.MaxPositions, 1),
	), nil
}

func fromDCAConfig(cfg domain.StrategyConfig) (*DCAStrategy, error) {
	if cfg.MaxEntries == nil {
		return nil, ErrMissingMaxEntries
	}
	if cfg.LevelDropPct == nil {
		return nil, ErrMissingLevelDropPct
	}
	if cfg.TakeProfitPct == nil {
		return nil, ErrMissingTakeProfitPct
	}
	return NewDCAStrategy(
		defaultRSIPeriod,
		defaultOversoldRSI,
		*cfg.MaxEntries,
		*cfg.LevelDropPct,
		*cfg.TakeProfitPct,
	), nil
}

func fromBreakoutConfig(cfg domain.StrategyConfig, periodMs int64) (*BreakoutStrategy, error) {
	if cfg.LookbackBars == nil {
		return nil, ErrMissingLookbackBars
	}
	if cfg.VolumeMult == nil {
		return nil, ErrMissingVolumeMult
	}
	return NewBreakoutStrategy(
		*cfg.LookbackBars,
		*cfg.VolumeMult,
		intOr(cfg.CooldownCandles, defaultCooldown),
		intOr(cfg.ATRPeriod, defaultATRPeriod),
		floatOr(cfg.ATRStopMult, defaultStopMult),
		intOr(cfg.MaxPositions, 1),
		periodMs,
	), nil
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func floatOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}
