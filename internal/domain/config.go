package domain

// Strategy type constants.
const (
	StrategyTypeTrend     = "TREND"
	StrategyTypeCrossover = "CROSSOVER"
	StrategyTypeScored    = "SCORED"
	StrategyTypeDCA       = "DCA"
	StrategyTypeBreakout  = "BREAKOUT"
)

// StrategyConfig holds strategy construction parameters. Pointer fields
// are required only for the strategy types that use them; the factory
// validates per type.
type StrategyConfig struct {
	StrategyType string

	// TREND parameters
	FastEMA        *int
	SlowEMA        *int
	HigherTFEMA    *int
	ATRPeriod      *int
	ATRStopMult    *float64
	ATRTakeMult    *float64 // nil = runner (trailing exit only)

	// CROSSOVER parameters
	FastSMA   *int
	SlowSMA   *int
	ADXPeriod *int
	MinADX    *float64

	// SCORED parameters
	ScoreThreshold *float64

	// DCA parameters
	MaxEntries    *int
	LevelDropPct  *float64
	TakeProfitPct *float64

	// BREAKOUT parameters
	LookbackBars    *int
	VolumeMult      *float64
	CooldownCandles *int

	// Common parameters
	MaxPositions *int

	// Per-strategy risk overrides (nil = use run defaults).
	Risk *RiskConfig
}

// RiskConfig holds admission and sizing thresholds.
type RiskConfig struct {
	RiskPercent        float64 // fraction of balance risked per trade
	MaxCapitalFraction float64 // cap on entry notional as fraction of balance
	MaxDrawdown        float64 // deny entries at/above this drawdown
	MaxDailyLoss       float64 // deny entries at/above this daily loss
	CooldownMs         int64   // min gap since last trade close
	MaxTradesPerDay    int     // 0 = uncapped
}

// DefaultRiskConfig returns the baseline risk thresholds.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		RiskPercent:        0.01,
		MaxCapitalFraction: 0.25,
		MaxDrawdown:        0.20,
		MaxDailyLoss:       0.05,
		CooldownMs:         0,
		MaxTradesPerDay:    0,
	}
}

// ExecutionConfig models fill quality: a static fee rate and slippage
// constant applied to every fill.
type ExecutionConfig struct {
	FeeRate  float64 // e.g. 0.001 = 0.1% per fill
	Slippage float64 // e.g. 0.0005 = 0.05% adverse move per fill
}

// Predefined execution configurations.
var (
	ExecutionConfigIdeal = ExecutionConfig{
		FeeRate:  0,
		Slippage: 0,
	}

	ExecutionConfigRealistic = ExecutionConfig{
		FeeRate:  0.001,
		Slippage: 0.0005,
	}

	ExecutionConfigPessimistic = ExecutionConfig{
		FeeRate:  0.002,
		Slippage: 0.002,
	}
)
