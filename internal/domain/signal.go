package domain

// Action is the decision a strategy returns for one candle.
type Action string

// Action constants.
const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Hold reason codes. Diagnostics.Reason is mandatory whenever a strategy
// returns HOLD.
const (
	ReasonInsufficientCandles = "INSUFFICIENT_CANDLES"
	ReasonIndicatorNaN        = "INDICATOR_NAN"
	ReasonADXTooLow           = "ADX_TOO_LOW"
	ReasonNoSetup             = "NO_SETUP"
	ReasonScoreBelowThreshold = "SCORE_BELOW_THRESHOLD"
	ReasonMaxPositions        = "MAX_POSITIONS"
	ReasonCooldownActive      = "COOLDOWN_ACTIVE"
	ReasonDrawdownGate        = "DRAWDOWN_GATE"
	ReasonCycleComplete       = "CYCLE_COMPLETE"
)

// Diagnostics carries the strategy's reasoning for one evaluation.
// Values holds named indicator readings for operator visibility; Scores
// holds per-condition contributions for scored strategies.
type Diagnostics struct {
	Reason string
	Values map[string]float64
	Scores map[string]float64
}

// Signal is the output of one strategy evaluation for one candle index.
// Produced fresh each cycle and consumed by the orchestrator in the same
// cycle; never persisted.
//
// On BUY/SELL, StopLoss must be strictly on the losing side of Price.
// TakeProfit nil means "runner": exit via trailing logic only.
// TakeProfit1 set means a partial close is armed at that level.
type Signal struct {
	Action      Action
	Price       float64
	TimestampMs int64
	StopLoss    *float64
	TakeProfit  *float64
	TakeProfit1 *float64
	ATR         *float64
	SizingHint  *float64 // fraction of the configured risk, (0, 1]
	Diagnostics Diagnostics
}

// Hold builds a HOLD signal carrying a mandatory reason code.
func Hold(ts int64, price float64, reason string) *Signal {
	return &Signal{
		Action:      ActionHold,
		Price:       price,
		TimestampMs: ts,
		Diagnostics: Diagnostics{Reason: reason},
	}
}

// Actionable reports whether the signal requests opening a position.
func (s *Signal) Actionable() bool {
	return s != nil && (s.Action == ActionBuy || s.Action == ActionSell)
}

// Float64Ptr returns a pointer to v. Helper for optional signal fields.
func Float64Ptr(v float64) *float64 { return &v }
