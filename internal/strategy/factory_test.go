package strategy

import (
	"errors"
	"testing"

	"candle-trade-lab/internal/domain"
)

func TestFromConfig_Trend(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypeTrend,
		FastEMA:      ptrInt(20),
		SlowEMA:      ptrInt(50),
		HigherTFEMA:  ptrInt(200),
		ATRStopMult:  ptrFloat(1.5),
	}

	s, err := FromConfig(cfg, domain.PeriodMs1h)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	tr, ok := s.(*TrendStrategy)
	if !ok {
		t.Fatalf("expected *TrendStrategy, got %T", s)
	}
	if tr.FastEMA != 20 || tr.SlowEMA != 50 || tr.HigherTFEMA != 200 {
		t.Errorf("EMA periods not applied: %+v", tr)
	}
	if tr.StopMult != 1.5 {
		t.Errorf("expected stop mult 1.5, got %.2f", tr.StopMult)
	}
	if tr.ATRPeriod != defaultATRPeriod {
		t.Errorf("expected default ATR period %d, got %d", defaultATRPeriod, tr.ATRPeriod)
	}
	if tr.TakeMult != nil {
		t.Error("omitted take multiple should stay nil (runner)")
	}
}

func TestFromConfig_Crossover(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypeCrossover,
		FastSMA:      ptrInt(10),
		SlowSMA:      ptrInt(30),
		ADXPeriod:    ptrInt(14),
		MinADX:       ptrFloat(25),
		MaxPositions: ptrInt(2),
	}

	s, err := FromConfig(cfg, domain.PeriodMs1h)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	co, ok := s.(*CrossoverStrategy)
	if !ok {
		t.Fatalf("expected *CrossoverStrategy, got %T", s)
	}
	if co.FastSMA != 10 || co.SlowSMA != 30 || co.ADXPeriod != 14 {
		t.Errorf("periods not applied: %+v", co)
	}
	if co.MinADX != 25 {
		t.Errorf("expected MinADX 25, got %.1f", co.MinADX)
	}
	if co.MaxPos != 2 {
		t.Errorf("expected max positions 2, got %d", co.MaxPos)
	}
}

func TestFromConfig_Scored(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType:   domain.StrategyTypeScored,
		ScoreThreshold: ptrFloat(0.6),
	}

	s, err := FromConfig(cfg, domain.PeriodMs1h)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	sc, ok := s.(*ScoredStrategy)
	if !ok {
		t.Fatalf("expected *ScoredStrategy, got %T", s)
	}
	if sc.Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %.2f", sc.Threshold)
	}
}

func TestFromConfig_DCA(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType:  domain.StrategyTypeDCA,
		MaxEntries:    ptrInt(4),
		LevelDropPct:  ptrFloat(0.03),
		TakeProfitPct: ptrFloat(0.02),
	}

	s, err := FromConfig(cfg, domain.PeriodMs1h)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	d, ok := s.(*DCAStrategy)
	if !ok {
		t.Fatalf("expected *DCAStrategy, got %T", s)
	}
	if d.MaxEntries != 4 || d.LevelDropPct != 0.03 || d.TakeProfitPct != 0.02 {
		t.Errorf("cycle parameters not applied: %+v", d)
	}
	if d.RSIPeriod != defaultRSIPeriod {
		t.Errorf("expected default RSI period %d, got %d", defaultRSIPeriod, d.RSIPeriod)
	}
}

func TestFromConfig_Breakout(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyType: domain.StrategyTypeBreakout,
		LookbackBars: ptrInt(20),
		VolumeMult:   ptrFloat(2.0),
	}

	s, err := FromConfig(cfg, domain.PeriodMs5m)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	b, ok := s.(*BreakoutStrategy)
	if !ok {
		t.Fatalf("expected *BreakoutStrategy, got %T", s)
	}
	if b.LookbackBars != 20 || b.VolumeMult != 2.0 {
		t.Errorf("breakout parameters not applied: %+v", b)
	}
	if b.CooldownCandles != defaultCooldown {
		t.Errorf("expected default cooldown %d, got %d", defaultCooldown, b.CooldownCandles)
	}
}

func TestFromConfig_MissingParams(t *testing.T) {
	tests := []struct {
		name        string
		cfg         domain.StrategyConfig
		expectedErr error
	}{
		{
			name: "TREND missing FastEMA",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeTrend,
			},
			expectedErr: ErrMissingFastEMA,
		},
		{
			name: "TREND missing SlowEMA",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeTrend,
				FastEMA:      ptrInt(20),
			},
			expectedErr: ErrMissingSlowEMA,
		},
		{
			name: "TREND missing HigherTFEMA",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeTrend,
				FastEMA:      ptrInt(20),
				SlowEMA:      ptrInt(50),
			},
			expectedErr: ErrMissingHigherTFEMA,
		},
		{
			name: "CROSSOVER missing FastSMA",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeCrossover,
			},
			expectedErr: ErrMissingFastSMA,
		},
		{
			name: "CROSSOVER missing MinADX",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeCrossover,
				FastSMA:      ptrInt(10),
				SlowSMA:      ptrInt(30),
				ADXPeriod:    ptrInt(14),
			},
			expectedErr: ErrMissingMinADX,
		},
		{
			name: "SCORED missing ScoreThreshold",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeScored,
			},
			expectedErr: ErrMissingScoreThresh,
		},
		{
			name: "DCA missing MaxEntries",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeDCA,
			},
			expectedErr: ErrMissingMaxEntries,
		},
		{
			name: "DCA missing TakeProfitPct",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeDCA,
				MaxEntries:   ptrInt(4),
				LevelDropPct: ptrFloat(0.03),
			},
			expectedErr: ErrMissingTakeProfitPct,
		},
		{
			name: "BREAKOUT missing LookbackBars",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeBreakout,
			},
			expectedErr: ErrMissingLookbackBars,
		},
		{
			name: "BREAKOUT missing VolumeMult",
			cfg: domain.StrategyConfig{
				StrategyType: domain.StrategyTypeBreakout,
				LookbackBars: ptrInt(20),
			},
			expectedErr: ErrMissingVolumeMult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(tt.cfg, domain.PeriodMs1h)
			if !errors.Is(err, tt.expectedErr) {
				t.Errorf("expected %v, got %v", tt.expectedErr, err)
			}
		})
	}
}

func TestFromConfig_UnknownType(t *testing.T) {
	cfg := domain.StrategyConfig{StrategyType: "UNKNOWN"}

	_, err := FromConfig(cfg, domain.PeriodMs1h)
	if !errors.Is(err, ErrUnknownStrategyType) {
		t.Errorf("expected ErrUnknownStrategyType, got %v", err)
	}
}

// Helper functions
func ptrFloat(f float64) *float64 {
	return &f
}

func ptrInt(i int) *int {
	return &i
}
