// Package exits advances protective state on open trades and resolves
// exit conditions in a fixed, conservative-first order.
package exits

import (
	"math"

	"candle-trade-lab/internal/domain"
)

// Instruction tells the ledger how to close (or partially close) a
// trade. Nil from Check means "no exit this cycle."
type Instruction struct {
	ExitPrice float64
	Reason    string

	// Partial close: PartialQuantity closes at ExitPrice, the remainder
	// stays open with a tightened trail.
	Partial         bool
	PartialQuantity float64
}

// Advisor is the optional strategy-specific exit rule, consulted after
// the hard checks. Satisfied by strategies that implement an
// opposite-signal or cycle exit.
type Advisor interface {
	ShouldExit(trade *domain.Trade, series []domain.Candle) (bool, string)
}

// Config parameterizes the trailing update and the time exit.
type Config struct {
	PartialFraction float64 // fraction of quantity closed at TakeProfit1
	BreakevenR      float64 // move stop to entry at this R-multiple, 0 = off
	TrailPct        float64 // trail distance as fraction of the extremum, 0 = off
	TrailATRMult    float64 // ATR trail distance, takes precedence over TrailPct when > 0
	MaxAgeCandles   int     // close stale positions after this many candles, 0 = off
	MinRForAge      float64 // the age exit only fires below this R-multiple
}

// DefaultConfig returns the baseline exit parameters.
func DefaultConfig() Config {
	return Config{
		PartialFraction: 0.5,
		BreakevenR:      1.0,
		TrailPct:        0.02,
		TrailATRMult:    0,
		MaxAgeCandles:   0,
		MinRForAge:      0.5,
	}
}

// Machine holds the exit configuration for one run. Stateless across
// trades; all per-trade state lives on the Trade itself.
type Machine struct {
	cfg Config
}

// NewMachine creates a Machine.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// UpdateTrailing advances the trade's trailing state from the PREVIOUS
// closed candle. It runs once per cycle before any exit check so the
// still-forming candle never feeds the stop. The stop only tightens:
// max(current, candidate) for longs, min for shorts.
func (m *Machine) UpdateTrailing(t *domain.Trade, prev domain.Candle, atr float64) {
	t.CandleCount++

	if prev.High > t.HighestPrice {
		t.HighestPrice = prev.High
	}
	if t.LowestPrice == 0 || prev.Low < t.LowestPrice {
		t.LowestPrice = prev.Low
	}

	if t.Side == domain.SideLong {
		cand := t.StopLoss
		if m.cfg.BreakevenR > 0 && t.RMultiple(prev.Close) >= m.cfg.BreakevenR && t.EntryPrice > cand {
			cand = t.EntryPrice
		}
		if trail, ok := m.trailLevelLong(t.HighestPrice, atr); ok && trail > cand {
			cand = trail
		}
		if cand > t.StopLoss {
			t.StopLoss = cand
		}
		return
	}

	cand := t.StopLoss
	if m.cfg.BreakevenR > 0 && t.RMultiple(prev.Close) >= m.cfg.BreakevenR && t.EntryPrice < cand {
		cand = t.EntryPrice
	}
	if trail, ok := m.trailLevelShort(t.LowestPrice, atr); ok && trail < cand {
		cand = trail
	}
	if cand < t.StopLoss {
		t.StopLoss = cand
	}
}

func (m *Machine) trailLevelLong(highest, atr float64) (float64, bool) {
	if m.cfg.TrailATRMult > 0 && atr > 0 && !math.IsNaN(atr) {
		return highest - atr*m.cfg.TrailATRMult, true
	}
	if m.cfg.TrailPct > 0 {
		return highest * (1 - m.cfg.TrailPct), true
	}
	return 0, false
}

func (m *Machine) trailLevelShort(lowest, atr float64) (float64, bool) {
	if m.cfg.TrailATRMult > 0 && atr > 0 && !math.IsNaN(atr) {
		return lowest + atr*m.cfg.TrailATRMult, true
	}
	if m.cfg.TrailPct > 0 {
		return lowest * (1 + m.cfg.TrailPct), true
	}
	return 0, false
}

// Check resolves exit conditions against the CURRENT candle. The checks
// run in a fixed order and short-circuit on the first match:
//
//	1. hard stop (worst intra-candle fill assumed)
//	2. partial take-profit
//	3. final take-profit
//	4. strategy advisor (opposite signal, cycle exit)
//	5. time exit
func (m *Machine) Check(t *domain.Trade, candle domain.Candle, series []domain.Candle, advisor Advisor) *Instruction {
	for _, check := range []func(*domain.Trade, domain.Candle, []domain.Candle, Advisor) *Instruction{
		m.checkHardStop,
		m.checkPartialTakeProfit,
		m.checkTakeProfit,
		m.checkAdvisor,
		m.checkTimeExit,
	} {
		if ins := check(t, candle, series, advisor); ins != nil {
			return ins
		}
	}
	return nil
}

func (m *Machine) checkHardStop(t *domain.Trade, c domain.Candle, _ []domain.Candle, _ Advisor) *Instruction {
	crossed := (t.Side == domain.SideLong && c.Low <= t.StopLoss) ||
		(t.Side == domain.SideShort && c.High >= t.StopLoss)
	if !crossed {
		return nil
	}
	reason := domain.ExitReasonStopLoss
	if t.StopLoss != t.InitialStopLoss {
		reason = domain.ExitReasonTrailingStop
	}
	return &Instruction{ExitPrice: t.StopLoss, Reason: reason}
}

func (m *Machine) checkPartialTakeProfit(t *domain.Trade, c domain.Candle, _ []domain.Candle, _ Advisor) *Instruction {
	if t.TakeProfit1 == nil || t.PartialCloseDone || m.cfg.PartialFraction <= 0 {
		return nil
	}
	tp1 := *t.TakeProfit1
	hit := (t.Side == domain.SideLong && c.High >= tp1) ||
		(t.Side == domain.SideShort && c.Low <= tp1)
	if !hit {
		return nil
	}
	return &Instruction{
		ExitPrice:       tp1,
		Reason:          domain.ExitReasonPartialTP,
		Partial:         true,
		PartialQuantity: t.Quantity * m.cfg.PartialFraction,
	}
}

func (m *Machine) checkTakeProfit(t *domain.Trade, c domain.Candle, _ []domain.Candle, _ Advisor) *Instruction {
	if t.TakeProfit == nil {
		return nil
	}
	tp := *t.TakeProfit
	hit := (t.Side == domain.SideLong && c.High >= tp) ||
		(t.Side == domain.SideShort && c.Low <= tp)
	if !hit {
		return nil
	}
	return &Instruction{ExitPrice: tp, Reason: domain.ExitReasonTakeProfit}
}

func (m *Machine) checkAdvisor(t *domain.Trade, c domain.Candle, series []domain.Candle, advisor Advisor) *Instruction {
	if advisor == nil {
		return nil
	}
	exit, reason := advisor.ShouldExit(t, series)
	if !exit {
		return nil
	}
	if reason == "" {
		reason = domain.ExitReasonOppositeSignal
	}
	return &Instruction{ExitPrice: c.Close, Reason: reason}
}

func (m *Machine) checkTimeExit(t *domain.Trade, c domain.Candle, _ []domain.Candle, _ Advisor) *Instruction {
	if m.cfg.MaxAgeCandles <= 0 || t.CandleCount < m.cfg.MaxAgeCandles {
		return nil
	}
	if t.RMultiple(c.Close) >= m.cfg.MinRForAge {
		return nil
	}
	return &Instruction{ExitPrice: c.Close, Reason: domain.ExitReasonTimeExit}
}
