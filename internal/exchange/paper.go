package exchange

import (
	"context"
	"fmt"
	"sync"

	"candle-trade-lab/internal/domain"
)

// PaperExchange simulates an exchange from pre-loaded candle series.
// Fills happen exactly at the requested price adjusted by a static
// slippage constant; no order book, no latency. Orders only mutate the
// in-memory balance, so a paper session is fully self-contained.
type PaperExchange struct {
	mu      sync.Mutex
	series  map[string]map[int64][]domain.Candle // symbol -> periodMs -> candles
	cursor  map[string]int                       // symbol -> index of the current candle
	balance float64
	orderID int
}

// NewPaperExchange creates a paper exchange with an initial quote balance.
func NewPaperExchange(initialBalance float64) *PaperExchange {
	return &PaperExchange{
		series:  make(map[string]map[int64][]domain.Candle),
		cursor:  make(map[string]int),
		balance: initialBalance,
	}
}

// Verify interface compliance at compile time.
var _ Exchange = (*PaperExchange)(nil)

// LoadSeries registers a candle series for a symbol and timeframe.
func (p *PaperExchange) LoadSeries(symbol string, periodMs int64, candles []domain.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.series[symbol] == nil {
		p.series[symbol] = make(map[int64][]domain.Candle)
	}
	p.series[symbol][periodMs] = candles
}

// Advance moves the symbol's clock forward one candle. The paper
// scheduler calls this once per tick to simulate time passing.
func (p *PaperExchange) Advance(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor[symbol]++
}

// FetchOHLCV returns candles visible at the symbol's current clock.
func (p *PaperExchange) FetchOHLCV(_ context.Context, symbol string, periodMs int64, sinceMs int64, limit int) ([]domain.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all, ok := p.series[symbol][periodMs]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%d", ErrUnknownSymbol, symbol, periodMs)
	}

	end := p.cursor[symbol] + 1
	if end > len(all) {
		end = len(all)
	}

	visible := all[:end]
	start := 0
	for start < len(visible) && visible[start].TimestampMs < sinceMs {
		start++
	}
	visible = visible[start:]

	if limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}

	out := make([]domain.Candle, len(visible))
	copy(out, visible)
	return out, nil
}

// FetchTicker returns the close of the symbol's current candle on the
// finest loaded timeframe. The cursor counts trading-timeframe candles,
// so the smallest period is the one the cursor indexes into.
func (p *PaperExchange) FetchTicker(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candles []domain.Candle
	var finest int64
	for periodMs, s := range p.series[symbol] {
		if len(s) == 0 {
			continue
		}
		if candles == nil || periodMs < finest {
			candles, finest = s, periodMs
		}
	}
	if candles == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	i := p.cursor[symbol]
	if i >= len(candles) {
		i = len(candles) - 1
	}
	return candles[i].Close, nil
}

// PlaceOrder accepts any well-formed order; the ledger does the actual
// capital accounting, so the paper exchange only validates and numbers.
func (p *PaperExchange) PlaceOrder(_ context.Context, order Order) (string, error) {
	if order.Symbol == "" || order.Quantity <= 0 {
		return "", ErrInvalidOrder
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderID++
	return fmt.Sprintf("paper-%d", p.orderID), nil
}

// PlaceTrailingStop accepts the order; paper mode trails in-process via
// the exit machine, so this is bookkeeping only.
func (p *PaperExchange) PlaceTrailingStop(_ context.Context, order TrailingStopOrder) (string, error) {
	if order.Symbol == "" || order.Quantity <= 0 || order.CallbackPct <= 0 {
		return "", ErrInvalidOrder
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderID++
	return fmt.Sprintf("paper-ts-%d", p.orderID), nil
}

// AvailableBalance returns the simulated free balance.
func (p *PaperExchange) AvailableBalance(_ context.Context, _ string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// SetBalance overrides the simulated balance, used by the paper
// scheduler to mirror the ledger.
func (p *PaperExchange) SetBalance(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = v
}
