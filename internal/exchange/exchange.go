// Package exchange defines the collaborator boundary the paper and live
// schedulers trade through. The engine depends only on these signatures;
// wire formats belong to the implementations.
package exchange

import (
	"context"
	"errors"

	"candle-trade-lab/internal/domain"
)

// Common exchange errors.
var (
	ErrUnknownSymbol     = errors.New("exchange: unknown symbol")
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")
	ErrInvalidOrder      = errors.New("exchange: invalid order")
)

// OrderSide of an order.
type OrderSide string

// Order sides.
const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// Order is a market order request.
type Order struct {
	Symbol   string
	Side     OrderSide
	Quantity float64
}

// TrailingStopOrder arms an exchange-side trailing stop for an open
// position.
type TrailingStopOrder struct {
	Symbol       string
	Side         OrderSide // side of the CLOSING order
	Quantity     float64
	ActivationPx float64
	CallbackPct  float64 // trail distance as a fraction, e.g. 0.02
}

// Exchange is the collaborator interface consumed by paper and live
// modes. Implementations do their own retries; callers treat every call
// as fail-fast and survive the tick.
type Exchange interface {
	// FetchOHLCV returns up to limit closed candles from sinceMs onward,
	// ordered ascending. The freshest, possibly still-forming candle may
	// be included last; callers apply their own no-lookahead clipping.
	FetchOHLCV(ctx context.Context, symbol string, periodMs int64, sinceMs int64, limit int) ([]domain.Candle, error)

	// FetchTicker returns the current price for a symbol.
	FetchTicker(ctx context.Context, symbol string) (float64, error)

	// PlaceOrder submits a market order and returns the exchange order id.
	PlaceOrder(ctx context.Context, order Order) (string, error)

	// PlaceTrailingStop arms a trailing stop order and returns its id.
	PlaceTrailingStop(ctx context.Context, order TrailingStopOrder) (string, error)

	// AvailableBalance returns the free balance of a currency.
	AvailableBalance(ctx context.Context, currency string) (float64, error)
}
