// Package binance implements the exchange collaborator against the
// Binance spot REST and WebSocket APIs.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"candle-trade-lab/internal/domain"
	"candle-trade-lab/internal/exchange"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.binance.com"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client implements exchange.Exchange over the Binance spot REST API.
type Client struct {
	baseURL     string
	client      *http.Client
	apiKey      string
	apiSecret   string
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	now         func() time.Time
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL (testnet, mock server).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithCredentials sets the API key pair required for signed endpoints
// (orders, balance). Market data endpoints work without credentials.
func WithCredentials(key, secret string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
		c.apiSecret = secret
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a Binance REST client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify interface compliance at compile time.
var _ exchange.Exchange = (*Client)(nil)

// intervalFromPeriod maps a period length to Binance's interval token.
func intervalFromPeriod(periodMs int64) (string, error) {
	switch periodMs {
	case domain.PeriodMs1m:
		return "1m", nil
	case domain.PeriodMs5m:
		return "5m", nil
	case domain.PeriodMs15m:
		return "15m", nil
	case domain.PeriodMs1h:
		return "1h", nil
	case domain.PeriodMs4h:
		return "4h", nil
	case domain.PeriodMs1d:
		return "1d", nil
	}
	return "", fmt.Errorf("unsupported period: %dms", periodMs)
}

// FetchOHLCV returns up to limit candles from sinceMs onward. The last
// candle may still be forming; callers clip it per the no-lookahead rule.
func (c *Client) FetchOHLCV(ctx context.Context, symbol string, periodMs int64, sinceMs int64, limit int) ([]domain.Candle, error) {
	interval, err := intervalFromPeriod(periodMs)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if sinceMs > 0 {
		params.Set("startTime", strconv.FormatInt(sinceMs, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v3/klines", params, false)
	if err != nil {
		return nil, err
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline decodes one kline row:
// [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(k []json.RawMessage) (domain.Candle, error) {
	if len(k) < 6 {
		return domain.Candle{}, fmt.Errorf("kline row too short: %d fields", len(k))
	}

	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return domain.Candle{}, fmt.Errorf("parse kline open time: %w", err)
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(k[i], &s); err != nil {
			return domain.Candle{}, fmt.Errorf("parse kline field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parse kline field %d: %w", i, err)
		}
		vals[i-1] = v
	}

	return domain.Candle{
		TimestampMs: openTime,
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
	}, nil
}

// FetchTicker returns the last traded price for a symbol.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", params, false)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("unmarshal ticker: %w", err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price: %w", err)
	}
	return price, nil
}

// PlaceOrder submits a market order.
func (c *Client) PlaceOrder(ctx context.Context, order exchange.Order) (string, error) {
	if order.Symbol == "" || order.Quantity <= 0 {
		return "", exchange.ErrInvalidOrder
	}

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))

	body, err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return "", err
	}
	return parseOrderID(body)
}

// PlaceTrailingStop arms a trailing stop-loss via the spot trailingDelta
// parameter, expressed in basis points.
func (c *Client) PlaceTrailingStop(ctx context.Context, order exchange.TrailingStopOrder) (string, error) {
	if order.Symbol == "" || order.Quantity <= 0 || order.CallbackPct <= 0 {
		return "", exchange.ErrInvalidOrder
	}

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "STOP_LOSS")
	params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
	params.Set("trailingDelta", strconv.Itoa(int(order.CallbackPct*10_000)))
	if order.ActivationPx > 0 {
		params.Set("stopPrice", strconv.FormatFloat(order.ActivationPx, 'f', -1, 64))
	}

	body, err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return "", err
	}
	return parseOrderID(body)
}

func parseOrderID(body []byte) (string, error) {
	var resp struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal order response: %w", err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// AvailableBalance returns the free balance of a currency.
func (c *Client) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("unmarshal account: %w", err)
	}

	for _, b := range resp.Balances {
		if b.Asset == currency {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("parse balance: %w", err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// do performs a request with retries and exponential backoff. Signed
// requests get a timestamp and an HMAC-SHA256 signature over the query.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if signed {
		if c.apiKey == "" || c.apiSecret == "" {
			return nil, fmt.Errorf("signed endpoint %s requires credentials", path)
		}
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("signature", c.sign(params.Encode()))
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Rate limiting and transient server errors are retried.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			// Client errors (bad symbol, insufficient funds) are final.
			return nil, fmt.Errorf("binance %s: status %d: %s", path, resp.StatusCode, string(body))
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// sign computes the HMAC-SHA256 signature over the encoded query.
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
