package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"candle-trade-lab/internal/domain"
)

// DefaultStreamURL is the Binance spot market stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443"

// StreamConfig configures WebSocket stream behavior.
type StreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing control frames.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// KlineEvent is one kline update. Closed is true once the bucket has
// finished; only closed events are safe for indicator input.
type KlineEvent struct {
	Symbol string
	Candle domain.Candle
	Closed bool
}

// KlineStream subscribes to one symbol's kline stream and survives
// connection drops with exponential backoff reconnects.
type KlineStream struct {
	endpoint string
	config   StreamConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan KlineEvent

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
	reconnects   atomic.Int64
}

// NewKlineStream connects to the kline stream for one symbol/timeframe.
// baseURL empty means the production endpoint.
func NewKlineStream(ctx context.Context, baseURL, symbol string, periodMs int64, config *StreamConfig) (*KlineStream, error) {
	interval, err := intervalFromPeriod(periodMs)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}

	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &KlineStream{
		endpoint: fmt.Sprintf("%s/ws/%s@kline_%s", baseURL, strings.ToLower(symbol), interval),
		config:   cfg,
		events:   make(chan KlineEvent, 1024),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Events returns the kline event channel. Closed when the stream closes.
func (s *KlineStream) Events() <-chan KlineEvent {
	return s.events
}

// connect establishes the WebSocket connection.
func (s *KlineStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// Close closes the stream and the event channel.
func (s *KlineStream) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

// readLoop reads messages and dispatches kline events, reconnecting on
// failure with exponential backoff.
func (s *KlineStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect re-dials after the given delay.
func (s *KlineStream) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// readLoop notices the nil conn and schedules another attempt.
		return
	}
	s.reconnects.Add(1)
}

// Reconnects reports how many times the stream has re-dialed after a
// dropped connection.
func (s *KlineStream) Reconnects() int64 {
	return s.reconnects.Load()
}

// pingLoop keeps the connection alive.
func (s *KlineStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

// klineMessage is the wire shape of a kline event.
type klineMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Final    bool   `json:"x"`
	} `json:"k"`
}

// handleMessage parses a kline payload and forwards the event.
// Malformed frames are dropped; the stream itself must survive them.
func (s *KlineStream) handleMessage(message []byte) {
	var msg klineMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.EventType != "kline" {
		return
	}

	open, err1 := strconv.ParseFloat(msg.Kline.Open, 64)
	high, err2 := strconv.ParseFloat(msg.Kline.High, 64)
	low, err3 := strconv.ParseFloat(msg.Kline.Low, 64)
	cl, err4 := strconv.ParseFloat(msg.Kline.Close, 64)
	vol, err5 := strconv.ParseFloat(msg.Kline.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return
	}

	event := KlineEvent{
		Symbol: msg.Symbol,
		Candle: domain.Candle{
			TimestampMs: msg.Kline.OpenTime,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       cl,
			Volume:      vol,
		},
		Closed: msg.Kline.Final,
	}

	// Drop on backpressure rather than block the read loop.
	select {
	case s.events <- event:
	default:
	}
}
