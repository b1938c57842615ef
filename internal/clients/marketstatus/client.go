// Package marketstatus keeps a live cache of exchange status from the broker's
// websocket feed.
package marketstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/pkg/logger"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	defaultReconnectDelay    = 5 * time.Second
	defaultMaxReconnectDelay = 5 * time.Minute
	defaultStaleAfter        = 5 * time.Minute

	marketsChannel = "markets"
)

// ErrStale is returned when the cache was never filled or is older than the
// staleness threshold.
var ErrStale = errors.New("market status cache is stale")

// Config configures the feed client.
type Config struct {
	URL               string
	StaleAfter        time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Clock             clockwork.Clock
}

// Status is the cached state of one exchange.
type Status struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	OpenTime  string    `json:"open_time"`
	CloseTime string    `json:"close_time"`
	Date      string    `json:"date"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Open reports whether the exchange is trading.
func (s Status) Open() bool {
	return strings.EqualFold(s.Status, "open")
}

// wsMarketData is the payload of a ["markets", {...}] frame.
type wsMarketData struct {
	Timestamp string     `json:"t"`
	Markets   []wsMarket `json:"m"`
}

type wsMarket struct {
	Name      string `json:"n"`
	Code      string `json:"n2"`
	Status    string `json:"s"`
	OpenTime  string `json:"o"`
	CloseTime string `json:"c"`
	Date      string `json:"dt"`
}

// Client handles real-time market status updates. It is a market.Source.
type Client struct {
	cfg   Config
	clock clockwork.Clock
	bus   *events.Bus
	log   zerolog.Logger

	mu         sync.RWMutex
	connected  bool
	cache      map[string]Status
	lastUpdate time.Time
	openCount  int
}

// New creates a feed client. bus may be nil.
func New(cfg Config, bus *events.Bus, log zerolog.Logger) *Client {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Client{
		cfg:       cfg,
		clock:     clock,
		bus:       bus,
		log:       logger.Component(log, "market_status_websocket"),
		cache:     make(map[string]Status),
		openCount: -1,
	}
}

// Name implements market.Source.
func (c *Client) Name() string {
	return "websocket"
}

// Run connects, subscribes and reads until ctx is cancelled, reconnecting with
// exponential backoff. It only returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	c.log.Info().Str("url", c.cfg.URL).Msg("Starting market status WebSocket client")

	attempt := 0
	for {
		err := c.session(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			c.log.Info().Msg("Market status WebSocket client stopped")
			return ctx.Err()
		}

		attempt++
		delay := c.backoff(attempt)
		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Market status connection lost, reconnecting")

		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session runs one connection until it fails. onSubscribed fires once the
// subscription is sent.
func (c *Client) session(ctx context.Context, onSubscribed func()) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := c.subscribe(ctx, conn); err != nil {
		return fmt.Errorf("failed to subscribe to markets: %w", err)
	}
	onSubscribed()
	c.setConnected(true)
	defer c.setConnected(false)

	for {
		msgType, message, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := c.handleMessage(message); err != nil {
			c.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle WebSocket message")
		}
	}
}

func (c *Client) subscribe(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal([]string{marketsChannel})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (c *Client) handleMessage(message []byte) error {
	// ["event", data]
	var raw []json.RawMessage
	if err := json.Unmarshal(message, &raw); err != nil {
		return fmt.Errorf("failed to parse message array: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("message array too short: expected 2 elements, got %d", len(raw))
	}

	var channel string
	if err := json.Unmarshal(raw[0], &channel); err != nil {
		return fmt.Errorf("failed to parse channel: %w", err)
	}
	if channel != marketsChannel {
		return nil
	}

	var data wsMarketData
	if err := json.Unmarshal(raw[1], &data); err != nil {
		return fmt.Errorf("failed to parse market data: %w", err)
	}
	c.update(data)
	return nil
}

func (c *Client) update(data wsMarketData) {
	if len(data.Markets) == 0 {
		c.log.Warn().Msg("Received empty markets update")
		return
	}

	now := c.clock.Now()

	c.mu.Lock()
	for _, m := range data.Markets {
		code := m.Code
		if code == "" {
			code = m.Name
		}
		c.cache[code] = Status{
			Code:      code,
			Name:      m.Name,
			Status:    m.Status,
			OpenTime:  m.OpenTime,
			CloseTime: m.CloseTime,
			Date:      m.Date,
			UpdatedAt: now,
		}
	}
	c.lastUpdate = now

	open := 0
	for _, s := range c.cache {
		if s.Open() {
			open++
		}
	}
	changed := open != c.openCount
	c.openCount = open
	total := len(c.cache)
	c.mu.Unlock()

	c.log.Debug().Int("market_count", len(data.Markets)).Int("open_count", open).Msg("Market status cache updated")

	if changed && c.bus != nil {
		c.bus.Emit(events.MarketsStatusChanged, "marketstatus", map[string]interface{}{
			"open_count":   open,
			"closed_count": total - open,
			"markets":      c.OpenCodes(),
			"last_updated": now.Format(time.RFC3339),
		})
	}
}

// AnyMarketOpen implements market.Source.
func (c *Client) AnyMarketOpen(now time.Time) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastUpdate.IsZero() || now.Sub(c.lastUpdate) > c.cfg.StaleAfter {
		return false, ErrStale
	}
	return c.openCount > 0, nil
}

// Statuses returns a copy of the cache.
func (c *Client) Statuses() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]Status, len(c.cache))
	for k, v := range c.cache {
		result[k] = v
	}
	return result
}

// OpenCodes returns the codes of open exchanges, sorted.
func (c *Client) OpenCodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	codes := make([]string, 0, len(c.cache))
	for code, s := range c.cache {
		if s.Open() {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// backoff is ReconnectDelay * 2^(attempt-1), capped at MaxReconnectDelay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.cfg.ReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.cfg.MaxReconnectDelay) {
		delay = float64(c.cfg.MaxReconnectDelay)
	}
	return time.Duration(delay)
}
