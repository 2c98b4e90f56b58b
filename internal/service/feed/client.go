// Package feed implements a MarketStream backed by a trade WebSocket feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"CandleFlow/internal/domain/models"
	drepo "CandleFlow/internal/domain/repository"

	"github.com/gorilla/websocket"
)

type Option func(*Client)

// WithAPIKey attaches an auth token to the connection URL.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithReconnectDelay sets the pause between Close and redial in Reconnect.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithPingInterval sets how often the client pings the server.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

type Client struct {
	url            string
	apiKey         string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a WebSocket MarketStream for the given endpoint and symbols.
func New(wsURL string, symbols []string, opts ...Option) drepo.MarketStream {
	c := &Client{
		url:            wsURL,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) dialURL() string {
	if c.apiKey == "" {
		return c.url
	}
	q := url.Values{}
	q.Set("token", c.apiKey)
	return c.url + "?" + q.Encode()
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Printf("feed: connected")
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe subscribes to the configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("feed not connected")
	}
	for _, s := range c.symbols {
		if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Symbol: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		log.Printf("feed: subscribed %s", s)
	}
	return nil
}

type tradeFrame struct {
	Type string `json:"type"`
	Data []struct {
		S string  `json:"s"`
		P float64 `json:"p"`
		V float64 `json:"v"`
		T int64   `json:"t"` // ms
	} `json:"data"`
}

// parseFrame decodes one wire frame into ticks. Non-trade frames and
// malformed payloads yield nil.
func parseFrame(b []byte) []*models.RawTick {
	var f tradeFrame
	if err := json.Unmarshal(b, &f); err != nil || f.Type != "trade" {
		return nil
	}
	out := make([]*models.RawTick, 0, len(f.Data))
	for _, d := range f.Data {
		out = append(out, &models.RawTick{
			Symbol:    d.S,
			Timestamp: d.T, // ms, normalizer converts
			Price:     strconv.FormatFloat(d.P, 'f', -1, 64),
			Volume:    strconv.FormatFloat(d.V, 'f', -1, 64),
		})
	}
	return out
}

// Read streams raw tick events and errors until ctx ends or the socket
// fails. The error channel receives at most one error.
func (c *Client) Read(ctx context.Context) (<-chan *models.RawTick, <-chan error) {
	ticks := make(chan *models.RawTick, 1024)
	errs := make(chan error, 1)
	go c.pingPump(ctx)
	go c.readPump(ctx, ticks, errs)
	return ticks, errs
}

func (c *Client) pingPump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn := c.current(); conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, ticks chan<- *models.RawTick, errs chan<- error) {
	defer close(ticks)
	defer close(errs)
	for ctx.Err() == nil {
		conn := c.current()
		if conn == nil {
			errs <- fmt.Errorf("feed conn nil")
			return
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				errs <- fmt.Errorf("feed read: %w", err)
			}
			return
		}
		for _, t := range parseFrame(b) {
			select {
			case ticks <- t:
			default:
				// drop on backpressure
			}
		}
	}
}

// Reconnect closes the socket, waits, then redials and resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.current() != nil }
