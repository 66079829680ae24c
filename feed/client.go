package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kaifufi/nftspace-settlement-go/events"
)

// WSEventHandler is a callback function for handling feed events
type WSEventHandler func(evt events.Event)

// WSMessageHandler is a callback function for handling raw WebSocket messages
type WSMessageHandler func(messageType int, data []byte)

// WSErrorHandler is a callback function for handling WebSocket errors
type WSErrorHandler func(err error)

// ClientConfig holds configuration for the feed client
type ClientConfig struct {
	// Endpoint is the ws:// or wss:// URL of a Hub.
	Endpoint             string
	HeartbeatInterval    time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	OnEvent              WSEventHandler
	OnMessage            WSMessageHandler
	OnError              WSErrorHandler
	OnConnect            func()
	OnDisconnect         func()
}

// Client subscribes to a settlement feed and reconnects when the
// connection drops, restoring its subscriptions.
type Client struct {
	config          ClientConfig
	conn            *websocket.Conn
	mu              sync.RWMutex
	writeMu         sync.Mutex
	isConnected     bool
	closed          bool
	subscriptions   map[string]bool // Track active subscriptions for reconnection
	subMu           sync.RWMutex
	ctx             context.Context
	cancel          context.CancelFunc
	heartbeatTicker *time.Ticker
}

// NewClient creates a new feed client
func NewClient(config ClientConfig) *Client {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = HeartbeatInterval
	}
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	return &Client{
		config:        config,
		subscriptions: make(map[string]bool),
	}
}

// Connect establishes a WebSocket connection
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected {
		return nil
	}
	c.closed = false

	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse feed endpoint: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to feed: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = conn
	c.isConnected = true

	c.startHeartbeat()
	go c.readLoop(c.ctx, conn)

	if c.config.OnConnect != nil {
		go c.config.OnConnect()
	}

	return nil
}

// Disconnect closes the WebSocket connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return c.disconnect()
}

// disconnect is the internal disconnect method (must be called with lock held)
func (c *Client) disconnect() error {
	if !c.isConnected {
		return nil
	}

	c.isConnected = false

	if c.cancel != nil {
		c.cancel()
	}

	if c.heartbeatTicker != nil {
		c.heartbeatTicker.Stop()
	}

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	if c.config.OnDisconnect != nil {
		go c.config.OnDisconnect()
	}

	return err
}

// IsConnected returns the current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Subscribe subscribes to a channel
func (c *Client) Subscribe(channel string) error {
	if err := c.sendMessage(SubscribeMessage{Action: ActionSubscribe, Channel: channel}); err != nil {
		return err
	}

	c.subMu.Lock()
	c.subscriptions[channel] = true
	c.subMu.Unlock()
	return nil
}

// Unsubscribe unsubscribes from a channel
func (c *Client) Unsubscribe(channel string) error {
	if err := c.sendMessage(SubscribeMessage{Action: ActionUnsubscribe, Channel: channel}); err != nil {
		return err
	}

	c.subMu.Lock()
	delete(c.subscriptions, channel)
	c.subMu.Unlock()
	return nil
}

// SubscribeSettlements subscribes to completed settlements
func (c *Client) SubscribeSettlements() error {
	return c.Subscribe(ChannelSettlementCompleted)
}

// SubscribeCancellations subscribes to order cancellations
func (c *Client) SubscribeCancellations() error {
	return c.Subscribe(ChannelOrderCancelled)
}

// SubscribeRentals subscribes to rentals starting and ending
func (c *Client) SubscribeRentals() error {
	if err := c.Subscribe(ChannelRentalStarted); err != nil {
		return err
	}
	return c.Subscribe(ChannelRentalReturned)
}

// SubscribeBundles subscribes to bundles being created and unwrapped
func (c *Client) SubscribeBundles() error {
	if err := c.Subscribe(ChannelBundleCreated); err != nil {
		return err
	}
	return c.Subscribe(ChannelBundleUnwrapped)
}

// sendMessage sends a message over the WebSocket connection
func (c *Client) sendMessage(msg interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isConnected || c.conn == nil {
		return fmt.Errorf("WebSocket not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// startHeartbeat starts the heartbeat ticker (must be called with lock held)
func (c *Client) startHeartbeat() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	c.heartbeatTicker = ticker
	ctx := c.ctx

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := c.sendMessage(HeartbeatMessage{Action: ActionHeartbeat}); err != nil {
					c.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// readLoop continuously reads messages from the WebSocket
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.reportError(fmt.Errorf("read error: %w", err))
			}
			c.handleDisconnect()
			return
		}

		if c.config.OnMessage != nil {
			c.config.OnMessage(messageType, data)
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var head WSMessage
	if err := json.Unmarshal(data, &head); err != nil {
		c.reportError(fmt.Errorf("failed to decode message: %w", err))
		return
	}
	switch head.Action {
	case ActionEvent:
		var msg EventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reportError(fmt.Errorf("failed to decode event: %w", err))
			return
		}
		if c.config.OnEvent != nil {
			c.config.OnEvent(msg.Event)
		}
	case ActionError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			c.reportError(fmt.Errorf("feed rejected request: %s", msg.Message))
		}
	}
}

func (c *Client) reportError(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
	}
}

// handleDisconnect handles disconnection and attempts reconnection
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	wasConnected := c.isConnected
	closed := c.closed
	_ = c.disconnect()
	c.mu.Unlock()

	if !wasConnected || closed {
		return
	}
	go c.attemptReconnect()
}

// attemptReconnect attempts to reconnect to the feed
func (c *Client) attemptReconnect() {
	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		time.Sleep(c.config.ReconnectInterval)

		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		if err := c.Connect(context.Background()); err != nil {
			c.reportError(fmt.Errorf("reconnect attempt %d failed: %w", attempt, err))
			continue
		}

		c.resubscribe()
		return
	}

	c.reportError(fmt.Errorf("max reconnect attempts (%d) reached", c.config.MaxReconnectAttempts))
}

// resubscribe resubscribes to all tracked subscriptions
func (c *Client) resubscribe() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for channel := range c.subscriptions {
		if err := c.sendMessage(SubscribeMessage{Action: ActionSubscribe, Channel: channel}); err != nil {
			c.reportError(fmt.Errorf("resubscribe failed: %w", err))
		}
	}
}

// GetSubscriptions returns a list of current subscriptions
func (c *Client) GetSubscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	subs := make([]string, 0, len(c.subscriptions))
	for channel := range c.subscriptions {
		subs = append(subs, channel)
	}
	return subs
}
