package channel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/messaging"
)

// WebSocketOptions configures the websocket event channel.
type WebSocketOptions struct {
	// URL of the event stream endpoint (ws:// or wss://).
	URL string
	// Token returns the current bearer token for the dial handshake.
	Token func() string
	// LastEventID returns the persisted stream cursor, sent as the
	// Last-Event-ID header so the server can resume delivery.
	LastEventID func() string
	// MaxReconnectInterval caps the reconnect backoff. Defaults to 30s.
	MaxReconnectInterval time.Duration
	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer
}

// WebSocket subscribes to the event stream over a websocket and keeps the
// subscription alive with bounded exponential backoff reconnects, resuming
// from the persisted cursor on each dial.
type WebSocket struct {
	opts WebSocketOptions

	mu         sync.Mutex
	conn       *websocket.Conn
	cancel     context.CancelFunc
	subscribed bool
	closed     bool
}

var _ Channel = &WebSocket{}

func NewWebSocket(opts WebSocketOptions) (*WebSocket, error) {
	if opts.URL == "" {
		return nil, errors.New("channel: websocket URL is required")
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	if opts.LastEventID == nil {
		opts.LastEventID = func() string { return "" }
	}
	if opts.MaxReconnectInterval <= 0 {
		opts.MaxReconnectInterval = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &WebSocket{opts: opts}, nil
}

func (c *WebSocket) Subscribe(ctx context.Context, table HandlerTable) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("channel: closed")
	}
	if c.subscribed {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.subscribed = true
	c.mu.Unlock()

	// The first dial happens synchronously so subscription failure is
	// reported to the bootstrapper; reconnects happen in the background.
	conn, err := c.dial(runCtx)
	if err != nil {
		c.mu.Lock()
		c.subscribed = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return errors.Wrap(err, "subscribe to event stream")
	}
	c.setConn(conn)

	go c.run(runCtx, conn, table)
	return nil
}

func (c *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if tok := c.opts.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	if cursor := c.opts.LastEventID(); cursor != "" {
		header.Set("Last-Event-ID", cursor)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (c *WebSocket) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *WebSocket) run(ctx context.Context, conn *websocket.Conn, table HandlerTable) {
	for {
		c.readLoop(conn, table)
		if ctx.Err() != nil || c.isClosed() {
			log.Info().Str("component", "channel").Msg("event stream reader stopped")
			return
		}

		log.Warn().Str("component", "channel").Msg("event stream dropped, reconnecting")
		bo := backoff.NewExponentialBackOff()
		bo.MaxInterval = c.opts.MaxReconnectInterval
		bo.MaxElapsedTime = 0
		next, err := backoff.RetryWithData(func() (*websocket.Conn, error) {
			return c.dial(ctx)
		}, backoff.WithContext(bo, ctx))
		if err != nil {
			log.Error().Err(err).Str("component", "channel").Msg("event stream reconnect abandoned")
			return
		}
		c.setConn(next)
		log.Info().Str("component", "channel").Msg("event stream reconnected")
		conn = next
	}
}

func (c *WebSocket) readLoop(conn *websocket.Conn, table HandlerTable) {
	for {
		var env messaging.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			_ = conn.Close()
			return
		}
		Dispatch(env, table)
	}
}

func (c *WebSocket) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *WebSocket) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
