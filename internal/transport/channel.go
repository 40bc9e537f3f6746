package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizlink/quizlink/internal/protocol"
)

var (
	ErrMissingToken = errors.New("transport: missing auth token")
	ErrClosed       = errors.New("transport: channel closed")
	ErrNotConnected = errors.New("transport: not connected")
)

// Config describes one authenticated channel to the game server.
type Config struct {
	URL   string
	Token string

	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	ReconnectMinWait  time.Duration
	ReconnectMaxWait  time.Duration
	ReconnectAttempts int

	Logger zerolog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout == 0 {
		out.DialTimeout = 10 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 5 * time.Second
	}
	if out.ReconnectMinWait == 0 {
		out.ReconnectMinWait = 500 * time.Millisecond
	}
	if out.ReconnectMaxWait == 0 {
		out.ReconnectMaxWait = 8 * time.Second
	}
	if out.ReconnectAttempts == 0 {
		out.ReconnectAttempts = 5
	}
	return out
}

// Channel is a persistent full-duplex connection to a single server
// endpoint, authenticated once at dial time. All inbound traffic is decoded
// and delivered on one goroutine, so message handlers observe events in
// exactly the order the server delivered them.
//
// Transient read failures trigger automatic redial with capped backoff. An
// explicit close by either side is terminal: the channel reports a final
// state and never reconnects.
type Channel struct {
	cfg Config
	log zerolog.Logger

	onMessage func(protocol.Envelope)
	onState   func(State, error)

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
}

// Dial opens the channel. It fails fast without a token; the channel never
// attempts an unauthenticated connection.
func Dial(ctx context.Context, cfg Config, onMessage func(protocol.Envelope), onState func(State, error)) (*Channel, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	c := &Channel{
		cfg:       cfg.withDefaults(),
		log:       cfg.Logger,
		onMessage: onMessage,
		onState:   onState,
	}

	c.emit(StateConnecting, nil)
	conn, err := c.dial(ctx)
	if err != nil {
		c.emit(StateErrored, err)
		return nil, fmt.Errorf("transport: dial %s: %w", c.cfg.URL, err)
	}
	c.setConn(conn)
	c.emit(StateConnected, nil)
	go c.readLoop(conn)
	return c, nil
}

// Send marshals and writes one envelope. It never blocks waiting for a
// response; confirmation, if any, arrives later as an inbound event.
func (c *Channel) Send(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return fmt.Errorf("transport: encode %s: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write %s: %w", event, err)
	}
	return nil
}

// Close tears the channel down. Safe to call more than once; after the
// first call every Send fails with ErrClosed and no reconnect is attempted.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.emit(StateClosed, nil)
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if isExplicitClose(err) {
				c.clearConn()
				c.log.Warn().Err(err).Msg("server closed connection")
				c.emit(StateErrored, fmt.Errorf("transport: server closed connection: %w", err))
				return
			}

			c.clearConn()
			c.log.Warn().Err(err).Msg("connection lost, reconnecting")
			c.emit(StateConnecting, err)
			next, rerr := c.reconnect()
			if rerr != nil {
				if !errors.Is(rerr, ErrClosed) {
					c.emit(StateErrored, rerr)
				}
				return
			}
			conn = next
			c.emit(StateConnected, nil)
			continue
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if env.Event == "" {
			continue
		}
		c.onMessage(env)
	}
}

func (c *Channel) reconnect() (*websocket.Conn, error) {
	wait := c.cfg.ReconnectMinWait
	var last error
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(wait)
		if c.isClosed() {
			return nil, ErrClosed
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err == nil {
			if c.isClosed() {
				_ = conn.Close()
				return nil, ErrClosed
			}
			c.setConn(conn)
			c.log.Info().Int("attempt", attempt).Msg("reconnected")
			return conn, nil
		}
		last = err
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")

		wait *= 2
		if wait > c.cfg.ReconnectMaxWait {
			wait = c.cfg.ReconnectMaxWait
		}
	}
	return nil, fmt.Errorf("transport: reconnect gave up after %d attempts: %w", c.cfg.ReconnectAttempts, last)
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.connected = true
}

func (c *Channel) clearConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.connected = false
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) emit(s State, err error) {
	if c.onState != nil {
		c.onState(s, err)
	}
}

func isExplicitClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.ClosePolicyViolation)
}
