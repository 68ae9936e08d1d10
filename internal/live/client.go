package live

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ClientConfig configures a reconnecting live feed client.
type ClientConfig struct {
	// URL is the ws:// or wss:// feed endpoint.
	URL string
	// SnapshotURL is polled while the socket is unavailable. Optional;
	// without it the client keeps redialing but delivers nothing in
	// degraded mode.
	SnapshotURL string
	// Token is sent as an Authorization bearer header on dials and
	// snapshot polls, and additionally as a query parameter on the
	// socket endpoint for parity with browser clients.
	Token string
	// Handler receives every delivered frame (socket or poll).
	Handler func(frame []byte)

	// FallbackAfter is the number of consecutive failed dials before
	// switching to polling. Defaults to 5.
	FallbackAfter int
	// PollInterval is the snapshot cadence in degraded mode. Defaults
	// to 10s.
	PollInterval time.Duration
	// InitialBackoff and MaxBackoff bound the redial backoff. Defaults
	// 500ms and 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client maintains a live feed subscription. It reconnects with
// exponential backoff and jitter, and degrades to HTTP polling after
// repeated dial failures. Frame delivery is single-goroutine: socket
// reads and snapshot polls never run concurrently.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// ErrClientClosed is returned from Run after Close.
var ErrClientClosed = errors.New("live client: closed")

// NewClient validates the config and constructs a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("live client: empty url")
	}
	if cfg.Handler == nil {
		return nil, errors.New("live client: nil handler")
	}
	if cfg.FallbackAfter <= 0 {
		cfg.FallbackAfter = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Run drives the connection until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	bo := c.newBackoff()
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return c.exitErr(err)
		}

		conn, err := c.dial(ctx)
		if err != nil {
			failures++
			c.cfg.Logger.Printf("live client: dial failed (%d): %v", failures, err)
			if failures >= c.cfg.FallbackAfter {
				c.cfg.Logger.Printf("live client: degraded, polling every %s", c.cfg.PollInterval)
				conn, err = c.runDegraded(ctx, bo)
				if err != nil {
					return c.exitErr(err)
				}
			} else {
				if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
					return c.exitErr(err)
				}
				continue
			}
		}

		failures = 0
		bo.Reset()
		c.cfg.Logger.Printf("live client: connected to %s", c.cfg.URL)
		c.readLoop(ctx, conn)
	}
}

// Close stops the client. No frames are delivered after Close returns
// and the client cannot be restarted.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) exitErr(err error) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}
	return err
}

func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // retry forever; fallback handles availability
	bo.Reset()
	return bo
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, withToken(c.cfg.URL, c.cfg.Token), c.authHeader())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (c *Client) authHeader() http.Header {
	if c.cfg.Token == "" {
		return nil
	}
	header := make(http.Header, 1)
	header.Set("Authorization", "Bearer "+c.cfg.Token)
	return header
}

// runDegraded polls the snapshot endpoint at a fixed interval while
// probing the socket on the backoff schedule. Returns a live
// connection once a dial succeeds.
func (c *Client) runDegraded(ctx context.Context, bo *backoff.ExponentialBackOff) (*websocket.Conn, error) {
	poll := time.NewTicker(c.cfg.PollInterval)
	defer poll.Stop()

	// Deliver one snapshot immediately so consumers are not blind for
	// a full interval.
	c.pollSnapshot(ctx)

	dialTimer := time.NewTimer(bo.NextBackOff())
	defer dialTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-poll.C:
			c.pollSnapshot(ctx)
		case <-dialTimer.C:
			conn, err := c.dial(ctx)
			if err == nil {
				return conn, nil
			}
			c.cfg.Logger.Printf("live client: probe dial failed: %v", err)
			dialTimer.Reset(bo.NextBackOff())
		}
	}
}

func (c *Client) pollSnapshot(ctx context.Context) {
	if c.cfg.SnapshotURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SnapshotURL, nil)
	if err != nil {
		return
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.cfg.Logger.Printf("live client: poll: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.cfg.Logger.Printf("live client: poll: status %d", resp.StatusCode)
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.cfg.Handler(body)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(message string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(writeWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.cfg.Logger.Printf("live client: read: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if ctx.Err() != nil {
			return
		}
		c.cfg.Handler(frame)
	}
}

func withToken(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	separator := "?"
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '?' {
			separator = "&"
			break
		}
	}
	return rawURL + separator + "token=" + token
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
