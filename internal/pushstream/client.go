// Package pushstream keeps a live connection to the café's event stream and
// broadcasts typed order events to subscribers.
package pushstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"

	"github.com/appetiteclub/cafesync/internal/pipeline"
	"github.com/appetiteclub/cafesync/internal/retry"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
	"github.com/appetiteclub/cafesync/pkg/event"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	EmitPath                = "/api/realtime/emit"
	StreamPath              = "/api/realtime/stream"
)

var errHandshakeTimeout = errors.New("push handshake timed out")

// Config tunes the SSE client.
type Config struct {
	URL              string
	Role             role.Role
	HandshakeTimeout time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// Client maintains the SSE connection, joins the staff and admin rooms on
// every connect and broadcasts order events to subscribers.
type Client struct {
	*hub

	api      *pipeline.Client
	cfg      Config
	clientID string
	logger   apt.Logger

	mu        sync.Mutex
	onConnect []func()
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewClient(api *pipeline.Client, cfg Config, logger apt.Logger) *Client {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if cfg.URL == "" && api != nil {
		cfg.URL = api.URL(StreamPath)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		hub:      newHub(logger),
		api:      api,
		cfg:      cfg,
		clientID: uuid.New().String(),
		logger:   logger,
	}
}

// ClientID identifies this process towards the realtime server.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connected reports whether a stream is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnConnect registers a callback run after every successful (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// Start connects in the background and never blocks startup.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("starting push stream client", "url", c.cfg.URL, "client_id", c.clientID)

	c.wg.Add(1)
	go c.connectWithRetry(runCtx)
	return nil
}

// Stop closes the stream, waits for the reader and detaches all subscribers.
func (c *Client) Stop(ctx context.Context) error {
	c.logger.Info("stopping push stream client")

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.closeAll()
	return err
}

func (c *Client) connectWithRetry(ctx context.Context) {
	defer c.wg.Done()

	schedule := retry.NewSchedule(c.cfg.InitialBackoff, c.cfg.MaxBackoff)

	for {
		if ctx.Err() != nil {
			c.logger.Info("push stream client shutdown, stopping connection attempts")
			return
		}

		err := c.session(ctx, schedule)
		c.setConnected(false)
		if ctx.Err() != nil {
			return
		}

		wait := schedule.Next()
		if err != nil {
			c.logger.Error("push stream disconnected", "error", err, "retry_in", wait.String())
		} else {
			c.logger.Info("push stream closed by server", "retry_in", wait.String())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one connection from handshake until the stream ends.
func (c *Client) session(ctx context.Context, schedule *retry.Schedule) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	handshake := time.AfterFunc(c.cfg.HandshakeTimeout, cancel)
	resp, err := c.httpClient().Do(req)
	if !handshake.Stop() {
		if resp != nil {
			resp.Body.Close()
		}
		return errHandshakeTimeout
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect: unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("connect: unexpected content type %q", ct)
	}

	c.setConnected(true)
	schedule.Reset()
	c.logger.Info("connected to push stream", "client_id", c.clientID)

	c.joinRooms(streamCtx)
	c.notifyConnect()

	err = readFrames(resp.Body, func(f frame) {
		evt, ok := toEvent(f, time.Now())
		if !ok {
			c.logger.Debug("ignoring push event", "event", f.Event)
			return
		}
		c.broadcast(evt)
	}, func(d time.Duration) {
		c.logger.Debug("server retry hint", "retry", d.String())
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// joinRooms joins both the staff and the admin room regardless of role, so
// staff and admin views observe the same order stream.
func (c *Client) joinRooms(ctx context.Context) {
	if c.api == nil {
		return
	}
	for _, room := range []string{event.JoinStaffRoom, event.JoinAdminRoom} {
		req := event.JoinRequest{Event: room, ClientID: c.clientID, Role: c.cfg.Role.Code()}
		if err := c.api.Do(ctx, http.MethodPost, EmitPath, req, nil); err != nil {
			c.logger.Error("cannot join room", "room", room, "error", err)
			continue
		}
		c.logger.Debug("joined room", "room", room)
	}
}

func (c *Client) streamURL() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("clientId", c.clientID)
	if c.cfg.Role != "" {
		q.Set("role", c.cfg.Role.Code())
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) httpClient() *http.Client {
	if c.api != nil {
		return c.api.HTTPClient()
	}
	return http.DefaultClient
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) notifyConnect() {
	c.mu.Lock()
	callbacks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
