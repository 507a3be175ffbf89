// Package live subscribes to a server's live log channel over a websocket
// and keeps the subscription alive across disconnects.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ernie/hostlog/internal/domain"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 15 * time.Second
	readTimeout       = 60 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Options configure a live Client
type Options struct {
	URL      string // full websocket URL, see URLFor
	ServerID int64

	// OnLines receives every batch for ServerID. It runs on the read
	// goroutine and should hand the lines off quickly.
	OnLines func(lines []domain.LiveLine)
	// OnConnect fires after each successful dial; reconnect is false only
	// for the first connection.
	OnConnect func(reconnect bool)
	// OnDisconnect fires when an established connection drops
	OnDisconnect func(err error)

	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client is a reconnecting live log subscriber
type Client struct {
	opts Options

	mu        sync.Mutex
	connected bool
}

// URLFor builds the live channel URL for an API base URL
func URLFor(base *url.URL, token string, serverID int64) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/logs"
	q := url.Values{}
	q.Set("server_id", strconv.FormatInt(serverID, 10))
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NewClient creates a client; nothing is dialed until Run
func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	return &Client{opts: opts}
}

// Connected reports whether a connection is currently established
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Run dials and reads until ctx is done, reconnecting with exponential
// backoff. It returns ctx's error.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	everConnected := false

	for {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Live log connection to server %d failed: %v (retrying in %s)", c.opts.ServerID, err, backoff)
		} else {
			backoff = c.opts.MinBackoff
			c.setConnected(true)
			if c.opts.OnConnect != nil {
				c.opts.OnConnect(everConnected)
			}
			everConnected = true

			err = c.readLoop(ctx, conn)
			c.setConnected(false)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Live log connection to server %d lost: %v", c.opts.ServerID, err)
			if c.opts.OnDisconnect != nil {
				c.opts.OnDisconnect(err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if err := c.dispatch(data); err != nil {
			log.Printf("Bad live log message for server %d: %v", c.opts.ServerID, err)
		}
	}
}

// dispatch decodes one frame. A frame may carry several newline separated
// messages.
func (c *Client) dispatch(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var msg domain.LiveMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding live message: %w", err)
		}
		if msg.ServerID != c.opts.ServerID {
			continue
		}
		switch msg.Type {
		case domain.MessageLines:
			if len(msg.Lines) > 0 && c.opts.OnLines != nil {
				c.opts.OnLines(msg.Lines)
			}
		case domain.MessageError:
			log.Printf("Live log error from server %d: %s", c.opts.ServerID, msg.Error)
		}
	}
}
