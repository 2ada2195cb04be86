package network

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"SketchBoard/internal/state"
)

// Path is where the host serves websocket peers.
const Path = "/ws"

// Client is a participant's link to the host. It implements
// state.Replicator; Push and Retract fail with ErrDisconnected while the
// link is down so the caller can queue and retry.
type Client struct {
	url string

	// OnStatus reports link changes for display. Set before Run.
	OnStatus func(connected bool, detail string)

	mu   sync.Mutex
	conn *websocket.Conn

	local subscribers
}

// NewClient returns a client for the host at addr (host:port).
func NewClient(addr string) *Client {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	return &Client{url: u.String()}
}

// Subscribe registers fn for every snapshot received from the host.
func (c *Client) Subscribe(fn func([]state.Record)) (cancel func()) {
	return c.local.add(fn)
}

// Connected reports whether the link is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Push(rec state.Record) error {
	return c.write(Message{Type: TypePush, Record: &rec})
}

func (c *Client) Retract(id string) error {
	return c.write(Message{Type: TypeRetract, ID: id})
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrDisconnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// Run keeps the link to the host up until ctx is done, reconnecting with
// exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			return conn, err
		},
			backoff.WithBackOff(b),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, wait time.Duration) {
				log.Printf("[CLIENT] dial %s failed, retrying in %s: %v", c.url, wait.Round(time.Millisecond), err)
				c.status(false, err.Error())
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		b.Reset()

		log.Printf("[CLIENT] connected to %s", c.url)
		c.setConn(conn)
		c.status(true, c.url)

		err = c.readLoop(ctx, conn)
		c.dropConn(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[CLIENT] link lost: %v", err)
		c.status(false, err.Error())
	}
}

// Close stops snapshot delivery. Cancel Run's context to drop the link.
func (c *Client) Close() {
	c.local.closeAll()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		switch msg.Type {
		case TypeSnapshot:
			c.local.publish(msg.Records)
		default:
			log.Printf("[CLIENT] ignoring %q from host", msg.Type)
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) status(connected bool, detail string) {
	if c.OnStatus != nil {
		c.OnStatus(connected, detail)
	}
}
