package wsbus

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/bus"
	"github.com/benchhub/hub/internal/eventservice"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// upgrader performs the HTTP -> WebSocket protocol upgrade. CheckOrigin
// always returns true — origin validation is left to the reverse proxy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a single connected WebSocket subscriber scoped to one subject
// filter. A lagging client never gets disconnected: enqueue drops the
// oldest buffered message to make room for the newest one and publishes a
// subscriber.lag event the first time it drops one (once per connection), keeping the publisher and the
// bus itself unaffected by a slow reader.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	bus    *bus.Bus
	events eventservice.Service
	filter string

	send chan Message

	mu     sync.Mutex
	lagged bool

	logger *zap.Logger
}

// NewClient upgrades the HTTP connection to WebSocket and returns a Client
// subscribed to filter once Run is called.
func NewClient(hub *Hub, b *bus.Bus, events eventservice.Service, w http.ResponseWriter, r *http.Request, filter string, logger *zap.Logger) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsbus: upgrade: %w", err)
	}

	return &Client{
		hub:    hub,
		conn:   conn,
		bus:    b,
		events: events,
		filter: filter,
		send:   make(chan Message, sendBufferSize),
		logger: logger.With(zap.String("remote_addr", r.RemoteAddr), zap.String("filter", filter)),
	}, nil
}

// Run subscribes the client to its bus filter, registers it with the hub,
// and starts the read and write pumps. Blocks until the connection closes
// or ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	busCh := make(chan bus.Message, 1)
	sub, err := c.bus.Subscribe(subCtx, c.filter, busCh)
	if err != nil {
		c.logger.Warn("wsbus: failed to subscribe to filter", zap.Error(err))
		c.conn.Close()
		return
	}
	defer sub.Unsubscribe()

	c.hub.Subscribe(c)

	go c.forward(subCtx, busCh)
	go c.writePump()
	c.readPump()
}

// forward copies bus messages matching the client's filter into its send
// buffer until ctx is cancelled.
func (c *Client) forward(ctx context.Context, busCh <-chan bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-busCh:
			if !ok {
				return
			}
			c.enqueue(Message{Type: MsgEvent, Subject: m.Subject, Payload: m.Data})
		}
	}
}

// enqueue delivers msg to the client's send buffer. When the buffer is
// full, the oldest queued message is dropped to make room rather than
// blocking the forwarder or disconnecting the client.
func (c *Client) enqueue(msg Message) {
	select {
	case c.send <- msg:
		return
	default:
	}

	select {
	case <-c.send:
	default:
	}

	select {
	case c.send <- msg:
	default:
	}

	c.reportLag()
}

func (c *Client) reportLag() {
	c.mu.Lock()
	already := c.lagged
	c.lagged = true
	c.mu.Unlock()
	if already {
		return
	}

	c.logger.Warn("wsbus: subscriber lagging, dropped oldest buffered message")
	if c.events == nil {
		return
	}
	payload := []byte(fmt.Sprintf(`{"filter":%q}`, c.filter))
	if _, err := c.events.Publish(context.Background(), "subscriber.lag", payload, "wsbus", ""); err != nil {
		c.logger.Warn("wsbus: failed to publish subscriber.lag event", zap.Error(err))
	}
}

// readPump reads incoming frames to detect client disconnection and reset
// the read deadline after each pong. No application messages are expected
// from the client — the protocol is server-push only.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("wsbus: failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warn("wsbus: unexpected close", zap.Error(err))
			}
			return
		}
	}
}

// writePump forwards messages from the send channel to the wire and sends
// periodic pings so readPump can detect stale connections. It is the only
// goroutine that writes to conn.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("wsbus: failed to set write deadline", zap.Error(err))
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("wsbus: write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("wsbus: failed to set write deadline", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("wsbus: ping error", zap.Error(err))
				return
			}
		}
	}
}
