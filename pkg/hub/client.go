package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Dashboards only send control frames.
	maxInbound = 512

	sendBuffer = 64
)

// Client is one dashboard connection. Traffic is one way: the hub pushes
// envelopes, the client answers pings.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient registers a connection with the hub. It returns nil if the
// hub has stopped.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	select {
	case hub.register <- client:
		return client
	case <-hub.done:
		return nil
	}
}

// Run serves the connection until either side closes it. It blocks, so
// call it from the websocket handler.
func (c *Client) Run() {
	go c.writeLoop()
	c.awaitClose()
}

// awaitClose consumes inbound frames until the connection fails or the
// pong deadline passes, then unregisters the client.
func (c *Client) awaitClose() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ignored := 0
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		if ignored++; ignored == 1 {
			c.hub.logger.Debug("ignoring data frames from status client", "client", c.id)
		}
	}
}

// writeLoop is the only writer on the connection. Each wake-up sends
// everything queued, minus retained messages superseded within the batch.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case first, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "status hub closed"))
				return
			}
			batch, open := c.drain(first)
			for _, msg := range coalesce(batch) {
				if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
					return
				}
			}
			if !open {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "status hub closed"))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain collects first and whatever is already queued. open is false if
// the hub closed the channel.
func (c *Client) drain(first Message) (batch []Message, open bool) {
	batch = append(batch, first)
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return batch, false
			}
			batch = append(batch, msg)
		default:
			return batch, true
		}
	}
}

// coalesce drops retained messages that a later retained message of the
// same kind replaces. Order is otherwise kept.
func coalesce(batch []Message) []Message {
	if len(batch) < 2 {
		return batch
	}
	latest := make(map[string]int)
	for i, msg := range batch {
		if msg.Retain {
			latest[msg.Kind] = i
		}
	}
	out := batch[:0:0]
	for i, msg := range batch {
		if msg.Retain && latest[msg.Kind] != i {
			continue
		}
		out = append(out, msg)
	}
	return out
}
