package realtime

import (
	"time"

	"github.com/gorilla/websocket"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Client is one websocket connection. It always listens on its user channel;
// ConversationID is set when the client opened a specific thread.
type Client struct {
	UserID         domainuser.ID
	ConversationID domainchat.ConversationID

	conn *websocket.Conn
	send chan []byte
}

func NewClient(conn *websocket.Conn, userID domainuser.ID, conversationID domainchat.ConversationID) *Client {
	return &Client{
		UserID:         userID,
		ConversationID: conversationID,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
	}
}

func (c *Client) channels() []channelKey {
	keys := []channelKey{{kind: channelUser, id: string(c.UserID)}}
	if c.ConversationID != "" {
		keys = append(keys, channelKey{kind: channelConversation, id: string(c.ConversationID)})
	}
	return keys
}

// deliver queues a frame without blocking; reports false when the client's
// buffer is full and the frame was dropped.
func (c *Client) deliver(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// WritePump drains the send buffer onto the connection and keeps the
// connection alive with pings. It exits when the buffer closes or a write
// fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// ReadPump consumes (and discards) inbound frames to process control
// messages; the protocol is push-only. Returns when the peer goes away.
func (c *Client) ReadPump(hub *Hub) {
	defer func() {
		hub.Unsubscribe(c)
		close(c.send)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
