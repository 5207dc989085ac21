package eventfeed

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// client is one websocket connection. The hub owns the send channel and
// closes it on unregister.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// queue enqueues payload without blocking; a slow client loses messages.
func (c *client) queue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) reply(msg Message) {
	data, err := encode(msg)
	if err != nil {
		log.Printf("[EventFeed] encode %s for %s: %v", msg.Type, c.id, err)
		return
	}
	c.server.hub.sendTo(c, data)
}

func (c *client) sendError(action, text string) {
	c.reply(Message{Type: TypeError, Action: action, Data: text})
}

func (c *client) readPump() {
	defer func() {
		c.server.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[EventFeed] client %s read error: %v", c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", "malformed message: "+err.Error())
			continue
		}
		if msg.Type != TypeCommand {
			c.sendError(msg.Action, "unsupported message type "+msg.Type)
			continue
		}
		c.server.handleCommand(c, msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
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
