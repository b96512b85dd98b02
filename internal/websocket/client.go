package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Inbound traffic is limited to identify and ping frames
	maxInbound = 4 * 1024
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The PWA may be served from a different origin than the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected websocket listener
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// BaseMessage is the shape of every inbound message
type BaseMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	MsgID    string `json:"msgId,omitempty"`
}

// ServeWs upgrades the request and registers the connection as an anonymous
// listener. It receives broadcasts right away and may rename itself later.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WS upgrade failed: %v", err)
		return
	}

	c := &Client{
		ID:   "web_" + uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case hub.register <- c:
	case <-hub.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// SendJSON queues v for the client. A full queue drops the message.
func (c *Client) SendJSON(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("⚠️ WS client %s is not reading, message dropped", c.ID)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WS client %s: %v", c.ID, err)
			}
			return
		}
		var msg BaseMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg BaseMessage) {
	switch msg.Type {
	case "CLIENT_IDENTIFY":
		if msg.ClientID == "" {
			return
		}
		c.hub.rename(c, msg.ClientID)
		c.SendJSON(map[string]string{"type": "ACK", "msgId": msg.MsgID, "status": "connected"})
	case "PING":
		c.SendJSON(map[string]string{"type": "PONG", "msgId": msg.MsgID})
	}
}

// writeLoop owns all writes to the connection. It exits when the hub closes
// the send channel or a write fails.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, payload []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, payload)
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
