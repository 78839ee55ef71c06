package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one dashboard connection. A client may narrow its stream to a
// single VM; fleet-wide frames are always delivered.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	vmID *int
}

// IncomingMessage is a control frame sent by the dashboard.
type IncomingMessage struct {
	Type string `json:"type"`
	VMID *int   `json:"vm_id,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.settings.ClientBuffer),
	}
}

func (c *Client) wants(message []byte) bool {
	c.mu.RLock()
	filter := c.vmID
	c.mu.RUnlock()
	if filter == nil {
		return true
	}

	var probe struct {
		VMID *int `json:"vm_id"`
	}
	if err := json.Unmarshal(message, &probe); err != nil || probe.VMID == nil {
		return true
	}
	return *probe.VMID == *filter
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	settings := c.hub.settings
	c.conn.SetReadLimit(settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithComponent("websocket").Errorf("read error: %v", err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		if msg.VMID == nil {
			return
		}
		id := *msg.VMID
		c.mu.Lock()
		c.vmID = &id
		c.mu.Unlock()
		c.confirm("subscribed", &id)
	case "unsubscribe":
		c.mu.Lock()
		c.vmID = nil
		c.mu.Unlock()
		c.confirm("unsubscribed", nil)
	}
}

func (c *Client) confirm(action string, vmID *int) {
	data, err := json.Marshal(Message{
		Type:      "subscription_update",
		Timestamp: time.Now(),
		VMID:      vmID,
		Message:   action,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		logger.WithComponent("websocket").Warn("client send buffer full, dropping confirmation")
	}
}

func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.WithContext(c.Request.Context()).Errorf("websocket upgrade failed: %v", err)
			return
		}

		client := NewClient(hub, conn)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
