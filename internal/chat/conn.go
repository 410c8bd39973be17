package chat

import (
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/spotmeet/spotmeet/internal/observability"
)

const sendQueueSize = 32

// Conn owns one WebSocket connection: a read loop that turns inbound
// binary frames into published chat messages, and a write loop that
// drains the send queue.
type Conn struct {
	log    *slog.Logger
	ws     *websocket.Conn
	hub    *Hub
	pub    MessagePublisher
	userID int64
	name   string
	imgURL string
	send   chan []byte
}

// MessagePublisher puts a chat message on the chat-messages topic.
type MessagePublisher interface {
	PublishChat(msg Message) error
}

func NewConn(log *slog.Logger, ws *websocket.Conn, hub *Hub, pub MessagePublisher, userID int64, name, imgURL string) *Conn {
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		log:    log,
		ws:     ws,
		hub:    hub,
		pub:    pub,
		userID: userID,
		name:   name,
		imgURL: imgURL,
		send:   make(chan []byte, sendQueueSize),
	}
}

// Run registers the connection and blocks until it closes.
func (c *Conn) Run() {
	c.hub.register(c.userID, c)
	observability.IncWSConnections()
	defer func() {
		c.hub.unregister(c.userID, c)
		observability.DecWSConnections()
		_ = c.ws.Close()
	}()

	go c.writeLoop()
	c.readLoop()
}

// enqueue implements session. A full queue drops the payload rather
// than blocking the fanout path.
func (c *Conn) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	defer close(c.send)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			c.closeProtocolError("expected binary frame")
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.closeProtocolError("malformed frame")
			return
		}

		msg := Message{
			ChatroomID:   f.ChatroomID,
			SenderID:     c.userID,
			SenderName:   c.name,
			SenderImgURL: c.imgURL,
			Content:      f.Message,
		}
		if err := c.pub.PublishChat(msg); err != nil {
			c.log.Error("chat publish failed", "chatroom_id", f.ChatroomID, "err", err)
			continue
		}
		observability.IncChatFanout("published")
	}
}

func (c *Conn) writeLoop() {
	for payload := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			c.log.Debug("ws write failed", "user_id", c.userID, "err", err)
			return
		}
	}
}

func (c *Conn) closeProtocolError(reason string) {
	c.log.Warn("closing ws connection", "user_id", c.userID, "reason", reason)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseProtocolError, reason),
		time.Now().Add(time.Second))
}
