package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single frame write to a client.
const writeWait = 10 * time.Second

// WebSocketChannel adapts a gorilla connection to Channel. The connection
// allows one concurrent writer, so writes are serialized.
type WebSocketChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketChannel wraps conn.
func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	return &WebSocketChannel{conn: conn}
}

// ReadJSON reads the next text message into v.
func (c *WebSocketChannel) ReadJSON(v interface{}) error {
	return c.conn.ReadJSON(v)
}

// WriteJSON writes v as one text message.
func (c *WebSocketChannel) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Close sends a normal closure frame and closes the connection.
func (c *WebSocketChannel) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
