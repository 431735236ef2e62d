package preview

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Upgrader accepts preview surfaces connecting from the editor page.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebsocketChannel delivers envelopes to a connected preview surface. The
// surface never writes back; anything it sends is read and discarded.
type WebsocketChannel struct {
	conn *websocket.Conn
	send chan string
	done chan struct{}
	once sync.Once
}

// NewWebsocketChannel starts the pumps for conn.
func NewWebsocketChannel(conn *websocket.Conn) *WebsocketChannel {
	c := &WebsocketChannel{
		conn: conn,
		send: make(chan string, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

func (c *WebsocketChannel) Post(_ context.Context, payload string) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrChannelFull
	}
}

// Done is closed once the connection is gone.
func (c *WebsocketChannel) Done() <-chan struct{} {
	return c.done
}

func (c *WebsocketChannel) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *WebsocketChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				log.Printf("preview: write to surface: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebsocketChannel) readPump() {
	defer c.Close()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
