package docsync

import (
	"context"

	"github.com/gorilla/websocket"
)

// wsDialer is the production Dialer, backed by gorilla's client side.
type wsDialer struct{}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &clientConn{ws: ws}, nil
}

type clientConn struct {
	ws *websocket.Conn
}

func (c *clientConn) ReadMessage() ([]byte, error) {
	_, raw, err := c.ws.ReadMessage()
	return raw, err
}

func (c *clientConn) WriteMessage(data []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) Close() error {
	return c.ws.Close()
}
