package realtime

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins behind the reverse
	// proxy; authentication happens after connect, via the auth frame.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the hub's Conn interface. gorilla
// allows only one concurrent writer, so Send serializes writes.
type wsConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func (c *wsConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *wsConn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Handler upgrades requests at the realtime path and pumps inbound frames
// into the hub until the peer goes away.
func Handler(hub *Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] upgrade failed: %v", err)
			return
		}

		conn := &wsConn{ws: ws}
		session := hub.Connect(conn)

		defer func() {
			conn.markClosed()
			hub.Disconnect(session)
			_ = ws.Close()
		}()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[WS] read error: %v", err)
				}
				return
			}
			hub.ClientMessage(session, raw)
		}
	})
}
