// Package realtime fans document changes out to connected dashboards. The hub
// owns the set of live sessions; delivery is best-effort, at most once, with
// no acknowledgement tracking. A failed send never propagates to the HTTP
// request that triggered it.
package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

// Conn is the transport half of a session. The websocket adapter implements
// it in production; tests substitute synthetic connections.
type Conn interface {
	// Send writes one text frame. It must be safe for concurrent use.
	Send(data []byte) error
	// Open reports whether the connection can still accept frames.
	Open() bool
}

// Session is one live connection, optionally bound to a user identity after
// the auth handshake. Identity fields are guarded by the hub mutex.
type Session struct {
	conn     Conn
	userID   string
	username string
	role     string
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[*Session]struct{})}
}

// Connect registers a new session and sends the welcome frame.
func (h *Hub) Connect(conn Conn) *Session {
	session := &Session{conn: conn}
	h.mu.Lock()
	h.sessions[session] = struct{}{}
	total := len(h.sessions)
	h.mu.Unlock()

	log.Printf("[WS] client connected, total clients: %d", total)
	h.send(session, Envelope{Type: TypeConnected, Message: "Connected to PECEL DUKCAPIL realtime server"})
	return session
}

// ClientMessage handles one inbound frame. Only the auth handshake is
// understood; malformed or unknown payloads are logged and dropped, never
// fatal to the session.
func (h *Hub) ClientMessage(session *Session, raw []byte) {
	var msg AuthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[WS] error parsing message: %v", err)
		return
	}
	if msg.Type != TypeAuth || msg.UserID == "" {
		return
	}

	h.mu.Lock()
	if _, ok := h.sessions[session]; ok {
		session.userID = msg.UserID
		session.username = msg.Username
		session.role = msg.Role
	}
	h.mu.Unlock()

	h.send(session, Envelope{Type: TypeAuthSuccess, Message: "Authenticated successfully"})
	log.Printf("[WS] client authenticated: %s %s", msg.Username, msg.Role)
}

// Disconnect removes a session from the live set. Safe to call more than
// once, and from both the close and error paths.
func (h *Hub) Disconnect(session *Session) {
	h.mu.Lock()
	_, present := h.sessions[session]
	delete(h.sessions, session)
	total := len(h.sessions)
	h.mu.Unlock()

	if present {
		log.Printf("[WS] client disconnected, total clients: %d", total)
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// BroadcastDocumentUpdate sends the document to every open session. Sessions
// that are not open are skipped, not removed; removal happens only through
// Disconnect.
func (h *Hub) BroadcastDocumentUpdate(document any) {
	payload, err := stamped(Envelope{Type: TypeDocumentUpdate, Data: document})
	if err != nil {
		log.Printf("[WS] marshal document update: %v", err)
		return
	}
	delivered := h.fanOut(payload, func(*Session) bool { return true })
	log.Printf("[WS] broadcast document update to %d clients", delivered)
}

// NotifyUser delivers a notification to the sessions bound to userID. No-op
// when no session matches; there is no queuing or retry.
func (h *Hub) NotifyUser(userID string, notification Notification) {
	payload, err := stamped(Envelope{Type: TypeNotification, Data: notification})
	if err != nil {
		log.Printf("[WS] marshal notification: %v", err)
		return
	}
	delivered := h.fanOut(payload, func(s *Session) bool { return s.userID == userID })
	log.Printf("[WS] sent notification to user %s (%d sessions)", userID, delivered)
}

// BroadcastToRole delivers a frame to every session bound to the given role.
func (h *Hub) BroadcastToRole(role string, envelope Envelope) {
	payload, err := stamped(envelope)
	if err != nil {
		log.Printf("[WS] marshal role broadcast: %v", err)
		return
	}
	delivered := h.fanOut(payload, func(s *Session) bool { return s.role == role })
	log.Printf("[WS] broadcast to role %s (%d sessions)", role, delivered)
}

// fanOut snapshots the matching open sessions under the read lock, then sends
// outside it so a slow client cannot block connects and disconnects.
func (h *Hub) fanOut(payload []byte, match func(*Session) bool) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for session := range h.sessions {
		if match(session) && session.conn.Open() {
			targets = append(targets, session)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, session := range targets {
		if err := session.conn.Send(payload); err != nil {
			log.Printf("[WS] send failed, dropping session: %v", err)
			h.Disconnect(session)
			continue
		}
		delivered++
	}
	return delivered
}

// send delivers one frame to one session, dropping the session on failure.
func (h *Hub) send(session *Session, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[WS] marshal frame: %v", err)
		return
	}
	if !session.conn.Open() {
		return
	}
	if err := session.conn.Send(payload); err != nil {
		log.Printf("[WS] send failed, dropping session: %v", err)
		h.Disconnect(session)
	}
}
