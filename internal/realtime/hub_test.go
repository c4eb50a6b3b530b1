package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	open     bool
	failSend bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{open: true}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) sent() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.frames))
	for _, raw := range c.frames {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			panic(err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) lastType() string {
	frames := c.sent()
	if len(frames) == 0 {
		return ""
	}
	return frames[len(frames)-1].Type
}

func authFrame(userID, username, role string) []byte {
	raw, _ := json.Marshal(AuthMessage{Type: TypeAuth, UserID: userID, Username: username, Role: role})
	return raw
}

func TestConnectSendsWelcome(t *testing.T) {
	hub := NewHub()
	conn := newFakeConn()

	hub.Connect(conn)

	if hub.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", hub.Count())
	}
	frames := conn.sent()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Type != TypeConnected {
		t.Errorf("type = %q, want %q", frames[0].Type, TypeConnected)
	}
	if frames[0].Message != "Connected to PECEL DUKCAPIL realtime server" {
		t.Errorf("unexpected welcome message %q", frames[0].Message)
	}
}

func TestAuthBindsIdentity(t *testing.T) {
	hub := NewHub()
	conn := newFakeConn()
	session := hub.Connect(conn)

	hub.ClientMessage(session, authFrame("u1", "budi", "operator"))

	if conn.lastType() != TypeAuthSuccess {
		t.Fatalf("last frame = %q, want %q", conn.lastType(), TypeAuthSuccess)
	}

	hub.NotifyUser("u1", Notification{Type: NotificationStatusChange, Message: "halo"})
	if conn.lastType() != TypeNotification {
		t.Errorf("bound session did not receive notification")
	}
}

func TestAuthWithoutUserIDIgnored(t *testing.T) {
	hub := NewHub()
	conn := newFakeConn()
	session := hub.Connect(conn)

	hub.ClientMessage(session, authFrame("", "budi", "operator"))

	if conn.lastType() == TypeAuthSuccess {
		t.Errorf("auth without userId must not bind")
	}
}

func TestMalformedClientMessageDropped(t *testing.T) {
	hub := NewHub()
	conn := newFakeConn()
	session := hub.Connect(conn)

	hub.ClientMessage(session, []byte("{not json"))

	if hub.Count() != 1 {
		t.Errorf("malformed frame must not disconnect the session")
	}
	if got := len(conn.sent()); got != 1 {
		t.Errorf("got %d frames, want only the welcome", got)
	}
}

func TestBroadcastDocumentUpdateReachesAllOpenSessions(t *testing.T) {
	hub := NewHub()
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		hub.Connect(conn)
	}

	hub.BroadcastDocumentUpdate(map[string]any{"id": 7, "status": "SELESAI"})

	for i, conn := range conns {
		frames := conn.sent()
		if len(frames) != 2 {
			t.Fatalf("conn %d got %d frames, want welcome + update", i, len(frames))
		}
		if frames[1].Type != TypeDocumentUpdate {
			t.Errorf("conn %d frame type = %q", i, frames[1].Type)
		}
		if frames[1].Timestamp == "" {
			t.Errorf("conn %d update missing timestamp", i)
		}
	}
}

func TestBroadcastSkipsClosedSessionWithoutRemoving(t *testing.T) {
	hub := NewHub()
	open := newFakeConn()
	closed := newFakeConn()
	hub.Connect(open)
	hub.Connect(closed)

	closed.mu.Lock()
	closed.open = false
	closed.mu.Unlock()

	hub.BroadcastDocumentUpdate(map[string]any{"id": 1})

	if got := len(closed.sent()); got != 1 {
		t.Errorf("closed conn got %d frames, want only the welcome", got)
	}
	if hub.Count() != 2 {
		t.Errorf("Count() = %d, closed sessions must stay registered", hub.Count())
	}
}

func TestSendFailureDropsSession(t *testing.T) {
	hub := NewHub()
	healthy := newFakeConn()
	broken := newFakeConn()
	hub.Connect(healthy)
	hub.Connect(broken)

	broken.mu.Lock()
	broken.failSend = true
	broken.mu.Unlock()

	hub.BroadcastDocumentUpdate(map[string]any{"id": 2})

	if hub.Count() != 1 {
		t.Errorf("Count() = %d, want failing session dropped", hub.Count())
	}
	frames := healthy.sent()
	if len(frames) != 2 || frames[1].Type != TypeDocumentUpdate {
		t.Errorf("healthy session must still receive the broadcast")
	}
}

func TestNotifyUserTargetsOnlyBoundSessions(t *testing.T) {
	hub := NewHub()
	target := newFakeConn()
	other := newFakeConn()
	anon := newFakeConn()
	s1 := hub.Connect(target)
	s2 := hub.Connect(other)
	hub.Connect(anon)

	hub.ClientMessage(s1, authFrame("u1", "budi", "cs"))
	hub.ClientMessage(s2, authFrame("u2", "siti", "cs"))

	hub.NotifyUser("u1", Notification{
		Type:       NotificationStatusChange,
		Message:    "Status dokumen #0007/001/III/2025 berubah menjadi SELESAI",
		DocumentID: 7,
		OldStatus:  "DIPROSES",
		NewStatus:  "SELESAI",
	})

	if target.lastType() != TypeNotification {
		t.Errorf("target session missed the notification")
	}
	if other.lastType() == TypeNotification {
		t.Errorf("notification leaked to another user")
	}
	if anon.lastType() == TypeNotification {
		t.Errorf("notification leaked to an unauthenticated session")
	}
}

func TestNotifyUserNoMatchIsNoOp(t *testing.T) {
	hub := NewHub()
	conn := newFakeConn()
	hub.Connect(conn)

	hub.NotifyUser("missing", Notification{Type: NotificationStatusChange, Message: "x"})

	if got := len(conn.sent()); got != 1 {
		t.Errorf("got %d frames, want only the welcome", got)
	}
}

func TestBroadcastToRole(t *testing.T) {
	hub := NewHub()
	operator := newFakeConnWithAuth(t, hub, "u1", "budi", "operator")
	cs := newFakeConnWithAuth(t, hub, "u2", "siti", "cs")

	hub.BroadcastToRole("operator", Envelope{Type: TypeNotification, Message: "antrian baru"})

	if operator.lastType() != TypeNotification {
		t.Errorf("operator session missed the role broadcast")
	}
	if cs.lastType() == TypeNotification {
		t.Errorf("role broadcast leaked to another role")
	}
}

func newFakeConnWithAuth(t *testing.T, hub *Hub, userID, username, role string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	session := hub.Connect(conn)
	hub.ClientMessage(session, authFrame(userID, username, role))
	if conn.lastType() != TypeAuthSuccess {
		t.Fatalf("auth handshake failed for %s", username)
	}
	return conn
}

func TestDisconnectIdempotent(t *testing.T) {
	hub := NewHub()
	session := hub.Connect(newFakeConn())

	hub.Disconnect(session)
	hub.Disconnect(session)

	if hub.Count() != 0 {
		t.Errorf("Count() = %d, want 0", hub.Count())
	}
}

func TestConcurrentConnectBroadcastDisconnect(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn()
			session := hub.Connect(conn)
			hub.ClientMessage(session, authFrame(fmt.Sprintf("u%d", i), "user", "cs"))
			hub.BroadcastDocumentUpdate(map[string]any{"id": i})
			hub.Disconnect(session)
		}(i)
	}
	wg.Wait()

	if hub.Count() != 0 {
		t.Errorf("Count() = %d after all sessions disconnected", hub.Count())
	}
}
