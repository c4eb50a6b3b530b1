package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pecel/api/internal/realtime"
)

type scriptConn struct {
	inbound chan []byte
	writes  chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newScriptConn() *scriptConn {
	return &scriptConn{
		inbound: make(chan []byte, 16),
		writes:  make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *scriptConn) ReadMessage() ([]byte, error) {
	select {
	case raw := <-c.inbound:
		return raw, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *scriptConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.writes <- data
	return nil
}

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptConn) serve(t *testing.T, frame any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.inbound <- raw
}

type scriptDialer struct {
	conns chan *scriptConn
}

func newScriptDialer(conns ...*scriptConn) *scriptDialer {
	d := &scriptDialer{conns: make(chan *scriptConn, len(conns))}
	for _, conn := range conns {
		d.conns <- conn
	}
	return d
}

func (d *scriptDialer) Dial(ctx context.Context, url string) (Conn, error) {
	select {
	case conn := <-d.conns:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func recvFrame(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case raw := <-ch:
		return raw
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func startClient(t *testing.T, d Dialer, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithDialer(d), WithRetryDelay(10 * time.Millisecond)}, opts...)
	c := New("ws://pecel.test/ws", Identity{UserID: "u1", Username: "budi", Role: "cs"}, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = c.Close() })
	c.Start(ctx)
	return c
}

func TestAuthHandshake(t *testing.T) {
	conn := newScriptConn()
	c := startClient(t, newScriptDialer(conn))

	var auth realtime.AuthMessage
	if err := json.Unmarshal(recvFrame(t, conn.writes), &auth); err != nil {
		t.Fatalf("unmarshal auth frame: %v", err)
	}
	if auth.Type != realtime.TypeAuth || auth.UserID != "u1" || auth.Username != "budi" || auth.Role != "cs" {
		t.Errorf("unexpected auth frame %+v", auth)
	}

	conn.serve(t, realtime.Envelope{Type: realtime.TypeAuthSuccess, Message: "Authenticated successfully"})
	waitState(t, c, StateAuthenticated)
}

func TestAnonymousClientSkipsAuthHandshake(t *testing.T) {
	conn := newScriptConn()
	d := newScriptDialer(conn)

	c := New("ws://pecel.test/ws", Identity{}, WithDialer(d), WithRetryDelay(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = c.Close() })
	c.Start(ctx)

	waitState(t, c, StateConnected)
	select {
	case raw := <-conn.writes:
		t.Fatalf("anonymous client sent a frame on connect: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}

	// The public broadcast stream still flows without a bound identity.
	refetched := make(chan struct{}, 1)
	c.Subscribe(func() { refetched <- struct{}{} })
	conn.serve(t, realtime.Envelope{Type: realtime.TypeDocumentUpdate, Data: map[string]any{"id": 7}})
	select {
	case <-refetched:
	case <-time.After(2 * time.Second):
		t.Fatal("document_update never reached the anonymous client")
	}
}

func TestDocumentUpdateTriggersRefetch(t *testing.T) {
	conn := newScriptConn()
	refetched := make(chan struct{}, 4)

	c := startClient(t, newScriptDialer(conn))
	c.Subscribe(func() { refetched <- struct{}{} })

	conn.serve(t, realtime.Envelope{Type: realtime.TypeDocumentUpdate, Data: map[string]any{"id": 7}})
	conn.serve(t, realtime.Envelope{Type: realtime.TypeDocumentUpdate, Data: map[string]any{"id": 8}})

	for i := 0; i < 2; i++ {
		select {
		case <-refetched:
		case <-time.After(2 * time.Second):
			t.Fatalf("refetch %d never fired", i+1)
		}
	}
	select {
	case <-refetched:
		t.Error("extra refetch fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStatusChangeNotification(t *testing.T) {
	conn := newScriptConn()
	received := make(chan realtime.Notification, 4)

	c := startClient(t, newScriptDialer(conn))
	c.OnNotification(func(n realtime.Notification) { received <- n })

	conn.serve(t, realtime.Envelope{Type: realtime.TypeNotification, Data: realtime.Notification{
		Type: "info", Message: "diabaikan",
	}})
	conn.serve(t, realtime.Envelope{Type: realtime.TypeNotification, Data: realtime.Notification{
		Type:       realtime.NotificationStatusChange,
		Message:    "Status dokumen #0007/001/III/2025 berubah menjadi SELESAI",
		DocumentID: 7,
		OldStatus:  "DIPROSES",
		NewStatus:  "SELESAI",
	}})

	select {
	case n := <-received:
		if n.Type != realtime.NotificationStatusChange || n.DocumentID != 7 || n.NewStatus != "SELESAI" {
			t.Errorf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status_change notification never delivered")
	}
	select {
	case n := <-received:
		t.Errorf("non status_change notification leaked: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	first := newScriptConn()
	second := newScriptConn()
	startClient(t, newScriptDialer(first, second))

	recvFrame(t, first.writes)
	_ = first.Close()

	var auth realtime.AuthMessage
	if err := json.Unmarshal(recvFrame(t, second.writes), &auth); err != nil {
		t.Fatalf("unmarshal auth frame on reconnect: %v", err)
	}
	if auth.Type != realtime.TypeAuth {
		t.Errorf("reconnect did not re-run the auth handshake: %+v", auth)
	}
}

func TestSendWhileDisconnectedIsNoOp(t *testing.T) {
	c := New("ws://pecel.test/ws", Identity{UserID: "u1"})
	c.Send(realtime.Envelope{Type: "ping"})
	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
}

func TestSendOnLiveConnection(t *testing.T) {
	conn := newScriptConn()
	c := startClient(t, newScriptDialer(conn))

	recvFrame(t, conn.writes)
	c.Send(realtime.Envelope{Type: "ping"})

	var env realtime.Envelope
	if err := json.Unmarshal(recvFrame(t, conn.writes), &env); err != nil {
		t.Fatalf("unmarshal sent frame: %v", err)
	}
	if env.Type != "ping" {
		t.Errorf("type = %q, want ping", env.Type)
	}
}
