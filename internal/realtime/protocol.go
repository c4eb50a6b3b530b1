package realtime

import (
	"encoding/json"
	"time"
)

// Server → client message types.
const (
	TypeConnected      = "connected"
	TypeAuthSuccess    = "auth_success"
	TypeDocumentUpdate = "document_update"
	TypeNotification   = "notification"
)

// TypeAuth is the only client → server message the hub understands.
const TypeAuth = "auth"

// Envelope is the wire frame for every message in either direction.
type Envelope struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// AuthMessage is the post-connect handshake a client sends to bind its
// identity onto the session.
type AuthMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Notification is the payload of a targeted "notification" frame.
type Notification struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	DocumentID int    `json:"documentId,omitempty"`
	OldStatus  string `json:"oldStatus,omitempty"`
	NewStatus  string `json:"newStatus,omitempty"`
}

// NotificationStatusChange is the only notification kind clients surface as
// a toast.
const NotificationStatusChange = "status_change"

func stamped(envelope Envelope) ([]byte, error) {
	envelope.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(envelope)
}
