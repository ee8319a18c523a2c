package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message represents a chat message between two users
type Message struct {
	ID            MessageID `json:"id,omitempty"`        // Server-assigned ID, absent on optimistic sends
	SenderEmail   string    `json:"sender_email"`        // Identity of the author
	ReceiverEmail string    `json:"receiver_email"`      // Identity of the recipient
	Text          string    `json:"text"`                // Message content
	Timestamp     Timestamp `json:"timestamp"`           // When the backend recorded the message
	ClientID      string    `json:"client_id,omitempty"` // Idempotency key generated by the sending client
}

// Involves reports whether the message belongs to the conversation between a and b,
// in either direction.
func (m *Message) Involves(a, b string) bool {
	return (m.SenderEmail == a && m.ReceiverEmail == b) ||
		(m.SenderEmail == b && m.ReceiverEmail == a)
}

// Valid reports whether the fields every delivered message must carry are present.
func (m *Message) Valid() bool {
	return m.SenderEmail != "" && m.ReceiverEmail != "" && strings.TrimSpace(m.Text) != ""
}

// DedupKeys returns the identities under which the same logical message can arrive
// twice: its server ID and its client idempotency key, whichever are known.
func (m *Message) DedupKeys() []string {
	var keys []string
	if m.ID != "" {
		keys = append(keys, "id:"+string(m.ID))
	}
	if m.ClientID != "" {
		keys = append(keys, "client:"+m.ClientID)
	}
	return keys
}

// MessageID is an opaque message identifier. The backend emits integers; other
// deployments may use strings, so both decode.
type MessageID string

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// timestampLayouts lists accepted encodings, RFC 3339 first. The zone-less layouts
// match what Python's isoformat() produces for naive datetimes.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a time.Time that tolerates the timestamp formats seen on the wire.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}
