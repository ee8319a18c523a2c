package models

// StatusDelivered marks the echo a sender receives for its own message.
const StatusDelivered = "delivered"

// Envelope is the JSON object carried by every inbound websocket frame.
// Exactly one of Message or Error is expected; Status accompanies the sender echo.
type Envelope struct {
	Message *Message `json:"message,omitempty"`
	Status  string   `json:"status,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// OutboundFrame is what a client writes on the live channel.
type OutboundFrame struct {
	Text          string `json:"text" validate:"required"`
	ReceiverEmail string `json:"receiver_email" validate:"required"`
	ClientID      string `json:"client_id,omitempty"`
}

// SendRequest is the body of the request/response send endpoint.
type SendRequest struct {
	SenderEmail      string `json:"sender_email" validate:"required,email"`
	ReceiverUsername string `json:"receiver_username" validate:"required"`
	Text             string `json:"text" validate:"required"`
}

// Peer is a user one can chat with.
type Peer struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// User is an account known to the relay backend.
type User struct {
	Email    string `json:"email" db:"email"`
	Username string `json:"username" db:"username"`
}

// Peer returns the public view of u.
func (u User) Peer() Peer {
	return Peer{Username: u.Username, Email: u.Email}
}
