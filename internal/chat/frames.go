package chat

import "time"

// Frame types exchanged over the websocket. The client sends "chat" frames
// carrying their own credential; the server pushes "chat", "history" and
// "error" frames.
const (
	FrameChat    = "chat"
	FrameHistory = "history"
	FrameError   = "error"
)

// InboundFrame is a client-to-server frame. Every frame carries its own
// access token and is authenticated independently of the connect-time token.
type InboundFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	AccessToken string `json:"access_token"`
}

// ChatFrame is a broadcast chat message. History entries reuse the same shape;
// they carry no clientId because the store does not persist one.
type ChatFrame struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId,omitempty"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryFrame seeds a newly connected client with the recent message tail,
// ordered ascending by timestamp.
type HistoryFrame struct {
	Type     string      `json:"type"`
	Messages []ChatFrame `json:"messages"`
}

// ErrorFrame reports a failure to one connection. Depending on the error it is
// followed by a close (auth) or not (persistence).
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
