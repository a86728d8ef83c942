package client

import "time"

// Message is one entry of the client-side conversation view.
type Message struct {
	ClientID  string
	Username  string
	Content   string
	Timestamp time.Time

	// IsSelf marks messages authored by this client, matched by clientId
	// when the frame carries one and by username otherwise.
	IsSelf bool

	// IsTemp marks an optimistic local echo that has not come back from the
	// server yet. It is replaced by the authoritative copy on arrival.
	IsTemp bool
}

// wireFrame is the superset of every server-to-client frame shape.
type wireFrame struct {
	Type      string      `json:"type"`
	ClientID  string      `json:"clientId"`
	Username  string      `json:"username"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Messages  []wireFrame `json:"messages"`
	Message   string      `json:"message"`
}

// outboundFrame is the client-to-server chat frame. Every frame carries the
// credential; the server authenticates each one independently.
type outboundFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	AccessToken string `json:"access_token"`
}
