// Package chat contains the webdoc chat room: the websocket broadcaster, the
// connection registry, the bounded recent-message cache, and message
// persistence primitives.
package chat

// Identity is the authenticated principal derived from a verified credential.
type Identity struct {
	ID       string
	Username string
	Role     string
}

// TokenVerifier validates an opaque bearer credential and decodes the identity
// it carries. The chat package consumes this; issuance lives elsewhere.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}
