// Package main provides a CI-friendly smoke test for the webdoc chat room.
//
// It validates:
//   - handshake with the connect-time token
//   - send -> broadcast to the sender
//   - fanout to a second client
//   - whitespace-only content silently dropped
//   - invalid connect token rejected with an error frame then close
//   - invalid per-frame token closes the connection
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

// frame is the superset of every frame on the wire.
type frame struct {
	Type        string    `json:"type"`
	ClientID    string    `json:"clientId,omitempty"`
	Username    string    `json:"username,omitempty"`
	Content     string    `json:"content,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	Messages    []frame   `json:"messages,omitempty"`
	Message     string    `json:"message,omitempty"`
	AccessToken string    `json:"access_token,omitempty"`
}

type smokeClient struct {
	name  string
	token string
	conn  *websocket.Conn

	inbox chan frame
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:10610/api/chat", "chat WebSocket URL (without token)")
		tokenA  = flag.String("token-a", os.Getenv("WEBDOC_SMOKE_TOKEN_A"), "access token for client A")
		tokenB  = flag.String("token-b", os.Getenv("WEBDOC_SMOKE_TOKEN_B"), "access token for client B")
		text    = flag.String("text", "smoke hello", "message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *tokenA == "" || *tokenB == "" {
		fatalf("two distinct user tokens are required (-token-a / -token-b)")
	}

	root := context.Background()

	mustRejectConnect(root, *wsURL, "definitely-not-a-token", *timeout)

	a := mustConnect(root, "A", *wsURL, *tokenA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *tokenB, *timeout)
	defer closeWS(b.conn)

	// Unique content so reruns against a dirty database stay unambiguous.
	content := fmt.Sprintf("%s %d", *text, time.Now().UnixNano())

	mustWrite(root, a, frame{Type: "chat", Content: content, AccessToken: a.token}, *timeout)

	echo := a.mustReadChat(root, content, *timeout)
	if echo.Username == "" || echo.Timestamp.IsZero() {
		fatalf("broadcast echo missing attribution: %+v", echo)
	}

	fan := b.mustReadChat(root, content, *timeout)
	if fan.Username != echo.Username {
		fatalf("fanout username mismatch: got=%q want=%q", fan.Username, echo.Username)
	}

	// Whitespace-only content must be dropped without any response.
	mustWrite(root, a, frame{Type: "chat", Content: "   ", AccessToken: a.token}, *timeout)
	a.mustAssertNoChat(root, 750*time.Millisecond)

	// A bad per-frame token must close the connection.
	mustWrite(root, b, frame{Type: "chat", Content: "x", AccessToken: "stale"}, *timeout)
	b.mustAssertClosed(root, *timeout)

	if *verbose {
		fmt.Printf("broadcast: username=%s timestamp=%s\n", echo.Username, echo.Timestamp.Format(time.RFC3339))
	}
	fmt.Printf("OK: content=%q\n", content)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func withToken(wsURL, token string) string {
	sep := "?"
	if strings.Contains(wsURL, "?") {
		sep = "&"
	}
	return wsURL + sep + "token=" + url.QueryEscape(token)
}

func mustConnect(parent context.Context, name, wsURL, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, withToken(wsURL, token), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		token: token,
		conn:  conn,
		inbox: make(chan frame, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func mustRejectConnect(parent context.Context, wsURL, badToken string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, withToken(wsURL, badToken), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		// Rejected at upgrade time also counts.
		return
	}
	defer closeWS(conn)

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != "error" {
		fatalf("bad token: expected error frame, got %q", string(data))
	}

	// After the error frame the server must close.
	if _, _, err := conn.Read(ctx); err == nil {
		fatalf("bad token: connection stayed open after error frame")
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)
		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
			if mt != websocket.MessageText {
				continue
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			select {
			case c.inbox <- f:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

// mustReadChat waits for a chat frame carrying the given content. History
// seeds and unrelated broadcasts are skipped.
func (c *smokeClient) mustReadChat(parent context.Context, content string, stepTimeout time.Duration) frame {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for chat %q (%s)", content, c.name)
		case err := <-c.errCh:
			fatalf("connection error while waiting for chat (%s): %v", c.name, err)
		case f, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for chat (%s)", c.name)
			}
			if f.Type == "error" {
				fatalf("server error (%s): %q", c.name, f.Message)
			}
			if f.Type == "chat" && f.Content == content {
				return f
			}
		}
	}
}

func (c *smokeClient) mustAssertNoChat(parent context.Context, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection closed unexpectedly (%s): %v", c.name, err)
		case f, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			if f.Type == "chat" {
				fatalf("unexpected chat broadcast (%s): %q", c.name, f.Content)
			}
		}
	}
}

func (c *smokeClient) mustAssertClosed(parent context.Context, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("connection still open after per-frame auth failure (%s)", c.name)
		case <-c.errCh:
			return
		case f, ok := <-c.inbox:
			if !ok {
				return
			}
			// The error frame preceding the close is expected.
			if f.Type != "error" {
				fatalf("unexpected frame before close (%s): %+v", c.name, f)
			}
		}
	}
}

func mustWrite(parent context.Context, c *smokeClient, f frame, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(f)
	if err != nil {
		fatalf("marshal frame: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed (%s): %v", c.name, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
