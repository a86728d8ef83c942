// Package client is the Go SDK for the webdoc chat room. It keeps a merged,
// time-ordered view of the conversation fed by three sources: the websocket
// history seed, live broadcasts, and REST history pages loaded when the user
// scrolls near the top. The connection reconnects on a fixed timer until the
// client is closed.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultReconnectInterval is the fixed delay between reconnect attempts.
const DefaultReconnectInterval = 3 * time.Second

const (
	historyPageSize = 100
	writeTimeout    = 5 * time.Second
	fetchTimeout    = 10 * time.Second
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client: closed")

// ErrNotConnected is returned by Send while the websocket is down. The
// optimistic local echo is still recorded so the UI stays responsive.
var ErrNotConnected = errors.New("client: not connected")

// Config holds connection parameters.
type Config struct {
	// ServerURL is the http(s) base URL of the server,
	// e.g. "http://localhost:10610".
	ServerURL string

	// AccessToken authenticates the connection and every outbound frame.
	AccessToken string

	// ClientID and Username identify this user; incoming frames matching
	// either are tagged IsSelf.
	ClientID string
	Username string

	Logger            *slog.Logger
	ReconnectInterval time.Duration // default DefaultReconnectInterval
	HTTPClient        *http.Client  // default http.DefaultClient

	// OnChange, when set, is invoked after every message-list or state
	// change, outside the client lock. UIs use it to re-render.
	OnChange func()
}

// Client is a chat room client.
type Client struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	closed    bool
	conn      *websocket.Conn
	reconnect *time.Timer

	messages []Message

	page     int
	hasMore  bool
	fetching bool

	vp           Viewport
	followBottom bool
}

// New constructs a Client. Connect starts the connection.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, errors.New("client: empty server URL")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("client: empty access token")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:          cfg,
		log:          cfg.Logger,
		http:         cfg.HTTPClient,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateDisconnected,
		hasMore:      true,
		followBottom: true,
	}, nil
}

// Connect dials the chat websocket. On success it starts the read loop and
// loads the first REST history page. On failure, and after any later
// disconnect, a reconnect fires every ReconnectInterval until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notify()

	conn, _, err := websocket.Dial(ctx, c.wsURL(), nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		closed := c.closed
		c.mu.Unlock()
		c.notify()
		if !closed {
			c.scheduleReconnect()
		}
		return fmt.Errorf("client: dial: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
		return ErrClosed
	}
	c.conn = conn
	c.state = StateConnected
	firstPage := c.page == 0 && c.hasMore && !c.fetching
	if firstPage {
		c.fetching = true
	}
	c.mu.Unlock()
	c.notify()

	go c.readLoop(conn)
	if firstPage {
		go c.fetchPage(0)
	}
	return nil
}

// Close shuts the client down. It is idempotent and stops any pending or
// future reconnect, including a timer that has already fired.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	conn := c.conn
	c.conn = nil
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
	}
	c.notify()
	return nil
}

// Send records an optimistic local echo and ships the frame. The echo stays
// even when the write fails; it reconciles when the broadcast comes back.
func (c *Client) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.messages = append(c.messages, Message{
		ClientID:  c.cfg.ClientID,
		Username:  c.cfg.Username,
		Content:   content,
		Timestamp: time.Now().UTC(),
		IsSelf:    true,
		IsTemp:    true,
	})
	c.followBottom = true
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	c.notify()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(outboundFrame{
		Type:        "chat",
		Content:     content,
		AccessToken: c.cfg.AccessToken,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// Messages returns a snapshot of the merged conversation, ascending by
// timestamp.
func (c *Client) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FollowBottom reports whether the UI should keep the view pinned to the
// newest message.
func (c *Client) FollowBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.followBottom
}

// Viewport returns the last geometry reported via UpdateViewport.
func (c *Client) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp
}

// UpdateViewport reports the current scroll geometry. Scrolling near the
// bottom re-arms follow-bottom, scrolling away releases it, and scrolling
// near the top loads the next history page when one may exist and no fetch
// is in flight.
func (c *Client) UpdateViewport(vp Viewport) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.vp = vp
	c.followBottom = vp.NearBottom()

	var fetch int
	start := vp.NearTop() && c.hasMore && !c.fetching
	if start {
		c.fetching = true
		fetch = c.page + 1
	}
	c.mu.Unlock()

	if start {
		go c.fetchPage(fetch)
	}
}

func (c *Client) wsURL() string {
	return trimSlash(c.cfg.ServerURL) + "/api/chat?token=" + url.QueryEscape(c.cfg.AccessToken)
}

// SetOnChange replaces the change callback. UIs that need a handle on their
// event loop before wiring the callback use this instead of Config.OnChange.
func (c *Client) SetOnChange(fn func()) {
	c.mu.Lock()
	c.cfg.OnChange = fn
	c.mu.Unlock()
}

func (c *Client) notify() {
	c.mu.Lock()
	fn := c.cfg.OnChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.Read(c.ctx)
		if err != nil {
			c.onDisconnect(conn, err)
			return
		}

		var f wireFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.log.Warn("client.frame.malformed", "err", err)
			continue
		}

		switch f.Type {
		case "chat":
			c.applyChat(f)
			c.notify()
		case "history":
			c.applyHistory(f.Messages)
			c.notify()
		case "error":
			c.log.Warn("client.server.error", "message", f.Message)
		default:
			c.log.Warn("client.frame.unknown", "type", f.Type)
		}
	}
}

func (c *Client) onDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	closed := c.closed
	if !closed {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if closed {
		return
	}
	c.log.Info("client.disconnected", "err", err)
	c.notify()
	c.scheduleReconnect()
}

// scheduleReconnect arms the fixed reconnect timer. The callback re-checks
// closed at fire time, so a Close that races the timer still wins.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reconnect != nil {
		return
	}
	c.reconnect = time.AfterFunc(c.cfg.ReconnectInterval, func() {
		c.mu.Lock()
		c.reconnect = nil
		closed := c.closed
		busy := c.state != StateDisconnected
		c.mu.Unlock()
		if closed || busy {
			return
		}
		_ = c.Connect(c.ctx)
	})
}

// applyChat reconciles a live broadcast into the view: the optimistic echo
// with the same content and author is dropped, the authoritative copy is
// inserted, and the list is re-sorted.
func (c *Client) applyChat(f wireFrame) {
	msg := Message{
		ClientID:  f.ClientID,
		Username:  f.Username,
		Content:   f.Content,
		Timestamp: f.Timestamp,
		IsSelf:    c.isSelf(f),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.messages[:0]
	replaced := false
	dup := false
	for _, m := range c.messages {
		if !replaced && m.IsTemp && m.Content == msg.Content && m.Username == msg.Username {
			replaced = true
			continue
		}
		if !m.IsTemp && keyOf(m) == keyOf(msg) {
			dup = true
		}
		kept = append(kept, m)
	}
	c.messages = kept
	if !dup {
		c.messages = append(c.messages, msg)
	}
	c.sortMessagesLocked()
}

// applyHistory merges a history batch (websocket seed or REST page) into the
// view. The merge is idempotent: entries already present are skipped.
func (c *Client) applyHistory(frames []wireFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergeHistoryLocked(frames)
}

func (c *Client) mergeHistoryLocked(frames []wireFrame) {
	seen := make(map[messageKey]struct{}, len(c.messages))
	for _, m := range c.messages {
		if !m.IsTemp {
			seen[keyOf(m)] = struct{}{}
		}
	}

	added := false
	for _, f := range frames {
		msg := Message{
			ClientID:  f.ClientID,
			Username:  f.Username,
			Content:   f.Content,
			Timestamp: f.Timestamp,
			IsSelf:    c.isSelf(f),
		}
		k := keyOf(msg)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		c.messages = append(c.messages, msg)
		added = true
	}
	if added {
		c.sortMessagesLocked()
	}
}

func (c *Client) isSelf(f wireFrame) bool {
	if f.ClientID != "" && c.cfg.ClientID != "" {
		return f.ClientID == c.cfg.ClientID
	}
	return f.Username != "" && f.Username == c.cfg.Username
}

func (c *Client) sortMessagesLocked() {
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].Timestamp.Before(c.messages[j].Timestamp)
	})
}

type messageKey struct {
	username  string
	content   string
	timestamp int64
}

func keyOf(m Message) messageKey {
	return messageKey{
		username:  m.Username,
		content:   m.Content,
		timestamp: m.Timestamp.UnixNano(),
	}
}
