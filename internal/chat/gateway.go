package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// GatewayOptions tune the websocket endpoint. Zero values pick safe defaults.
type GatewayOptions struct {
	// AllowedOrigins are host patterns authorized for cross-origin upgrades.
	// Empty means same-host only.
	AllowedOrigins []string

	// DevInsecure disables origin verification entirely. Dev-only knob.
	DevInsecure bool

	SendQueueSize   int
	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
}

// Gateway is the websocket entrypoint for the chat room.
//
// Per-connection state machine: CONNECTING -> AUTHENTICATING -> ACTIVE ->
// CLOSED. The connect-time credential arrives as the "token" query parameter;
// every inbound frame additionally carries its own access_token and is
// re-verified independently.
type Gateway struct {
	log      *slog.Logger
	room     *Room
	cache    *Cache
	store    MessageStore
	verifier TokenVerifier
	metrics  *Metrics

	opts GatewayOptions
}

// NewGateway constructs a gateway. room, cache, store and verifier are
// required; metrics may be nil.
func NewGateway(log *slog.Logger, room *Room, cache *Cache, store MessageStore, verifier TokenVerifier, metrics *Metrics, opts GatewayOptions) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if opts.SendQueueSize < minSendQueueSize {
		if opts.SendQueueSize <= 0 {
			opts.SendQueueSize = defaultSendQueueSize
		} else {
			opts.SendQueueSize = minSendQueueSize
		}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ReadIdleTimeout <= 0 {
		opts.ReadIdleTimeout = defaultReadIdle
	}

	return &Gateway{
		log:      log,
		room:     room,
		cache:    cache,
		store:    store,
		verifier: verifier,
		metrics:  metrics,
		opts:     opts,
	}
}

// ServeHTTP adapter so the gateway can be mounted as an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the connection's chat loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.opts.AllowedOrigins,
		InsecureSkipVerify: g.opts.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "bye") }()

	ws.SetReadLimit(maxFrameBytes)

	sessionID := uuid.NewString()

	// AUTHENTICATING: the connect-time credential rides the query string.
	id, err := g.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		g.log.Info("ws.auth.fail", "session_id", sessionID, "remote", r.RemoteAddr, "err", err)
		if g.metrics != nil {
			g.metrics.AuthFailures.Inc()
		}
		g.writeDirect(r.Context(), ws, ErrorFrame{Type: FrameError, Message: "invalid credentials"})
		_ = ws.Close(websocket.StatusPolicyViolation, "auth failed")
		return
	}

	conn := NewConn(id.ID, id.Username, g.opts.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. Unregister is compare-and-delete, so a stale
	// shutdown after a supersede leaves the replacement connection alone.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.room.Unregister(conn)
			if g.metrics != nil {
				g.metrics.ConnectionsActive.Dec()
			}
			conn.Close()
			_ = ws.Close(code, reason)
			cancel()
		})
	}

	// ACTIVE: supersede any live connection for the same identity, then join.
	g.room.Register(conn)
	if g.metrics != nil {
		g.metrics.ConnectionsActive.Inc()
	}
	g.log.Info("ws.session.start", "session_id", sessionID, "client_id", id.ID, "username", id.Username)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-conn.Done():
				// Superseded or kicked. Flush anything already queued,
				// a final error frame in particular, before closing from
				// our side with the recorded status.
				g.flushQueue(ctx, ws, conn)
				code, reason := conn.CloseStatus()
				shutdown(code, reason)
				return
			case frame := <-conn.Send:
				if err := g.writeFrame(ctx, ws, frame); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	g.seedHistory(ctx, conn)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.opts.ReadIdleTimeout)
		data, err := readText(readCtx, ws)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed frames are logged and dropped; the connection stays up.
			g.log.Info("ws.frame.malformed", "session_id", sessionID, "err", err)
			continue readLoop
		}

		// Every frame carries its own credential; a fresh failure here is
		// fatal to the connection, not just to the frame.
		frameID, err := g.verifier.Verify(frame.AccessToken)
		if err != nil {
			g.log.Info("ws.frame.auth.fail", "session_id", sessionID, "err", err)
			if g.metrics != nil {
				g.metrics.AuthFailures.Inc()
			}
			// The writer owns the socket, so the error frame travels
			// through the queue and the writer closes after flushing it.
			g.enqueue(conn, mustJSON(ErrorFrame{Type: FrameError, Message: "invalid credentials"}))
			conn.CloseWithStatus(websocket.StatusPolicyViolation, "auth failed")
			<-writerDone
			break readLoop
		}

		switch frame.Type {
		case FrameChat:
			g.onChat(ctx, conn, frameID, frame)
		default:
			g.log.Info("ws.frame.unknown", "session_id", sessionID, "type", frame.Type)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
}

// onChat validates, persists and broadcasts one chat frame. Attribution uses
// the identity decoded from the frame's own credential.
func (g *Gateway) onChat(ctx context.Context, conn *Conn, id Identity, frame InboundFrame) {
	content := strings.TrimSpace(frame.Content)
	if content == "" {
		// Whitespace-only messages are dropped without error or broadcast.
		return
	}

	now := time.Now().UTC()
	msg := ChatFrame{
		Type:      FrameChat,
		ClientID:  id.ID,
		Username:  id.Username,
		Content:   content,
		Timestamp: now,
	}

	if err := g.store.Append(ctx, Message{Username: id.Username, Content: content, SentAt: now}); err != nil {
		// Best-effort persistence: the message is lost, only the sender hears
		// about it, and the room never sees it.
		g.log.Error("chat.persist.fail", "client_id", id.ID, "err", err)
		if g.metrics != nil {
			g.metrics.PersistFailures.Inc()
		}
		g.enqueue(conn, mustJSON(ErrorFrame{Type: FrameError, Message: "failed to send message, please retry"}))
		return
	}

	g.cache.Add(msg)

	dropped := g.room.Broadcast(mustJSON(msg))
	if g.metrics != nil {
		g.metrics.MessagesBroadcast.Inc()
		g.metrics.BroadcastDrops.Add(float64(dropped))
	}
}

// seedHistory pushes the recent message tail as a single history frame.
// A load failure is non-fatal: the connection proceeds without history.
func (g *Gateway) seedHistory(ctx context.Context, conn *Conn) {
	msgs, err := g.store.ReadPage(ctx, 0, seedPageSize)
	if err != nil {
		g.log.Warn("chat.history.load.fail", "client_id", conn.ClientID, "err", err)
		return
	}

	frames := make([]ChatFrame, 0, len(msgs))
	for _, m := range msgs {
		frames = append(frames, ChatFrame{
			Type:      FrameChat,
			Username:  m.Username,
			Content:   m.Content,
			Timestamp: m.SentAt,
		})
	}
	g.cache.Fill(frames)

	if len(frames) == 0 {
		return
	}
	g.enqueue(conn, mustJSON(HistoryFrame{Type: FrameHistory, Messages: frames}))
}

// enqueue is a non-blocking send to one connection's queue.
func (g *Gateway) enqueue(conn *Conn, frame []byte) bool {
	select {
	case <-conn.Done():
		return false
	case conn.Send <- frame:
		return true
	default:
		return false
	}
}

// flushQueue writes whatever is already buffered on the send queue. Called
// only from the writer goroutine, which owns all socket writes.
func (g *Gateway) flushQueue(ctx context.Context, ws *websocket.Conn, conn *Conn) {
	for {
		select {
		case frame := <-conn.Send:
			if err := g.writeFrame(ctx, ws, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (g *Gateway) writeFrame(parent context.Context, ws *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(parent, g.opts.WriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, frame)
}

// writeDirect sends a frame outside the writer goroutine; used only before the
// connection is registered (auth failures during the handshake).
func (g *Gateway) writeDirect(parent context.Context, ws *websocket.Conn, v any) {
	ctx, cancel := context.WithTimeout(parent, g.opts.WriteTimeout)
	defer cancel()
	_ = ws.Write(ctx, websocket.MessageText, mustJSON(v))
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// All frame types marshal cleanly; a failure here is a programming error.
		panic(err)
	}
	return b
}

func readText(ctx context.Context, ws *websocket.Conn) ([]byte, error) {
	mt, data, err := ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return nil, errors.New("unsupported message type")
	}
	return data, nil
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
