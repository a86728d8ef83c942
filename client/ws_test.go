package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webdoc/internal/chat"
)

// serverVerifier maps fixed test tokens to identities.
type serverVerifier struct{}

func (serverVerifier) Verify(token string) (chat.Identity, error) {
	switch token {
	case "tok-alice":
		return chat.Identity{ID: "c-alice", Username: "alice", Role: "user"}, nil
	case "tok-bob":
		return chat.Identity{ID: "c-bob", Username: "bob", Role: "user"}, nil
	}
	return chat.Identity{}, errors.New("unknown token")
}

// newChatServer runs the real websocket gateway and history endpoint.
func newChatServer(t *testing.T) (*httptest.Server, *chat.MemoryStore) {
	t.Helper()

	log := testLogger()
	store := chat.NewMemoryStore()
	room := chat.NewRoom(log)
	cache := chat.NewCache(chat.RecentCacheSize)
	g := chat.NewGateway(log, room, cache, store, serverVerifier{}, nil, chat.GatewayOptions{})

	mux := http.NewServeMux()
	mux.Handle("/api/chat", g)
	mux.Handle("/api/chat/history", chat.NewHistoryHandler(log, store, nil))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func newLiveClient(t *testing.T, serverURL, token, clientID, username string) *Client {
	t.Helper()

	c, err := New(Config{
		ServerURL:   serverURL,
		AccessToken: token,
		ClientID:    clientID,
		Username:    username,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestClientSendAndReceiveAgainstGateway(t *testing.T) {
	t.Parallel()

	srv, store := newChatServer(t)
	alice := newLiveClient(t, srv.URL, "tok-alice", "c-alice", "alice")
	bob := newLiveClient(t, srv.URL, "tok-bob", "c-bob", "bob")

	if err := alice.Send("hello room"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Both sides converge on the authoritative copy.
	waitFor(t, func() bool {
		msgs := alice.Messages()
		return len(msgs) == 1 && !msgs[0].IsTemp
	})
	waitFor(t, func() bool { return len(bob.Messages()) == 1 })

	am, bm := alice.Messages()[0], bob.Messages()[0]
	if !am.IsSelf || am.Username != "alice" {
		t.Fatalf("sender copy: %+v", am)
	}
	if bm.IsSelf || bm.Content != "hello room" {
		t.Fatalf("receiver copy: %+v", bm)
	}

	rows, err := store.ReadPage(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if len(rows) != 1 || rows[0].Content != "hello room" {
		t.Fatalf("persisted rows: %+v", rows)
	}
}

func TestClientReceivesHistorySeed(t *testing.T) {
	t.Parallel()

	srv, store := newChatServer(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.Append(context.Background(), chat.Message{
			Username: "bob",
			Content:  fmt.Sprintf("m%d", i),
			SentAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	alice := newLiveClient(t, srv.URL, "tok-alice", "c-alice", "alice")

	// The websocket seed and the REST page carry the same rows; the merge
	// must deduplicate them.
	waitFor(t, func() bool { return len(alice.Messages()) == 3 })
	time.Sleep(50 * time.Millisecond)
	msgs := alice.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages after seed+page merge, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("position %d = %q", i, m.Content)
		}
	}
}

func TestClientRejectedTokenDoesNotConnect(t *testing.T) {
	t.Parallel()

	srv, _ := newChatServer(t)

	c, err := New(Config{
		ServerURL:         srv.URL,
		AccessToken:       "tok-wrong",
		Username:          "mallory",
		Logger:            testLogger(),
		ReconnectInterval: time.Hour, // keep the retry out of the test window
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	// The upgrade itself succeeds; the server then sends an error frame and
	// closes. The client must land back in disconnected.
	_ = c.Connect(t.Context())
	waitFor(t, func() bool { return c.State() == StateDisconnected })
	if got := len(c.Messages()); got != 0 {
		t.Fatalf("rejected client received %d messages", got)
	}
}
