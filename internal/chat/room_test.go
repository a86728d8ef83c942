package chat

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoomRegisterSupersedesDuplicateIdentity(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger())

	first := NewConn("c1", "alice", 4)
	second := NewConn("c1", "alice", 4)

	room.Register(first)
	room.Register(second)

	select {
	case <-first.Done():
	default:
		t.Fatalf("expected the superseded connection to be closed")
	}

	if n := room.Len(); n != 1 {
		t.Fatalf("expected 1 member after supersede, got %d", n)
	}

	// The stale close from the first connection must not evict the second.
	room.Unregister(first)
	if n := room.Len(); n != 1 {
		t.Fatalf("stale unregister evicted the replacement; members=%d", n)
	}

	room.Unregister(second)
	if n := room.Len(); n != 0 {
		t.Fatalf("expected empty room, got %d members", n)
	}
}

func TestRoomUnregisterIsIdempotent(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger())
	c := NewConn("c1", "alice", 4)

	room.Register(c)
	room.Unregister(c)
	room.Unregister(c)

	if n := room.Len(); n != 0 {
		t.Fatalf("expected empty room, got %d members", n)
	}
}

func TestRoomBroadcastReachesEveryMemberOnce(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger())
	a := NewConn("a", "alice", 4)
	b := NewConn("b", "bob", 4)
	room.Register(a)
	room.Register(b)

	frame := []byte(`{"type":"chat"}`)
	if dropped := room.Broadcast(frame); dropped != 0 {
		t.Fatalf("unexpected drops: %d", dropped)
	}

	for _, c := range []*Conn{a, b} {
		select {
		case got := <-c.Send:
			if string(got) != string(frame) {
				t.Fatalf("frame mismatch for %s: %s", c.ClientID, got)
			}
		default:
			t.Fatalf("member %s did not receive the frame", c.ClientID)
		}
		select {
		case extra := <-c.Send:
			t.Fatalf("member %s received a duplicate frame: %s", c.ClientID, extra)
		default:
		}
	}
}

func TestRoomBroadcastIsolatesSlowMembers(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger())
	slow := NewConn("slow", "s", 1)
	fast := NewConn("fast", "f", 4)
	room.Register(slow)
	room.Register(fast)

	// Fill the slow member's queue.
	slow.Send <- []byte("x")

	if dropped := room.Broadcast([]byte("y")); dropped != 1 {
		t.Fatalf("expected exactly 1 drop, got %d", dropped)
	}

	select {
	case got := <-fast.Send:
		if string(got) != "y" {
			t.Fatalf("fast member got %q", got)
		}
	default:
		t.Fatalf("fast member missed the broadcast")
	}
}

func TestRoomBroadcastSkipsClosedMembers(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger())
	closed := NewConn("c", "c", 4)
	open := NewConn("o", "o", 4)
	room.Register(closed)
	room.Register(open)

	closed.Close()
	room.Broadcast([]byte("z"))

	select {
	case got := <-closed.Send:
		t.Fatalf("closed member received a frame: %s", got)
	default:
	}
	select {
	case <-open.Send:
	default:
		t.Fatalf("open member missed the broadcast")
	}
}
